// Package progress emits the ordered event stream describing pipeline
// advancement: typed progress, error and complete events, delivered over a
// channel and optionally framed as server-sent events.
package progress

import (
	"math"
	"sync"

	"github.com/kbforge/knowledge-agent/internal/cards"
)

// Phase names the pipeline stage a progress event describes.
type Phase string

const (
	PhaseChunking   Phase = "chunking"
	PhaseProcessing Phase = "processing"
	PhaseWaiting    Phase = "waiting"
	PhaseMerging    Phase = "merging"
	PhaseCompleted  Phase = "completed"
)

// EventType discriminates the event payload.
type EventType string

const (
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one typed status message. Exactly one of Progress, Error or
// Complete is set, matching Type.
type Event struct {
	Type     EventType     `json:"type"`
	Progress *ProgressData `json:"progress,omitempty"`
	Error    *ErrorData    `json:"error,omitempty"`
	Complete *CompleteData `json:"complete,omitempty"`
}

type ProgressData struct {
	Phase        Phase  `json:"phase"`
	Message      string `json:"message"`
	CurrentChunk int    `json:"current_chunk"`
	TotalChunks  int    `json:"total_chunks"`
	Percentage   int    `json:"percentage"`
}

type ErrorData struct {
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

type CompleteData struct {
	Message string               `json:"message"`
	Result  cards.PipelineResult `json:"result"`
}

// Percentage computes round(current/total*100).
func Percentage(current, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(current) / float64(total) * 100))
}

// Reporter delivers events in order over a buffered channel. After Complete
// or a fatal Fail the channel is closed and further emissions are dropped.
type Reporter struct {
	mu     sync.Mutex
	events chan Event
	closed bool
}

func NewReporter(buffer int) *Reporter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Reporter{events: make(chan Event, buffer)}
}

// Events is the consumer side of the stream.
func (r *Reporter) Events() <-chan Event {
	return r.events
}

// Progress emits a progress event for a phase transition or chunk advance.
func (r *Reporter) Progress(phase Phase, message string, current, total int) {
	r.send(Event{Type: EventProgress, Progress: &ProgressData{
		Phase:        phase,
		Message:      message,
		CurrentChunk: current,
		TotalChunks:  total,
		Percentage:   Percentage(current, total),
	}})
}

// Warn emits a recoverable error event; the stream stays open.
func (r *Reporter) Warn(message string, detail any) {
	r.send(Event{Type: EventError, Error: &ErrorData{Message: message, Detail: detail}})
}

// Fail emits a fatal error event and closes the stream.
func (r *Reporter) Fail(message string, detail any) {
	r.send(Event{Type: EventError, Error: &ErrorData{Message: message, Detail: detail}})
	r.Close()
}

// Complete emits the final payload and closes the stream.
func (r *Reporter) Complete(message string, result cards.PipelineResult) {
	r.send(Event{Type: EventComplete, Complete: &CompleteData{Message: message, Result: result}})
	r.Close()
}

// Close closes the stream without emitting anything further.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.events)
}

func (r *Reporter) send(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	// Blocking send: the stream is the only backpressure in the pipeline,
	// and ordering must hold through Complete.
	r.events <- ev
}
