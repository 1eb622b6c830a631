package progress

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/kbforge/knowledge-agent/internal/cards"
)

func TestPercentage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		current, total, want int
	}{
		{0, 4, 0},
		{1, 4, 25},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{1, 0, 0},
	}
	for _, c := range cases {
		if got := Percentage(c.current, c.total); got != c.want {
			t.Fatalf("Percentage(%d, %d)=%d, want %d", c.current, c.total, got, c.want)
		}
	}
}

func TestReporterOrderedDelivery(t *testing.T) {
	t.Parallel()

	r := NewReporter(8)
	r.Progress(PhaseChunking, "splitting document", 0, 3)
	r.Progress(PhaseProcessing, "processing chunk", 1, 3)
	r.Warn("chunk 2 dropped", nil)
	r.Complete("done", cards.PipelineResult{CardCount: 4, Complete: true})

	var types []EventType
	for ev := range r.Events() {
		types = append(types, ev.Type)
	}
	want := []EventType{EventProgress, EventProgress, EventError, EventComplete}
	if len(types) != len(want) {
		t.Fatalf("got %d events, want %d", len(types), len(want))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d type=%q, want %q", i, types[i], want[i])
		}
	}
}

func TestReporterClosedAfterComplete(t *testing.T) {
	t.Parallel()

	r := NewReporter(8)
	r.Complete("done", cards.PipelineResult{})
	// Emissions after close are dropped, not panics.
	r.Progress(PhaseProcessing, "late", 1, 2)
	r.Warn("late", nil)
	r.Close()

	var count int
	for range r.Events() {
		count++
	}
	if count != 1 {
		t.Fatalf("got %d events after complete, want 1", count)
	}
}

func TestReporterFailClosesStream(t *testing.T) {
	t.Parallel()

	r := NewReporter(8)
	r.Fail("total failure", map[string]any{"reason": "all chunks failed"})

	ev, ok := <-r.Events()
	if !ok {
		t.Fatalf("expected one error event")
	}
	if ev.Type != EventError || ev.Error.Message != "total failure" {
		t.Fatalf("event=%+v", ev)
	}
	if _, ok := <-r.Events(); ok {
		t.Fatalf("stream should be closed after Fail")
	}
}

func TestProgressEventPayload(t *testing.T) {
	t.Parallel()

	r := NewReporter(1)
	r.Progress(PhaseProcessing, "processing chunk 2 of 4", 2, 4)
	ev := <-r.Events()
	p := ev.Progress
	if p == nil {
		t.Fatalf("missing progress payload")
	}
	if p.Phase != PhaseProcessing || p.CurrentChunk != 2 || p.TotalChunks != 4 || p.Percentage != 50 {
		t.Fatalf("payload=%+v", p)
	}
}

func TestWriteSSEFraming(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	ev := Event{Type: EventProgress, Progress: &ProgressData{Phase: PhaseChunking, Message: "m", TotalChunks: 1}}
	if err := WriteSSE(&b, ev); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}
	frame := b.String()
	if !strings.HasPrefix(frame, "data: {") {
		t.Fatalf("frame=%q", frame)
	}
	if !strings.HasSuffix(frame, "\n\n") {
		t.Fatalf("frame not double-newline terminated: %q", frame)
	}

	var decoded Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(frame), "data: ")), &decoded); err != nil {
		t.Fatalf("frame payload not JSON: %v", err)
	}
	if decoded.Type != EventProgress || decoded.Progress.Phase != PhaseChunking {
		t.Fatalf("decoded=%+v", decoded)
	}
	if decoded.Error != nil || decoded.Complete != nil {
		t.Fatalf("unset payloads must be omitted: %+v", decoded)
	}
}

func TestStreamSSEDrainsUntilClose(t *testing.T) {
	t.Parallel()

	r := NewReporter(8)
	r.Progress(PhaseChunking, "a", 0, 2)
	r.Progress(PhaseMerging, "b", 2, 2)
	r.Complete("done", cards.PipelineResult{CardCount: 1})

	var b strings.Builder
	if err := StreamSSE(&b, r.Events()); err != nil {
		t.Fatalf("StreamSSE: %v", err)
	}
	frames := strings.Split(strings.TrimSuffix(b.String(), "\n\n"), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if !strings.Contains(frames[2], `"complete"`) {
		t.Fatalf("last frame=%q", frames[2])
	}
}
