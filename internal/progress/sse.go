package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WriteSSE frames one event as `data: <json>\n\n` (line-delimited,
// double-newline-terminated server-sent event framing).
func WriteSSE(w io.Writer, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("progress: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return nil
}

// StreamSSE drains a reporter's events into w as server-sent events, flushing
// after each one when w supports it. It returns when the reporter closes the
// stream or the first write fails (a disconnected consumer).
func StreamSSE(w io.Writer, events <-chan Event) error {
	flusher, _ := w.(http.Flusher)
	for ev := range events {
		if err := WriteSSE(w, ev); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}

// PrepareSSEHeaders sets the response headers for an SSE stream.
func PrepareSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}
