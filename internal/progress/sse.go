package progress

import (
	"fmt"
	"net/http"
)

// ServeSSE frames each broadcast event with the SSE `data: ...\n\n`
// prefix named in §6's progress-bus interface.
func (b *Bus) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := b.Subscribe()
	defer b.Unsubscribe(id)

	ch, _ := b.Stream(id)
	ctx := r.Context()

	for {
		select {
		case message, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
