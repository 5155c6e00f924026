package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"galleria/internal/scan"
)

// EventsHandler streams scan notifications over Server-Sent Events, the
// HTTP mapping of the coordinator's subscription interface. Each client
// gets its own subscription; closing the request tears it down.
type EventsHandler struct {
	Notifier *scan.Notifier
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "NO_STREAMING", "streaming unsupported")
		return
	}

	events, cancel := h.Notifier.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
			flusher.Flush()
		}
	}
}
