package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// SSEHandler streams broker events as SSE. Clients may filter by kind via
// ?kinds=session,ack. When initial is non-nil its events are written first
// so a new client renders the current state without waiting for a change.
func SSEHandler(broker *Broker, initial func() []Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var kindFilter map[string]bool
		if q := r.URL.Query().Get("kinds"); q != "" {
			kindFilter = make(map[string]bool)
			for _, k := range strings.Split(q, ",") {
				if k = strings.TrimSpace(k); k != "" {
					kindFilter[k] = true
				}
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		// Subscribe before replaying so nothing published in between is lost.
		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		send := func(evt Event) bool {
			if kindFilter != nil && !kindFilter[evt.Kind] {
				return true
			}
			if err := writeEvent(w, evt); err != nil {
				slog.Debug("sse write failed", "error", err)
				return false
			}
			flusher.Flush()
			return true
		}

		if initial != nil {
			for _, evt := range initial() {
				if !send(evt) {
					return
				}
			}
		}
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !send(evt) {
					return
				}
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Kind, data)
	return err
}
