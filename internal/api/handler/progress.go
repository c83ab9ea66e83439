package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/filmdist/ingest/internal/progress"
)

// ProgressHandler streams per-client pipeline progress as server-sent
// events. Delivery is best-effort: a client that reconnects misses
// whatever was emitted while it was away.
type ProgressHandler struct {
	bus *progress.Bus
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(bus *progress.Bus) *ProgressHandler {
	return &ProgressHandler{bus: bus}
}

// Events handles GET /progress/{clientId}
func (h *ProgressHandler) Events(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	if clientID == "" {
		Error(w, http.StatusBadRequest, "invalid_client_id", "Client ID is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming unsupported")
		return
	}

	sub := h.bus.Subscribe(r.Context(), clientID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := sub.Events()
	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
