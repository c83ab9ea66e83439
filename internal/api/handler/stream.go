package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/streamserver"
)

// StreamHandler adapts the stream server to chi routes.
type StreamHandler struct {
	srv *streamserver.Server
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(srv *streamserver.Server) *StreamHandler {
	return &StreamHandler{srv: srv}
}

// Track handles GET /stream/{trackId}
func (h *StreamHandler) Track(w http.ResponseWriter, r *http.Request) {
	trackID, err := uuid.Parse(chi.URLParam(r, "trackId"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_track_id", "Track ID must be a valid UUID")
		return
	}

	h.srv.ServeTrack(w, r, trackID)
}

// HLS handles GET /hls/{owner}/*
func (h *StreamHandler) HLS(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	if owner == "" {
		Error(w, http.StatusBadRequest, "invalid_owner", "Owner prefix is required")
		return
	}

	h.srv.ServeHLS(w, r, owner, chi.URLParam(r, "*"))
}
