package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/subtitles"
)

// maxSubtitleForm bounds the subtitle upload form. The VTT itself is
// capped at 5 MiB by the subtitle manager.
const maxSubtitleForm = 6 << 20

type UploadSubtitleResponse struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Label    string `json:"label"`
	Default  bool   `json:"default"`
	Key      string `json:"key"`
}

// SubtitleUploader is the slice of the subtitle manager the HTTP layer
// drives.
type SubtitleUploader interface {
	Upload(ctx context.Context, in subtitles.UploadInput) (*model.SubtitleTrack, error)
}

// SubtitleHandler handles subtitle-track HTTP requests.
type SubtitleHandler struct {
	mgr SubtitleUploader
}

// NewSubtitleHandler creates a new SubtitleHandler.
func NewSubtitleHandler(mgr SubtitleUploader) *SubtitleHandler {
	return &SubtitleHandler{mgr: mgr}
}

// Upload handles POST /upload-subtitle
func (h *SubtitleHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSubtitleForm)
	if err := r.ParseMultipartForm(maxSubtitleForm); err != nil {
		Error(w, http.StatusBadRequest, "invalid_form", "Malformed multipart form or file too large")
		return
	}

	language := r.FormValue("language")
	if language == "" {
		Error(w, http.StatusBadRequest, "invalid_language", "Language is required")
		return
	}
	label := r.FormValue("label")
	if label == "" {
		label = language
	}

	fileName := r.FormValue("fileName")
	if fileName == "" {
		Error(w, http.StatusBadRequest, "invalid_file_name", "Owning video file name is required")
		return
	}

	owner, ok := subtitleOwner(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid_owner", "Resource reference is incomplete")
		return
	}

	file, _, err := r.FormFile("subtitleFile")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing_subtitle", "Subtitle file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		Error(w, http.StatusBadRequest, "unreadable_subtitle", "Could not read subtitle file")
		return
	}

	track, err := h.mgr.Upload(r.Context(), subtitles.UploadInput{
		Owner:     owner,
		FileName:  fileName,
		Language:  language,
		Label:     label,
		IsDefault: r.FormValue("default") == "true",
		VTTBytes:  content,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusCreated, UploadSubtitleResponse{
		ID:       track.ID.String(),
		Language: track.Language,
		Label:    track.Label,
		Default:  track.IsDefault,
		Key:      track.Key,
	})
}

func subtitleOwner(r *http.Request) (model.Owner, bool) {
	resourceID := r.FormValue("owner")
	filmID := r.FormValue("filmId")
	seasonID := r.FormValue("seasonId")

	var owner model.Owner
	if filmID != "" || seasonID != "" {
		owner = model.NewEpisodeOwner(filmID, seasonID, resourceID)
	} else {
		owner = model.NewFilmOwner(resourceID)
	}
	return owner, owner.Valid()
}

func (h *SubtitleHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subtitles.ErrNotVTT):
		Error(w, http.StatusBadRequest, "not_vtt", "Subtitle must be a WebVTT file")
	case errors.Is(err, subtitles.ErrTooLarge):
		Error(w, http.StatusBadRequest, "subtitle_too_large", "Subtitle exceeds the 5 MiB limit")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
