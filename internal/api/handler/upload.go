package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
	"github.com/filmdist/ingest/internal/usecase"
)

// maxChunkMemory bounds how much of a chunk's multipart form is held in
// memory before spilling to disk.
const maxChunkMemory = 32 << 20 // 32 MiB

// Request/Response types

type CompleteUploadRequest struct {
	ClientID   string `json:"clientId"`
	FileName   string `json:"fileName"`
	Type       string `json:"type"`
	ResourceID string `json:"resourceId"`
	// FilmID and SeasonID are set when ResourceID names an episode.
	FilmID   string `json:"filmId,omitempty"`
	SeasonID string `json:"seasonId,omitempty"`
}

type CompleteUploadResponse struct {
	JobID string `json:"jobId"`
}

type SaveChunkResponse struct {
	ChunkPath string `json:"chunkPath"`
}

type CheckChunkResponse struct {
	Exists bool `json:"exists"`
}

// UploadHandler handles chunked-upload HTTP requests.
type UploadHandler struct {
	svc usecase.UploadService
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(svc usecase.UploadService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// SaveChunk handles POST /upload-chunk
func (h *UploadHandler) SaveChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxChunkMemory); err != nil {
		Error(w, http.StatusBadRequest, "invalid_form", "Malformed multipart form")
		return
	}

	fileName := r.FormValue("fileName")
	if fileName == "" {
		Error(w, http.StatusBadRequest, "invalid_file_name", "File name is required")
		return
	}

	start, err := strconv.ParseInt(r.FormValue("start"), 10, 64)
	if err != nil || start < 0 {
		Error(w, http.StatusBadRequest, "invalid_start", "Start must be a non-negative byte offset")
		return
	}

	chunk, _, err := r.FormFile("chunk")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing_chunk", "Chunk file is required")
		return
	}
	defer chunk.Close()

	path, err := h.svc.SaveChunk(r.Context(), fileName, start, chunk)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, SaveChunkResponse{ChunkPath: path})
}

// CheckChunk handles GET /check-upload-chunk?fileName&start
func (h *UploadHandler) CheckChunk(w http.ResponseWriter, r *http.Request) {
	fileName := r.URL.Query().Get("fileName")
	if fileName == "" {
		Error(w, http.StatusBadRequest, "invalid_file_name", "File name is required")
		return
	}

	start, err := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
	if err != nil || start < 0 {
		Error(w, http.StatusBadRequest, "invalid_start", "Start must be a non-negative byte offset")
		return
	}

	JSON(w, http.StatusOK, CheckChunkResponse{Exists: h.svc.HasChunk(fileName, start)})
}

// CompleteUpload handles POST /complete-upload
func (h *UploadHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	h.completeUpload(w, r, false)
}

// TrailerUpload handles POST /trailer-upload
func (h *UploadHandler) TrailerUpload(w http.ResponseWriter, r *http.Request) {
	h.completeUpload(w, r, true)
}

func (h *UploadHandler) completeUpload(w http.ResponseWriter, r *http.Request, trailer bool) {
	var req CompleteUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	owner, jobType, ok := resolveOwner(req, trailer)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid_owner", "Resource reference is incomplete")
		return
	}

	job, err := h.svc.CompleteUpload(r.Context(), usecase.CompleteUploadInput{
		ClientID: req.ClientID,
		FileName: req.FileName,
		Type:     jobType,
		Owner:    owner,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusCreated, CompleteUploadResponse{JobID: job.ID.String()})
}

// resolveOwner builds the tagged owner variant from the request's
// resource reference. A request carrying filmId+seasonId addresses an
// episode; otherwise resourceId names a standalone film.
func resolveOwner(req CompleteUploadRequest, trailer bool) (model.Owner, model.JobType, bool) {
	var owner model.Owner
	if req.FilmID != "" || req.SeasonID != "" {
		owner = model.NewEpisodeOwner(req.FilmID, req.SeasonID, req.ResourceID)
	} else {
		owner = model.NewFilmOwner(req.ResourceID)
	}
	if !owner.Valid() {
		return model.Owner{}, "", false
	}

	jobType := model.JobType(req.Type)
	if trailer {
		jobType = model.JobTypeTrailer
	}
	switch jobType {
	case model.JobTypeFilm, model.JobTypeEpisode, model.JobTypeTrailer:
		return owner, jobType, true
	default:
		return model.Owner{}, "", false
	}
}

func (h *UploadHandler) handleServiceError(w http.ResponseWriter, err error) {
	var existing *repository.ExistingJobError
	switch {
	case errors.As(err, &existing):
		JSON(w, http.StatusConflict, map[string]string{
			"error":  "existing_job",
			"jobId":  existing.JobID,
			"status": existing.Status,
		})
	case errors.Is(err, repository.ErrBusy):
		Error(w, http.StatusTooManyRequests, "queue_busy", "Processing queue is full, try again later")
	case errors.Is(err, repository.ErrChunkMissing):
		Error(w, http.StatusBadRequest, "chunk_missing", "Upload is incomplete: first chunk not received")
	case errors.Is(err, model.ErrInvalidOwner):
		Error(w, http.StatusBadRequest, "invalid_owner", "Resource reference is incomplete")
	case errors.Is(err, model.ErrEmptyArtifactName):
		Error(w, http.StatusBadRequest, "invalid_file_name", "File name is required")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
