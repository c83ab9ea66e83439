package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
)

// JobManager is the slice of the job manager the HTTP layer drives.
type JobManager interface {
	List(ctx context.Context, status model.JobStatus, jobType model.JobType) ([]*model.ProcessingJob, error)
	Cancel(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error)
	Retry(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error)
}

type JobResponse struct {
	ID           string `json:"id"`
	QueueJobID   string `json:"queueJobId"`
	Status       string `json:"status"`
	Type         string `json:"type"`
	ResourceID   string `json:"resourceId"`
	FileName     string `json:"fileName"`
	Progress     int    `json:"progress"`
	CanCancel    bool   `json:"canCancel"`
	CreatedAt    string `json:"createdAt"`
	StartedAt    string `json:"startedAt,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
	CancelledAt  string `json:"cancelledAt,omitempty"`
	FailedReason string `json:"failedReason,omitempty"`
	RetryCount   int    `json:"retryCount"`
}

type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// JobHandler handles processing-job HTTP requests.
type JobHandler struct {
	mgr JobManager
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(mgr JobManager) *JobHandler {
	return &JobHandler{mgr: mgr}
}

// List handles GET /processing-jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		Error(w, http.StatusBadRequest, "invalid_status", "Unknown job status filter")
		return
	}

	jobType := model.JobType(r.URL.Query().Get("type"))
	switch jobType {
	case "", model.JobTypeFilm, model.JobTypeEpisode, model.JobTypeTrailer:
	default:
		Error(w, http.StatusBadRequest, "invalid_type", "Unknown job type filter")
		return
	}

	list, err := h.mgr.List(r.Context(), status, jobType)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(list))}
	for _, job := range list {
		resp.Jobs = append(resp.Jobs, toJobResponse(job))
	}

	JSON(w, http.StatusOK, resp)
}

// Cancel handles POST /processing-jobs/{id}/cancel
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_job_id", "Job ID must be a valid UUID")
		return
	}

	job, err := h.mgr.Cancel(r.Context(), jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, toJobResponse(job))
}

// Retry handles POST /processing-jobs/{id}/retry
func (h *JobHandler) Retry(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_job_id", "Job ID must be a valid UUID")
		return
	}

	job, err := h.mgr.Retry(r.Context(), jobID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, toJobResponse(job))
}

func (h *JobHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(w, http.StatusNotFound, "job_not_found", "Job not found")
	case errors.Is(err, repository.ErrJobAlreadyFinished):
		Error(w, http.StatusConflict, "job_already_finished", "Job has already reached a terminal state")
	case errors.Is(err, model.ErrJobNotRetriable):
		Error(w, http.StatusConflict, "job_not_retriable", "Only failed jobs can be retried")
	case errors.Is(err, repository.ErrBusy):
		Error(w, http.StatusTooManyRequests, "queue_busy", "Processing queue is full, try again later")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toJobResponse(j *model.ProcessingJob) JobResponse {
	resp := JobResponse{
		ID:           j.ID.String(),
		QueueJobID:   j.QueueJobID,
		Status:       string(j.Status),
		Type:         string(j.Type),
		ResourceID:   j.Owner.ID(),
		FileName:     j.FileName,
		Progress:     j.Progress,
		CanCancel:    j.CanCancel,
		CreatedAt:    j.CreatedAt.Format(time.RFC3339),
		FailedReason: j.FailedReason,
		RetryCount:   j.RetryCount,
	}
	if j.StartedAt != nil {
		resp.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.FinishedAt != nil {
		resp.FinishedAt = j.FinishedAt.Format(time.RFC3339)
	}
	if j.CancelledAt != nil {
		resp.CancelledAt = j.CancelledAt.Format(time.RFC3339)
	}
	return resp
}
