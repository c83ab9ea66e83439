package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
)

// JobRepository persists ProcessingJob rows and enforces the
// non-terminal-uniqueness invariant on Create.
type JobRepository interface {
	// Create pre-checks that no waiting/active job exists for
	// (job.Owner.ID(), job.Type) and persists the job. If one exists,
	// returns an *ExistingJobError wrapping its id and status.
	Create(ctx context.Context, job *model.ProcessingJob) error

	GetByID(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error)

	// GetNonTerminalByOwner returns the current waiting/active job for
	// (ownerID, jobType), if any.
	GetNonTerminalByOwner(ctx context.Context, ownerID string, jobType model.JobType) (*model.ProcessingJob, error)

	// List returns jobs matching the given status/type filters. A zero
	// value for either filter matches all.
	List(ctx context.Context, status model.JobStatus, jobType model.JobType) ([]*model.ProcessingJob, error)

	// UpdateStatus performs a compare-and-set transition: it only applies
	// when the persisted row is still in fromStatus. Returns
	// ErrJobAlreadyFinished if the row has already moved past fromStatus.
	UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus model.JobStatus, failedReason string) error

	// Update persists the job's mutable fields (queue job id, progress,
	// failed reason, retry count). Used by Retry to reset a failed job.
	Update(ctx context.Context, job *model.ProcessingJob) error

	// UpdateProgress writes the job's progress percentage.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error

	// SetCancelRequested flips the cooperative cancel flag an active
	// worker observes at rung boundaries.
	SetCancelRequested(ctx context.Context, id uuid.UUID) error

	// IsCancelRequested reports the current value of that flag.
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)

	// ListActiveWithoutQueueEntry returns active jobs whose queue entry
	// no longer exists, for FixStuck recovery.
	ListActiveWithoutQueueEntry(ctx context.Context, liveQueueJobIDs []string) ([]*model.ProcessingJob, error)

	// DeletePurged removes terminal job rows matching the given statuses.
	DeletePurged(ctx context.Context, statuses []model.JobStatus) (int64, error)
}
