package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
)

// JobRepository implements repository.JobRepository using PostgreSQL.
//
// The (owner_id, type) non-terminal uniqueness invariant is backed by a
// partial unique index:
//
//	CREATE UNIQUE INDEX processing_jobs_one_live ON processing_jobs (owner_id, type)
//	WHERE status IN ('waiting', 'active');
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository instance.
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, queue_job_id, status, type, owner_kind, owner_id, film_id, season_id,
		episode_id, file_name, progress, can_cancel, cancel_requested, created_at,
		started_at, finished_at, cancelled_at, failed_reason, retry_count`

// Create persists a new job row. A unique-index violation on the live-job
// index is translated into *repository.ExistingJobError carrying the
// conflicting job's id and status.
func (r *JobRepository) Create(ctx context.Context, job *model.ProcessingJob) error {
	const query = `
		INSERT INTO processing_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.db.Exec(ctx, query,
		job.ID,
		job.QueueJobID,
		string(job.Status),
		string(job.Type),
		string(job.Owner.Kind),
		job.Owner.ID(),
		nullString(job.Owner.FilmID),
		nullString(job.Owner.SeasonID),
		nullString(job.Owner.EpisodeID),
		job.FileName,
		job.Progress,
		job.CanCancel,
		false,
		job.CreatedAt,
		job.StartedAt,
		job.FinishedAt,
		job.CancelledAt,
		nullString(job.FailedReason),
		job.RetryCount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			existing, lookupErr := r.GetNonTerminalByOwner(ctx, job.Owner.ID(), job.Type)
			if lookupErr != nil {
				return fmt.Errorf("failed to load conflicting job: %w", lookupErr)
			}
			return &repository.ExistingJobError{
				JobID:  existing.ID.String(),
				Status: string(existing.Status),
			}
		}
		return fmt.Errorf("failed to create processing job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its unique identifier.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error) {
	const query = `
		SELECT ` + jobColumns + `
		FROM processing_jobs
		WHERE id = $1
	`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get processing job by ID: %w", err)
	}

	return job, nil
}

// GetNonTerminalByOwner returns the current waiting/active job for
// (ownerID, jobType), if any.
func (r *JobRepository) GetNonTerminalByOwner(ctx context.Context, ownerID string, jobType model.JobType) (*model.ProcessingJob, error) {
	const query = `
		SELECT ` + jobColumns + `
		FROM processing_jobs
		WHERE owner_id = $1 AND type = $2 AND status IN ('waiting', 'active')
	`

	job, err := scanJob(r.db.QueryRow(ctx, query, ownerID, string(jobType)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get non-terminal job: %w", err)
	}

	return job, nil
}

// List returns jobs matching the given status/type filters, newest first.
// A zero value for either filter matches all.
func (r *JobRepository) List(ctx context.Context, status model.JobStatus, jobType model.JobType) ([]*model.ProcessingJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM processing_jobs
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR type = $2)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, string(status), string(jobType))
	if err != nil {
		return nil, fmt.Errorf("failed to query processing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processing job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating processing jobs: %w", err)
	}

	return jobs, nil
}

// UpdateStatus performs a compare-and-set transition. The row only moves
// when it is still in fromStatus; the status-specific timestamps are set
// server-side so concurrent writers cannot interleave them.
func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus model.JobStatus, failedReason string) error {
	const query = `
		UPDATE processing_jobs
		SET status = $3,
		    failed_reason = COALESCE(NULLIF($4, ''), failed_reason),
		    started_at = CASE WHEN $3 = 'active' THEN now() ELSE started_at END,
		    finished_at = CASE WHEN $3 IN ('completed', 'failed', 'cancelled') THEN now() ELSE finished_at END,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN now() ELSE cancelled_at END,
		    can_cancel = CASE WHEN $3 IN ('completed', 'failed', 'cancelled') THEN false ELSE can_cancel END
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Exec(ctx, query, id, string(fromStatus), string(toStatus), failedReason)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// The row either never existed or has already moved on.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return repository.ErrJobAlreadyFinished
	}

	return nil
}

// Update persists the job's mutable fields. Used by Retry to reset a
// failed job before re-enqueueing it.
func (r *JobRepository) Update(ctx context.Context, job *model.ProcessingJob) error {
	const query = `
		UPDATE processing_jobs
		SET queue_job_id = $2, status = $3, progress = $4, can_cancel = $5,
		    cancel_requested = false, started_at = $6, finished_at = $7,
		    cancelled_at = $8, failed_reason = $9, retry_count = $10
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		job.ID,
		job.QueueJobID,
		string(job.Status),
		job.Progress,
		job.CanCancel,
		job.StartedAt,
		job.FinishedAt,
		job.CancelledAt,
		nullString(job.FailedReason),
		job.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update processing job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateProgress writes the job's progress percentage.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	const query = `UPDATE processing_jobs SET progress = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, progress)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetCancelRequested flips the cooperative cancel flag on a live job.
func (r *JobRepository) SetCancelRequested(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE processing_jobs
		SET cancel_requested = true
		WHERE id = $1 AND status IN ('waiting', 'active')
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return repository.ErrJobAlreadyFinished
	}
	return nil
}

// IsCancelRequested reports the current value of the cancel flag.
func (r *JobRepository) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `SELECT cancel_requested FROM processing_jobs WHERE id = $1`

	var requested bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&requested); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, repository.ErrNotFound
		}
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return requested, nil
}

// ListActiveWithoutQueueEntry returns active jobs whose queue entry is not
// among liveQueueJobIDs. With an empty list, every active job qualifies.
func (r *JobRepository) ListActiveWithoutQueueEntry(ctx context.Context, liveQueueJobIDs []string) ([]*model.ProcessingJob, error) {
	const query = `
		SELECT ` + jobColumns + `
		FROM processing_jobs
		WHERE status = 'active' AND NOT (queue_job_id = ANY($1))
	`

	if liveQueueJobIDs == nil {
		liveQueueJobIDs = []string{}
	}

	rows, err := r.db.Query(ctx, query, liveQueueJobIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stuck job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stuck jobs: %w", err)
	}

	return jobs, nil
}

// DeletePurged removes terminal job rows matching the given statuses.
func (r *JobRepository) DeletePurged(ctx context.Context, statuses []model.JobStatus) (int64, error) {
	const query = `DELETE FROM processing_jobs WHERE status = ANY($1)`

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	tag, err := r.db.Exec(ctx, query, names)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanJob scans a single row into a ProcessingJob model.
func scanJob(row pgx.Row) (*model.ProcessingJob, error) {
	var (
		job             model.ProcessingJob
		status          string
		jobType         string
		ownerKind       string
		ownerID         string
		filmID          *string
		seasonID        *string
		episodeID       *string
		cancelRequested bool
		failedReason    *string
	)

	err := row.Scan(
		&job.ID,
		&job.QueueJobID,
		&status,
		&jobType,
		&ownerKind,
		&ownerID,
		&filmID,
		&seasonID,
		&episodeID,
		&job.FileName,
		&job.Progress,
		&job.CanCancel,
		&cancelRequested,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.CancelledAt,
		&failedReason,
		&job.RetryCount,
	)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	job.Type = model.JobType(jobType)
	job.Owner = model.Owner{Kind: model.OwnerKind(ownerKind)}
	if filmID != nil {
		job.Owner.FilmID = *filmID
	}
	if seasonID != nil {
		job.Owner.SeasonID = *seasonID
	}
	if episodeID != nil {
		job.Owner.EpisodeID = *episodeID
	}
	if failedReason != nil {
		job.FailedReason = *failedReason
	}

	return &job, nil
}

// Compile-time verification that JobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*JobRepository)(nil)
