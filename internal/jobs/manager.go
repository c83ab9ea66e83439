// Package jobs owns the processing-job state machine: enqueue,
// cancellation, retry, and stuck-job recovery. Every job-row mutation in
// the pipeline goes through the Manager so the compare-and-set
// transitions live in one place.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
	"github.com/filmdist/ingest/internal/infrastructure/metrics"
)

// AbandonedReason is recorded on jobs reclaimed by FixStuck.
const AbandonedReason = "Abandoned"

// ErrNonTerminalClear is returned by Clear when asked to purge jobs that
// are still waiting or active.
var ErrNonTerminalClear = errors.New("jobs: refusing to clear non-terminal jobs")

// EnqueueInput describes a new pipeline run.
type EnqueueInput struct {
	Owner    model.Owner
	Type     model.JobType
	FileName string
	ClientID string
}

// Manager coordinates job rows and the message queue.
type Manager struct {
	repo          repository.JobRepository
	queue         repository.MessageQueue
	maxQueueDepth int
}

func NewManager(repo repository.JobRepository, queue repository.MessageQueue, maxQueueDepth int) *Manager {
	return &Manager{repo: repo, queue: queue, maxQueueDepth: maxQueueDepth}
}

// Enqueue creates a waiting job and publishes its pipeline task. The
// (resourceId, type) uniqueness pre-check happens in the repository's
// Create; a queue at its depth bound returns repository.ErrBusy before
// any row is written.
func (m *Manager) Enqueue(ctx context.Context, in EnqueueInput) (*model.ProcessingJob, error) {
	depth, err := m.queue.Depth(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobs: queue depth: %w", err)
	}
	metrics.QueueDepth.Set(float64(depth))
	if m.maxQueueDepth > 0 && depth >= m.maxQueueDepth {
		return nil, repository.ErrBusy
	}

	job := model.NewProcessingJob(in.Owner, in.Type, in.FileName, uuid.NewString())
	if err := m.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := m.publishTask(ctx, job, in.ClientID); err != nil {
		// The row exists but nothing will ever consume it; fail it so the
		// uniqueness invariant doesn't wedge the owner.
		if failErr := m.repo.UpdateStatus(ctx, job.ID, model.JobWaiting, model.JobFailed, "enqueue: "+err.Error()); failErr != nil {
			slog.Error("failed to fail unpublished job", "job_id", job.ID, "error", failErr)
		}
		return nil, fmt.Errorf("jobs: publish task: %w", err)
	}

	return job, nil
}

// GetJob returns a job by id.
func (m *Manager) GetJob(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error) {
	return m.repo.GetByID(ctx, id)
}

// List returns jobs matching the optional status/type filters.
func (m *Manager) List(ctx context.Context, status model.JobStatus, jobType model.JobType) ([]*model.ProcessingJob, error) {
	return m.repo.List(ctx, status, jobType)
}

// Cancel requests cancellation. A waiting job flips to cancelled
// immediately; an active job only gets its cancel flag set - the worker
// observes the flag at rung boundaries and acknowledges via
// AcknowledgeCancel, or FixStuck declares it detached later. Terminal
// jobs return repository.ErrJobAlreadyFinished.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error) {
	job, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, repository.ErrJobAlreadyFinished
	}

	if err := m.repo.SetCancelRequested(ctx, id); err != nil {
		return nil, err
	}

	if job.Status == model.JobWaiting {
		// Not picked up yet: flip directly. If the worker won the race and
		// the job just went active, the flag above still reaches it.
		if err := m.repo.UpdateStatus(ctx, id, model.JobWaiting, model.JobCancelled, ""); err != nil &&
			!errors.Is(err, repository.ErrJobAlreadyFinished) {
			return nil, err
		}
		metrics.JobsTotal.WithLabelValues(string(job.Type), string(model.JobCancelled)).Inc()
	}

	return m.repo.GetByID(ctx, id)
}

// Retry re-enqueues a failed job under a fresh queue job with a
// retry-prefixed client id, resetting progress and the failure reason
// while keeping the incremented retry count.
func (m *Manager) Retry(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error) {
	job, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobFailed {
		return nil, model.ErrJobNotRetriable
	}

	job.QueueJobID = uuid.NewString()
	job.Status = model.JobWaiting
	job.Progress = 0
	job.CanCancel = true
	job.StartedAt = nil
	job.FinishedAt = nil
	job.CancelledAt = nil
	job.FailedReason = ""
	job.RetryCount++

	if err := m.repo.Update(ctx, job); err != nil {
		return nil, err
	}

	clientID := fmt.Sprintf("retry-%d", time.Now().Unix())
	if err := m.publishTask(ctx, job, clientID); err != nil {
		if failErr := m.repo.UpdateStatus(ctx, job.ID, model.JobWaiting, model.JobFailed, "retry enqueue: "+err.Error()); failErr != nil {
			slog.Error("failed to fail unpublished retry", "job_id", job.ID, "error", failErr)
		}
		return nil, fmt.Errorf("jobs: publish retry task: %w", err)
	}

	return job, nil
}

// MarkActive is the worker's waiting->active transition. Returns
// repository.ErrJobAlreadyFinished when the job was cancelled before
// pickup, in which case the worker must not run the pipeline.
func (m *Manager) MarkActive(ctx context.Context, id uuid.UUID) error {
	return m.repo.UpdateStatus(ctx, id, model.JobWaiting, model.JobActive, "")
}

// MarkCompleted is the worker's active->completed transition.
func (m *Manager) MarkCompleted(ctx context.Context, id uuid.UUID, jobType model.JobType) error {
	if err := m.repo.UpdateStatus(ctx, id, model.JobActive, model.JobCompleted, ""); err != nil {
		return err
	}
	metrics.JobsTotal.WithLabelValues(string(jobType), string(model.JobCompleted)).Inc()
	return nil
}

// MarkFailed is the worker's active->failed transition. reason must be a
// one-line error kind plus detail; it is persisted verbatim.
func (m *Manager) MarkFailed(ctx context.Context, id uuid.UUID, jobType model.JobType, reason string) error {
	if err := m.repo.UpdateStatus(ctx, id, model.JobActive, model.JobFailed, reason); err != nil {
		return err
	}
	metrics.JobsTotal.WithLabelValues(string(jobType), string(model.JobFailed)).Inc()
	return nil
}

// AcknowledgeCancel is the worker's active->cancelled transition after it
// has observed the cancel flag and stopped its encoder.
func (m *Manager) AcknowledgeCancel(ctx context.Context, id uuid.UUID, jobType model.JobType) error {
	if err := m.repo.UpdateStatus(ctx, id, model.JobActive, model.JobCancelled, ""); err != nil {
		return err
	}
	metrics.JobsTotal.WithLabelValues(string(jobType), string(model.JobCancelled)).Inc()
	return nil
}

// CancelRequested reports the cooperative cancel flag.
func (m *Manager) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.repo.IsCancelRequested(ctx, id)
}

// ReportProgress persists the job's progress percentage. Failures are
// logged, not propagated - progress is advisory.
func (m *Manager) ReportProgress(ctx context.Context, id uuid.UUID, progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if err := m.repo.UpdateProgress(ctx, id, progress); err != nil {
		slog.Warn("failed to persist job progress", "job_id", id, "error", err)
	}
}

// SyncStatus reconciles one job row against the queue's live entries.
// An active job with no queue entry is moved to failed/Abandoned.
func (m *Manager) SyncStatus(ctx context.Context, id uuid.UUID, liveQueueJobIDs []string) (*model.ProcessingJob, error) {
	job, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobActive {
		return job, nil
	}

	for _, live := range liveQueueJobIDs {
		if live == job.QueueJobID {
			return job, nil
		}
	}

	if err := m.repo.UpdateStatus(ctx, id, model.JobActive, model.JobFailed, AbandonedReason); err != nil &&
		!errors.Is(err, repository.ErrJobAlreadyFinished) {
		return nil, err
	}
	metrics.JobsTotal.WithLabelValues(string(job.Type), string(model.JobFailed)).Inc()
	return m.repo.GetByID(ctx, id)
}

// FixStuck reclaims active jobs whose queue entry no longer exists -
// typically after a worker-host crash - by failing them with the
// Abandoned reason. Returns how many jobs were reclaimed.
func (m *Manager) FixStuck(ctx context.Context, liveQueueJobIDs []string) (int, error) {
	stuck, err := m.repo.ListActiveWithoutQueueEntry(ctx, liveQueueJobIDs)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, job := range stuck {
		if err := m.repo.UpdateStatus(ctx, job.ID, model.JobActive, model.JobFailed, AbandonedReason); err != nil {
			if errors.Is(err, repository.ErrJobAlreadyFinished) {
				continue
			}
			return reclaimed, err
		}
		metrics.JobsTotal.WithLabelValues(string(job.Type), string(model.JobFailed)).Inc()
		slog.Info("reclaimed stuck job", "job_id", job.ID, "queue_job_id", job.QueueJobID)
		reclaimed++
	}

	return reclaimed, nil
}

// Clear purges terminal job rows. Asking for waiting or active statuses
// is refused outright.
func (m *Manager) Clear(ctx context.Context, statuses []model.JobStatus) (int64, error) {
	for _, s := range statuses {
		if !s.IsTerminal() {
			return 0, ErrNonTerminalClear
		}
	}
	return m.repo.DeletePurged(ctx, statuses)
}

func (m *Manager) publishTask(ctx context.Context, job *model.ProcessingJob, clientID string) error {
	return m.queue.Publish(ctx, repository.PipelineTask{
		JobID:      job.ID,
		ClientID:   clientID,
		Type:       job.Type,
		ResourceID: job.Owner.ID(),
		Owner:      job.Owner,
		FileName:   job.FileName,
		RetryCount: job.RetryCount,
	})
}
