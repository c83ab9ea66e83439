package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
)

// mockJobRepository provides a configurable mock for JobRepository.
type mockJobRepository struct {
	createFn             func(ctx context.Context, job *model.ProcessingJob) error
	getByIDFn            func(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error)
	getNonTerminalFn     func(ctx context.Context, ownerID string, jobType model.JobType) (*model.ProcessingJob, error)
	listFn               func(ctx context.Context, status model.JobStatus, jobType model.JobType) ([]*model.ProcessingJob, error)
	updateStatusFn       func(ctx context.Context, id uuid.UUID, from, to model.JobStatus, reason string) error
	updateFn             func(ctx context.Context, job *model.ProcessingJob) error
	updateProgressFn     func(ctx context.Context, id uuid.UUID, progress int) error
	setCancelRequestedFn func(ctx context.Context, id uuid.UUID) error
	isCancelRequestedFn  func(ctx context.Context, id uuid.UUID) (bool, error)
	listActiveWithoutQFn func(ctx context.Context, live []string) ([]*model.ProcessingJob, error)
	deletePurgedFn       func(ctx context.Context, statuses []model.JobStatus) (int64, error)
}

func (m *mockJobRepository) Create(ctx context.Context, job *model.ProcessingJob) error {
	if m.createFn != nil {
		return m.createFn(ctx, job)
	}
	return nil
}

func (m *mockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ProcessingJob, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockJobRepository) GetNonTerminalByOwner(ctx context.Context, ownerID string, jobType model.JobType) (*model.ProcessingJob, error) {
	if m.getNonTerminalFn != nil {
		return m.getNonTerminalFn(ctx, ownerID, jobType)
	}
	return nil, repository.ErrNotFound
}

func (m *mockJobRepository) List(ctx context.Context, status model.JobStatus, jobType model.JobType) ([]*model.ProcessingJob, error) {
	if m.listFn != nil {
		return m.listFn(ctx, status, jobType)
	}
	return nil, nil
}

func (m *mockJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.JobStatus, reason string) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, from, to, reason)
	}
	return nil
}

func (m *mockJobRepository) Update(ctx context.Context, job *model.ProcessingJob) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, job)
	}
	return nil
}

func (m *mockJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if m.updateProgressFn != nil {
		return m.updateProgressFn(ctx, id, progress)
	}
	return nil
}

func (m *mockJobRepository) SetCancelRequested(ctx context.Context, id uuid.UUID) error {
	if m.setCancelRequestedFn != nil {
		return m.setCancelRequestedFn(ctx, id)
	}
	return nil
}

func (m *mockJobRepository) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.isCancelRequestedFn != nil {
		return m.isCancelRequestedFn(ctx, id)
	}
	return false, nil
}

func (m *mockJobRepository) ListActiveWithoutQueueEntry(ctx context.Context, live []string) ([]*model.ProcessingJob, error) {
	if m.listActiveWithoutQFn != nil {
		return m.listActiveWithoutQFn(ctx, live)
	}
	return nil, nil
}

func (m *mockJobRepository) DeletePurged(ctx context.Context, statuses []model.JobStatus) (int64, error) {
	if m.deletePurgedFn != nil {
		return m.deletePurgedFn(ctx, statuses)
	}
	return 0, nil
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishFn func(ctx context.Context, task repository.PipelineTask) error
	consumeFn func(ctx context.Context, handler func(task repository.PipelineTask) error) error
	depthFn   func(ctx context.Context) (int, error)
}

func (m *mockMessageQueue) Publish(ctx context.Context, task repository.PipelineTask) error {
	if m.publishFn != nil {
		return m.publishFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) Consume(ctx context.Context, handler func(task repository.PipelineTask) error) error {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, handler)
	}
	return nil
}

func (m *mockMessageQueue) Depth(ctx context.Context) (int, error) {
	if m.depthFn != nil {
		return m.depthFn(ctx)
	}
	return 0, nil
}

func (m *mockMessageQueue) Close() error { return nil }

func TestManager_Enqueue(t *testing.T) {
	input := EnqueueInput{
		Owner:    model.NewFilmOwner("F1"),
		Type:     model.JobTypeFilm,
		FileName: "movie.mp4",
		ClientID: "c1",
	}

	t.Run("creates and publishes", func(t *testing.T) {
		var published *repository.PipelineTask
		queue := &mockMessageQueue{
			publishFn: func(_ context.Context, task repository.PipelineTask) error {
				published = &task
				return nil
			},
		}
		mgr := NewManager(&mockJobRepository{}, queue, 10)

		job, err := mgr.Enqueue(context.Background(), input)
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		if job.Status != model.JobWaiting {
			t.Errorf("Status = %v, want waiting", job.Status)
		}
		if published == nil {
			t.Fatal("expected a published task")
		}
		if published.JobID != job.ID {
			t.Errorf("task JobID = %v, want %v", published.JobID, job.ID)
		}
		if published.ClientID != "c1" {
			t.Errorf("task ClientID = %v, want c1", published.ClientID)
		}
		if published.ResourceID != "F1" {
			t.Errorf("task ResourceID = %v, want F1", published.ResourceID)
		}
	})

	t.Run("rejects when queue is full", func(t *testing.T) {
		queue := &mockMessageQueue{
			depthFn: func(context.Context) (int, error) { return 10, nil },
		}
		mgr := NewManager(&mockJobRepository{}, queue, 10)

		_, err := mgr.Enqueue(context.Background(), input)
		if !errors.Is(err, repository.ErrBusy) {
			t.Errorf("error = %v, want ErrBusy", err)
		}
	})

	t.Run("surfaces existing job", func(t *testing.T) {
		repo := &mockJobRepository{
			createFn: func(context.Context, *model.ProcessingJob) error {
				return &repository.ExistingJobError{JobID: "abc", Status: "active"}
			},
		}
		mgr := NewManager(repo, &mockMessageQueue{}, 10)

		_, err := mgr.Enqueue(context.Background(), input)
		var existing *repository.ExistingJobError
		if !errors.As(err, &existing) {
			t.Fatalf("error = %v, want *ExistingJobError", err)
		}
		if existing.Status != "active" {
			t.Errorf("Status = %v, want active", existing.Status)
		}
	})

	t.Run("fails job when publish fails", func(t *testing.T) {
		var failedReason string
		repo := &mockJobRepository{
			updateStatusFn: func(_ context.Context, _ uuid.UUID, from, to model.JobStatus, reason string) error {
				if from != model.JobWaiting || to != model.JobFailed {
					t.Errorf("transition %v->%v, want waiting->failed", from, to)
				}
				failedReason = reason
				return nil
			},
		}
		queue := &mockMessageQueue{
			publishFn: func(context.Context, repository.PipelineTask) error {
				return errors.New("broker gone")
			},
		}
		mgr := NewManager(repo, queue, 10)

		_, err := mgr.Enqueue(context.Background(), input)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(failedReason, "enqueue") {
			t.Errorf("failedReason = %q, want enqueue prefix", failedReason)
		}
	})
}

func TestManager_Cancel(t *testing.T) {
	t.Run("terminal job", func(t *testing.T) {
		job := model.NewProcessingJob(model.NewFilmOwner("F1"), model.JobTypeFilm, "movie.mp4", "q1")
		job.Status = model.JobCompleted
		repo := &mockJobRepository{
			getByIDFn: func(context.Context, uuid.UUID) (*model.ProcessingJob, error) { return job, nil },
		}
		mgr := NewManager(repo, &mockMessageQueue{}, 10)

		_, err := mgr.Cancel(context.Background(), job.ID)
		if !errors.Is(err, repository.ErrJobAlreadyFinished) {
			t.Errorf("error = %v, want ErrJobAlreadyFinished", err)
		}
	})

	t.Run("waiting job flips to cancelled", func(t *testing.T) {
		job := model.NewProcessingJob(model.NewFilmOwner("F1"), model.JobTypeFilm, "movie.mp4", "q1")
		flagSet := false
		transitioned := false
		repo := &mockJobRepository{
			getByIDFn: func(context.Context, uuid.UUID) (*model.ProcessingJob, error) { return job, nil },
			setCancelRequestedFn: func(context.Context, uuid.UUID) error {
				flagSet = true
				return nil
			},
			updateStatusFn: func(_ context.Context, _ uuid.UUID, from, to model.JobStatus, _ string) error {
				if from == model.JobWaiting && to == model.JobCancelled {
					transitioned = true
				}
				return nil
			},
		}
		mgr := NewManager(repo, &mockMessageQueue{}, 10)

		if _, err := mgr.Cancel(context.Background(), job.ID); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if !flagSet {
			t.Error("cancel flag was not set")
		}
		if !transitioned {
			t.Error("waiting job was not transitioned to cancelled")
		}
	})

	t.Run("active job only sets flag", func(t *testing.T) {
		job := model.NewProcessingJob(model.NewFilmOwner("F1"), model.JobTypeFilm, "movie.mp4", "q1")
		job.Status = model.JobActive
		transitioned := false
		repo := &mockJobRepository{
			getByIDFn: func(context.Context, uuid.UUID) (*model.ProcessingJob, error) { return job, nil },
			updateStatusFn: func(context.Context, uuid.UUID, model.JobStatus, model.JobStatus, string) error {
				transitioned = true
				return nil
			},
		}
		mgr := NewManager(repo, &mockMessageQueue{}, 10)

		if _, err := mgr.Cancel(context.Background(), job.ID); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if transitioned {
			t.Error("active job must not be transitioned directly; the worker acknowledges")
		}
	})
}

func TestManager_Retry(t *testing.T) {
	t.Run("only failed jobs", func(t *testing.T) {
		job := model.NewProcessingJob(model.NewFilmOwner("F1"), model.JobTypeFilm, "movie.mp4", "q1")
		repo := &mockJobRepository{
			getByIDFn: func(context.Context, uuid.UUID) (*model.ProcessingJob, error) { return job, nil },
		}
		mgr := NewManager(repo, &mockMessageQueue{}, 10)

		_, err := mgr.Retry(context.Background(), job.ID)
		if !errors.Is(err, model.ErrJobNotRetriable) {
			t.Errorf("error = %v, want ErrJobNotRetriable", err)
		}
	})

	t.Run("resets and republishes", func(t *testing.T) {
		job := model.NewProcessingJob(model.NewFilmOwner("F1"), model.JobTypeFilm, "movie.mp4", "q1")
		job.Status = model.JobFailed
		job.Progress = 40
		job.FailedReason = "TranscodeFailure(HD/encode): exit 1"
		oldQueueID := job.QueueJobID

		var updated *model.ProcessingJob
		var published *repository.PipelineTask
		repo := &mockJobRepository{
			getByIDFn: func(context.Context, uuid.UUID) (*model.ProcessingJob, error) { return job, nil },
			updateFn: func(_ context.Context, j *model.ProcessingJob) error {
				updated = j
				return nil
			},
		}
		queue := &mockMessageQueue{
			publishFn: func(_ context.Context, task repository.PipelineTask) error {
				published = &task
				return nil
			},
		}
		mgr := NewManager(repo, queue, 10)

		got, err := mgr.Retry(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("Retry failed: %v", err)
		}
		if updated == nil {
			t.Fatal("job was not persisted")
		}
		if got.Status != model.JobWaiting {
			t.Errorf("Status = %v, want waiting", got.Status)
		}
		if got.Progress != 0 {
			t.Errorf("Progress = %d, want 0", got.Progress)
		}
		if got.FailedReason != "" {
			t.Errorf("FailedReason = %q, want empty", got.FailedReason)
		}
		if got.RetryCount != 1 {
			t.Errorf("RetryCount = %d, want 1", got.RetryCount)
		}
		if got.QueueJobID == oldQueueID {
			t.Error("QueueJobID was not refreshed")
		}
		if published == nil {
			t.Fatal("expected a published task")
		}
		if !strings.HasPrefix(published.ClientID, "retry-") {
			t.Errorf("ClientID = %q, want retry- prefix", published.ClientID)
		}
	})
}

func TestManager_FixStuck(t *testing.T) {
	stuck := model.NewProcessingJob(model.NewFilmOwner("F1"), model.JobTypeFilm, "movie.mp4", "q1")
	stuck.Status = model.JobActive

	var reason string
	repo := &mockJobRepository{
		listActiveWithoutQFn: func(context.Context, []string) ([]*model.ProcessingJob, error) {
			return []*model.ProcessingJob{stuck}, nil
		},
		updateStatusFn: func(_ context.Context, _ uuid.UUID, from, to model.JobStatus, r string) error {
			if from != model.JobActive || to != model.JobFailed {
				t.Errorf("transition %v->%v, want active->failed", from, to)
			}
			reason = r
			return nil
		},
	}
	mgr := NewManager(repo, &mockMessageQueue{}, 10)

	n, err := mgr.FixStuck(context.Background(), nil)
	if err != nil {
		t.Fatalf("FixStuck failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reclaimed = %d, want 1", n)
	}
	if reason != AbandonedReason {
		t.Errorf("reason = %q, want %q", reason, AbandonedReason)
	}
}

func TestManager_Clear_RefusesNonTerminal(t *testing.T) {
	mgr := NewManager(&mockJobRepository{}, &mockMessageQueue{}, 10)

	_, err := mgr.Clear(context.Background(), []model.JobStatus{model.JobActive})
	if !errors.Is(err, ErrNonTerminalClear) {
		t.Errorf("error = %v, want ErrNonTerminalClear", err)
	}
}
