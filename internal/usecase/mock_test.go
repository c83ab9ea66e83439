package usecase

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
)

// mockVideoRepository provides a configurable mock for VideoRepository.
type mockVideoRepository struct {
	createFn           func(ctx context.Context, artifact *model.VideoArtifact) error
	getByIDFn          func(ctx context.Context, id uuid.UUID) (*model.VideoArtifact, error)
	listByOwnerFn      func(ctx context.Context, ownerID string) ([]*model.VideoArtifact, error)
	listRungsByOwnerFn func(ctx context.Context, ownerID string) ([]*model.VideoArtifact, error)
	deleteFn           func(ctx context.Context, id uuid.UUID) error
}

func (m *mockVideoRepository) Create(ctx context.Context, artifact *model.VideoArtifact) error {
	if m.createFn != nil {
		return m.createFn(ctx, artifact)
	}
	return nil
}

func (m *mockVideoRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.VideoArtifact, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockVideoRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.VideoArtifact, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockVideoRepository) ListRungsByOwner(ctx context.Context, ownerID string) ([]*model.VideoArtifact, error) {
	if m.listRungsByOwnerFn != nil {
		return m.listRungsByOwnerFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockVideoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// mockSubtitleRepository provides a configurable mock for SubtitleRepository.
type mockSubtitleRepository struct {
	upsertFn      func(ctx context.Context, track *model.SubtitleTrack) error
	listByOwnerFn func(ctx context.Context, ownerID string) ([]*model.SubtitleTrack, error)
	getByIDFn     func(ctx context.Context, id uuid.UUID) (*model.SubtitleTrack, error)
}

func (m *mockSubtitleRepository) Upsert(ctx context.Context, track *model.SubtitleTrack) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, track)
	}
	return nil
}

func (m *mockSubtitleRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.SubtitleTrack, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockSubtitleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SubtitleTrack, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

// mockObjectStorage provides a configurable mock for ObjectStorage.
type mockObjectStorage struct {
	putMultipartFn func(ctx context.Context, in repository.PutMultipartInput) (repository.PutMultipartResult, error)
	headFn         func(ctx context.Context, bucket, key string) (repository.ObjectInfo, error)
	getRangeFn     func(ctx context.Context, bucket, key string, start, end int64) (io.ReadCloser, error)
	deleteFn       func(ctx context.Context, bucket, key string) error
	copyFn         func(ctx context.Context, bucket, src, dst string) error
}

func (m *mockObjectStorage) PutMultipart(ctx context.Context, in repository.PutMultipartInput) (repository.PutMultipartResult, error) {
	if m.putMultipartFn != nil {
		return m.putMultipartFn(ctx, in)
	}
	return repository.PutMultipartResult{URL: in.Bucket + "/" + in.Key}, nil
}

func (m *mockObjectStorage) Head(ctx context.Context, bucket, key string) (repository.ObjectInfo, error) {
	if m.headFn != nil {
		return m.headFn(ctx, bucket, key)
	}
	return repository.ObjectInfo{}, repository.ErrNotFound
}

func (m *mockObjectStorage) GetRange(ctx context.Context, bucket, key string, start, end int64) (io.ReadCloser, error) {
	if m.getRangeFn != nil {
		return m.getRangeFn(ctx, bucket, key, start, end)
	}
	return nil, repository.ErrNotFound
}

func (m *mockObjectStorage) Delete(ctx context.Context, bucket, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, bucket, key)
	}
	return nil
}

func (m *mockObjectStorage) Copy(ctx context.Context, bucket, src, dst string) error {
	if m.copyFn != nil {
		return m.copyFn(ctx, bucket, src, dst)
	}
	return nil
}

// mockJobRepository provides a configurable mock for JobRepository; the
// jobs.Manager under test wraps it directly.
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

// mockTrackCache provides a configurable mock for cache.TrackCache.
type mockTrackCache struct {
	getFn    func(ctx context.Context, trackID uuid.UUID) (*model.VideoArtifact, error)
	setFn    func(ctx context.Context, track *model.VideoArtifact, ttl time.Duration) error
	deleteFn func(ctx context.Context, trackID uuid.UUID) error
}

func (m *mockTrackCache) Get(ctx context.Context, trackID uuid.UUID) (*model.VideoArtifact, error) {
	if m.getFn != nil {
		return m.getFn(ctx, trackID)
	}
	return nil, nil
}

func (m *mockTrackCache) Set(ctx context.Context, track *model.VideoArtifact, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, track, ttl)
	}
	return nil
}

func (m *mockTrackCache) Delete(ctx context.Context, trackID uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, trackID)
	}
	return nil
}
