package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/filmdist/ingest/internal/chunkstore"
	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
	"github.com/filmdist/ingest/internal/infrastructure/metrics"
	"github.com/filmdist/ingest/internal/jobs"
)

// CompleteUploadInput finalizes a chunked upload into a pipeline job.
type CompleteUploadInput struct {
	ClientID string
	FileName string
	Type     model.JobType
	Owner    model.Owner
}

// UploadService accepts upload chunks and turns completed uploads into
// processing jobs.
type UploadService interface {
	// SaveChunk buffers one chunk on local disk. Returns the chunk path.
	SaveChunk(ctx context.Context, originalName string, startByte int64, data io.Reader) (string, error)

	// HasChunk reports whether the chunk at startByte was already saved,
	// letting clients resume interrupted uploads without re-sending.
	HasChunk(originalName string, startByte int64) bool

	// CompleteUpload creates a processing job for the accumulated chunk
	// set and enqueues its pipeline task. The chunk set must contain the
	// first chunk (offset 0); gaps beyond that surface at combine time.
	CompleteUpload(ctx context.Context, input CompleteUploadInput) (*model.ProcessingJob, error)
}

type uploadService struct {
	chunks *chunkstore.Store
	jobs   *jobs.Manager
}

// NewUploadService creates a new UploadService instance.
func NewUploadService(chunks *chunkstore.Store, jobManager *jobs.Manager) UploadService {
	return &uploadService{
		chunks: chunks,
		jobs:   jobManager,
	}
}

func (s *uploadService) SaveChunk(_ context.Context, originalName string, startByte int64, data io.Reader) (string, error) {
	if startByte < 0 {
		return "", fmt.Errorf("negative chunk offset %d", startByte)
	}

	path, err := s.chunks.SaveChunk(originalName, startByte, data)
	if err != nil {
		return "", err
	}

	metrics.ChunksReceivedTotal.Inc()
	return path, nil
}

func (s *uploadService) HasChunk(originalName string, startByte int64) bool {
	return s.chunks.HasChunk(originalName, startByte)
}

func (s *uploadService) CompleteUpload(ctx context.Context, input CompleteUploadInput) (*model.ProcessingJob, error) {
	if !input.Owner.Valid() {
		return nil, model.ErrInvalidOwner
	}
	if strings.TrimSpace(input.FileName) == "" {
		return nil, model.ErrEmptyArtifactName
	}

	sanitized := chunkstore.Sanitize(input.FileName)
	if filepath.Ext(sanitized) == "" {
		sanitized += ".mp4"
	}

	// Reject immediately when nothing can ever be combined.
	if !s.chunks.HasChunk(sanitized, 0) {
		return nil, repository.ErrChunkMissing
	}

	return s.jobs.Enqueue(ctx, jobs.EnqueueInput{
		Owner:    input.Owner,
		Type:     input.Type,
		FileName: sanitized,
		ClientID: input.ClientID,
	})
}
