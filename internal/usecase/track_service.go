package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
)

// TrackService resolves playable tracks for the stream server.
type TrackService interface {
	// GetTrack retrieves a track (video artifact) by ID.
	GetTrack(ctx context.Context, trackID uuid.UUID) (*model.VideoArtifact, error)
}

type trackService struct {
	repo repository.VideoRepository
}

// NewTrackService creates a new TrackService instance.
func NewTrackService(repo repository.VideoRepository) TrackService {
	return &trackService{repo: repo}
}

func (s *trackService) GetTrack(ctx context.Context, trackID uuid.UUID) (*model.VideoArtifact, error) {
	return s.repo.GetByID(ctx, trackID)
}
