package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
)

// TrackCache defines the interface for caching playable track metadata.
// The stream server resolves a track on every range request, so lookups
// are cached aggressively. Implementations should handle
// serialization/deserialization transparently.
type TrackCache interface {
	// Get retrieves a track from cache by ID.
	// Returns nil, nil if the track is not found in cache (cache miss).
	Get(ctx context.Context, trackID uuid.UUID) (*model.VideoArtifact, error)

	// Set stores a track in cache with the specified TTL.
	Set(ctx context.Context, track *model.VideoArtifact, ttl time.Duration) error

	// Delete removes a track from cache by ID.
	// Returns nil if the track was not in cache.
	Delete(ctx context.Context, trackID uuid.UUID) error
}
