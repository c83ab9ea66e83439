package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/infrastructure/cache"
	"github.com/filmdist/ingest/internal/infrastructure/metrics"
)

// CachedTrackServiceConfig holds configuration for CachedTrackService.
type CachedTrackServiceConfig struct {
	// CacheTTL is the TTL for cached track metadata.
	CacheTTL time.Duration
}

// DefaultCachedTrackServiceConfig returns the default configuration.
func DefaultCachedTrackServiceConfig() CachedTrackServiceConfig {
	return CachedTrackServiceConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// cachedTrackService wraps TrackService with caching capabilities. The
// stream server hits GetTrack on every range request for a playing
// video, so the cache-aside layer carries nearly all of that read load.
type cachedTrackService struct {
	delegate TrackService
	cache    cache.TrackCache
	sfGroup  singleflight.Group

	cacheTTL time.Duration
}

// NewCachedTrackService creates a new CachedTrackService wrapping the
// provided TrackService.
func NewCachedTrackService(
	delegate TrackService,
	trackCache cache.TrackCache,
	cfg CachedTrackServiceConfig,
) TrackService {
	return &cachedTrackService{
		delegate: delegate,
		cache:    trackCache,
		cacheTTL: cfg.CacheTTL,
	}
}

// GetTrack retrieves track information with caching.
// Uses singleflight to prevent cache stampede on concurrent requests for
// the same track.
func (s *cachedTrackService) GetTrack(ctx context.Context, trackID uuid.UUID) (*model.VideoArtifact, error) {
	key := trackID.String()
	result, err, shared := s.sfGroup.Do(key, func() (any, error) {
		return s.getTrackWithCache(ctx, trackID)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}

	return result.(*model.VideoArtifact), nil
}

// getTrackWithCache implements the cache-aside pattern.
func (s *cachedTrackService) getTrackWithCache(ctx context.Context, trackID uuid.UUID) (*model.VideoArtifact, error) {
	track, err := s.cache.Get(ctx, trackID)
	if err != nil {
		// Log cache error but continue to database
		slog.Warn("cache get failed, falling back to database",
			"track_id", trackID,
			"error", err,
		)
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
	}

	if track != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
		return track, nil // Cache hit
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()

	// Cache miss - fetch from database
	track, err = s.delegate.GetTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}

	// Store in cache (errors logged but not propagated)
	if err := s.cache.Set(ctx, track, s.cacheTTL); err != nil {
		slog.Warn("failed to cache track",
			"track_id", trackID,
			"error", err,
		)
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
	} else {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	}

	return track, nil
}

// InvalidateCache removes a track from the cache, so the next GetTrack
// reads it from the delegate again.
func (s *cachedTrackService) InvalidateCache(ctx context.Context, trackID uuid.UUID) error {
	return s.cache.Delete(ctx, trackID)
}
