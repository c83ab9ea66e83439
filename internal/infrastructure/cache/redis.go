package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/filmdist/ingest/internal/domain/model"
)

const (
	// trackCacheKeyPrefix is the prefix for track cache keys in Redis.
	trackCacheKeyPrefix = "track:"
)

// trackJSON is the JSON representation of a VideoArtifact for caching.
// Using an explicit struct avoids coupling to domain model's JSON tags.
type trackJSON struct {
	ID             string  `json:"id"`
	OwnerKind      string  `json:"owner_kind"`
	FilmID         string  `json:"film_id"`
	SeasonID       string  `json:"season_id"`
	EpisodeID      string  `json:"episode_id"`
	Name           string  `json:"name"`
	URL            string  `json:"url"`
	Format         string  `json:"format"`
	Resolution     string  `json:"resolution"`
	Encoding       string  `json:"encoding"`
	Size           string  `json:"size"`
	DurationSec    float64 `json:"duration_sec"`
	Bitrate        string  `json:"bitrate"`
	IsTrailer      bool    `json:"is_trailer"`
	HLSPlaylistKey string  `json:"hls_playlist_key"`
	CreatedAt      string  `json:"created_at"`
}

// RedisTrackCache implements TrackCache using Redis as the backing store.
type RedisTrackCache struct {
	client *redis.Client
}

// NewRedisTrackCache creates a new Redis-backed track cache.
func NewRedisTrackCache(client *redis.Client) *RedisTrackCache {
	return &RedisTrackCache{
		client: client,
	}
}

// Get retrieves a track from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisTrackCache) Get(ctx context.Context, trackID uuid.UUID) (*model.VideoArtifact, error) {
	key := c.buildKey(trackID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	track, err := c.deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("deserialize track: %w", err)
	}

	return track, nil
}

// Set stores a track in Redis cache with the specified TTL.
func (c *RedisTrackCache) Set(ctx context.Context, track *model.VideoArtifact, ttl time.Duration) error {
	key := c.buildKey(track.ID)

	data, err := c.serialize(track)
	if err != nil {
		return fmt.Errorf("serialize track: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a track from Redis cache.
func (c *RedisTrackCache) Delete(ctx context.Context, trackID uuid.UUID) error {
	key := c.buildKey(trackID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// buildKey constructs the Redis key for a track.
func (c *RedisTrackCache) buildKey(trackID uuid.UUID) string {
	return trackCacheKeyPrefix + trackID.String()
}

// serialize converts a VideoArtifact to JSON bytes.
func (c *RedisTrackCache) serialize(track *model.VideoArtifact) ([]byte, error) {
	v := trackJSON{
		ID:             track.ID.String(),
		OwnerKind:      string(track.Owner.Kind),
		FilmID:         track.Owner.FilmID,
		SeasonID:       track.Owner.SeasonID,
		EpisodeID:      track.Owner.EpisodeID,
		Name:           track.Name,
		URL:            track.URL,
		Format:         track.Format,
		Resolution:     string(track.Resolution),
		Encoding:       track.Encoding,
		Size:           track.Size,
		DurationSec:    track.DurationSec,
		Bitrate:        track.Bitrate,
		IsTrailer:      track.IsTrailer,
		HLSPlaylistKey: track.HLSPlaylistKey,
		CreatedAt:      track.CreatedAt.Format(time.RFC3339Nano),
	}
	return json.Marshal(v)
}

// deserialize converts JSON bytes to a VideoArtifact.
func (c *RedisTrackCache) deserialize(data []byte) (*model.VideoArtifact, error) {
	var v trackJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(v.ID)
	if err != nil {
		return nil, fmt.Errorf("parse track ID: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &model.VideoArtifact{
		ID: id,
		Owner: model.Owner{
			Kind:      model.OwnerKind(v.OwnerKind),
			FilmID:    v.FilmID,
			SeasonID:  v.SeasonID,
			EpisodeID: v.EpisodeID,
		},
		Name:           v.Name,
		URL:            v.URL,
		Format:         v.Format,
		Resolution:     model.Resolution(v.Resolution),
		Encoding:       v.Encoding,
		Size:           v.Size,
		DurationSec:    v.DurationSec,
		Bitrate:        v.Bitrate,
		IsTrailer:      v.IsTrailer,
		HLSPlaylistKey: v.HLSPlaylistKey,
		CreatedAt:      createdAt,
	}, nil
}

// Compile-time verification that RedisTrackCache implements TrackCache.
var _ TrackCache = (*RedisTrackCache)(nil)
