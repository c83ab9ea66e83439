package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/filmdist/ingest/internal/domain/model"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func testArtifact(t *testing.T) *model.VideoArtifact {
	t.Helper()

	artifact, err := model.NewVideoArtifact(
		model.NewFilmOwner("F1"),
		"HD_movie.mp4",
		model.ResolutionHD,
		482_000_000,
		2_628_000,
		5400,
		false,
	)
	if err != nil {
		t.Fatalf("NewVideoArtifact failed: %v", err)
	}
	artifact.URL = "media/F1/HD_movie.mp4"
	artifact.HLSPlaylistKey = "hls_HD_movie/HD_movie.m3u8"
	artifact.CreatedAt = artifact.CreatedAt.Truncate(time.Microsecond)
	return artifact
}

func TestRedisTrackCache_Get_CacheHit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	trackCache := NewRedisTrackCache(client)
	ctx := context.Background()

	track := testArtifact(t)

	if err := trackCache.Set(ctx, track, 5*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := trackCache.Get(ctx, track.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected track, got nil")
	}

	if got.ID != track.ID {
		t.Errorf("ID = %v, want %v", got.ID, track.ID)
	}
	if got.Owner != track.Owner {
		t.Errorf("Owner = %v, want %v", got.Owner, track.Owner)
	}
	if got.Name != track.Name {
		t.Errorf("Name = %v, want %v", got.Name, track.Name)
	}
	if got.Resolution != track.Resolution {
		t.Errorf("Resolution = %v, want %v", got.Resolution, track.Resolution)
	}
	if got.HLSPlaylistKey != track.HLSPlaylistKey {
		t.Errorf("HLSPlaylistKey = %v, want %v", got.HLSPlaylistKey, track.HLSPlaylistKey)
	}
	if got.IsTrailer != track.IsTrailer {
		t.Errorf("IsTrailer = %v, want %v", got.IsTrailer, track.IsTrailer)
	}
	if !got.CreatedAt.Equal(track.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, track.CreatedAt)
	}
}

func TestRedisTrackCache_Get_CacheMiss(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	trackCache := NewRedisTrackCache(client)

	got, err := trackCache.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on cache miss, got %v", got)
	}
}

func TestRedisTrackCache_Delete(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	trackCache := NewRedisTrackCache(client)
	ctx := context.Background()

	track := testArtifact(t)
	if err := trackCache.Set(ctx, track, 5*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := trackCache.Delete(ctx, track.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := trackCache.Get(ctx, track.ID)
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %v", got)
	}
}

func TestRedisTrackCache_Delete_MissingKey(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	trackCache := NewRedisTrackCache(client)

	if err := trackCache.Delete(context.Background(), uuid.New()); err != nil {
		t.Errorf("Delete of missing key should be nil, got %v", err)
	}
}

func TestRedisTrackCache_Set_RespectsTTL(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	trackCache := NewRedisTrackCache(client)
	ctx := context.Background()

	track := testArtifact(t)
	if err := trackCache.Set(ctx, track, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ttl := client.TTL(ctx, trackCacheKeyPrefix+track.ID.String()).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}
}
