// Package subtitles manages resolution-independent WebVTT tracks shared
// across every rung of an owner's ladder.
package subtitles

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
	"github.com/filmdist/ingest/internal/hls"
)

const maxSubtitleBytes = 5 << 20 // 5 MiB

var ErrNotVTT = errors.New("subtitles: content is not a WebVTT file")
var ErrTooLarge = errors.New("subtitles: file exceeds 5 MiB limit")

// RungLister supplies the completed rungs needed to rebuild the master
// playlist after a subtitle change.
type RungLister interface {
	ListRungsByOwner(ctx context.Context, ownerID string) ([]*model.VideoArtifact, error)
}

// UploadInput describes a single subtitle upload request.
type UploadInput struct {
	Owner     model.Owner
	FileName  string // the owning video's sanitized base name, shared across rungs
	Language  string
	Label     string
	IsDefault bool
	VTTBytes  []byte
}

// Manager uploads and replaces subtitle tracks, then rebuilds the owner's
// master playlist so the new track is picked up immediately.
type Manager struct {
	repo      repository.SubtitleRepository
	store     repository.ObjectStorage
	bucket    string
	videos    RungLister
	publisher *hls.Publisher
}

func NewManager(repo repository.SubtitleRepository, store repository.ObjectStorage, bucket string, videos RungLister, publisher *hls.Publisher) *Manager {
	return &Manager{repo: repo, store: store, bucket: bucket, videos: videos, publisher: publisher}
}

// Upload validates the VTT content, replaces any existing (owner,
// language) track, uploads the object to its shared-prefix key, and
// triggers a master-playlist rebuild so the track is live immediately.
func (m *Manager) Upload(ctx context.Context, in UploadInput) (*model.SubtitleTrack, error) {
	if len(in.VTTBytes) > maxSubtitleBytes {
		return nil, ErrTooLarge
	}
	if !looksLikeVTT(in.VTTBytes) {
		return nil, ErrNotVTT
	}

	track := model.NewSubtitleTrack(in.Owner, in.FileName, in.Language, in.Label, in.IsDefault)

	if _, err := m.store.PutMultipart(ctx, repository.PutMultipartInput{
		Bucket:      m.bucket,
		Key:         track.Key,
		Body:        bytes.NewReader(in.VTTBytes),
		Size:        int64(len(in.VTTBytes)),
		ContentType: "text/vtt",
	}); err != nil {
		return nil, fmt.Errorf("subtitles: upload %s: %w", track.Key, err)
	}

	if err := m.repo.Upsert(ctx, track); err != nil {
		return nil, fmt.Errorf("subtitles: persist track: %w", err)
	}

	if err := m.rebuildMaster(ctx, in.Owner, in.FileName); err != nil {
		return nil, fmt.Errorf("subtitles: rebuild master playlist: %w", err)
	}

	return track, nil
}

func (m *Manager) rebuildMaster(ctx context.Context, owner model.Owner, fileName string) error {
	ownerID := owner.ID()

	rungs, err := m.videos.ListRungsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	tracks, err := m.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}

	completed := make([]hls.CompletedRung, 0, len(rungs))
	for _, v := range rungs {
		completed = append(completed, hls.CompletedRung{
			Resolution:  v.Resolution,
			Width:       v.Resolution.Width(),
			Height:      v.Resolution.Height(),
			PlaylistKey: hls.VariantPlaylistKey(v.Resolution, fileName),
		})
	}

	subs := make([]hls.SubtitleEntry, 0, len(tracks))
	for _, t := range tracks {
		subs = append(subs, hls.SubtitleEntry{
			Language:  t.Language,
			Label:     t.Label,
			IsDefault: t.IsDefault,
			URI:       t.Key,
		})
	}

	return m.publisher.Publish(ctx, owner.Prefix(), fileName, completed, subs)
}

// looksLikeVTT reports whether the first non-blank line is "WEBVTT".
func looksLikeVTT(content []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		return strings.HasPrefix(line, "WEBVTT")
	}
	return false
}
