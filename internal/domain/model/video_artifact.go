package model

import (
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var (
	ErrInvalidOwner      = errors.New("owner must reference exactly one film, season+film, or episode")
	ErrEmptyArtifactName = errors.New("artifact name cannot be empty")
)

// VideoArtifact is a persisted record created on successful ladder-rung
// upload.
type VideoArtifact struct {
	ID             uuid.UUID
	Owner          Owner
	Name           string // storage key
	URL            string // resolved CDN URL
	Format         string // MIME type
	Resolution     Resolution
	Encoding       string // codec tag
	Size           string // human-readable, e.g. "482 MB"
	DurationSec    float64
	Bitrate        string // human-readable, e.g. "2.5 Mbps"
	IsTrailer      bool
	HLSPlaylistKey string
	CreatedAt      time.Time
}

// NewVideoArtifact builds a VideoArtifact for a completed ladder rung or
// trailer upload, formatting size and bitrate as human-readable strings.
func NewVideoArtifact(owner Owner, name string, resolution Resolution, sizeBytes int64, bitrateBps int64, durationSec float64, isTrailer bool) (*VideoArtifact, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}
	if name == "" {
		return nil, ErrEmptyArtifactName
	}

	return &VideoArtifact{
		ID:          uuid.New(),
		Owner:       owner,
		Name:        name,
		Format:      "video/mp4",
		Resolution:  resolution,
		Encoding:    "h264",
		Size:        humanize.Bytes(uint64(sizeBytes)),
		DurationSec: durationSec,
		Bitrate:     humanize.SI(float64(bitrateBps), "bps"),
		IsTrailer:   isTrailer,
		CreatedAt:   time.Now(),
	}, nil
}

// UniqueKey returns the (owner, name) tuple that must be unique across
// video artifacts.
func (v *VideoArtifact) UniqueKey() (ownerID, name string) {
	return v.Owner.ID(), v.Name
}

// RungKey returns the (owner, resolution) tuple that must be unique among
// non-trailer artifacts.
func (v *VideoArtifact) RungKey() (ownerID string, resolution Resolution, ok bool) {
	if v.IsTrailer {
		return "", "", false
	}
	return v.Owner.ID(), v.Resolution, true
}
