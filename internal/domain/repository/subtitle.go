package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
)

// SubtitleRepository persists SubtitleTrack rows.
type SubtitleRepository interface {
	// Upsert replaces any existing track for (owner, language), making
	// subtitle upload idempotent.
	Upsert(ctx context.Context, track *model.SubtitleTrack) error

	// ListByOwner returns every subtitle track registered for an owner,
	// used to rebuild the master playlist's subtitle group.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.SubtitleTrack, error)

	GetByID(ctx context.Context, id uuid.UUID) (*model.SubtitleTrack, error)
}
