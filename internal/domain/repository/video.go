package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/domain/model"
)

// VideoRepository persists VideoArtifact rows. Implementations are provided
// by the infrastructure layer (PostgreSQL).
type VideoRepository interface {
	// Create persists a new artifact. Returns ErrDuplicateArtifact if
	// (owner, name) or the (owner, resolution, isTrailer=false) invariant
	// is violated.
	Create(ctx context.Context, artifact *model.VideoArtifact) error

	// GetByID retrieves an artifact by its unique identifier.
	GetByID(ctx context.Context, id uuid.UUID) (*model.VideoArtifact, error)

	// ListByOwner retrieves every artifact belonging to an owner, in no
	// particular order.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.VideoArtifact, error)

	// ListRungsByOwner retrieves the non-trailer ladder rungs already
	// produced for an owner. Used by the preTranscodeHook to skip rungs
	// a prior, possibly crashed, attempt already completed.
	ListRungsByOwner(ctx context.Context, ownerID string) ([]*model.VideoArtifact, error)

	// Delete removes an artifact row, used when a cancelled rung's
	// in-flight insert must be undone.
	Delete(ctx context.Context, id uuid.UUID) error
}
