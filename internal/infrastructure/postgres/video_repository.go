package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VideoRepository implements repository.VideoRepository using PostgreSQL.
type VideoRepository struct {
	db DBTX
}

// NewVideoRepository creates a new VideoRepository instance.
func NewVideoRepository(db DBTX) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoColumns = `id, owner_kind, owner_id, film_id, season_id, episode_id, name, url, format,
		resolution, encoding, size, duration_sec, bitrate, is_trailer, hls_playlist_key, created_at`

// Create persists a new artifact row. The unique indexes on
// (owner_id, name) and (owner_id, resolution) WHERE NOT is_trailer back
// the ladder's uniqueness invariants.
func (r *VideoRepository) Create(ctx context.Context, artifact *model.VideoArtifact) error {
	const query = `
		INSERT INTO video_artifacts (` + videoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.Exec(ctx, query,
		artifact.ID,
		string(artifact.Owner.Kind),
		artifact.Owner.ID(),
		nullString(artifact.Owner.FilmID),
		nullString(artifact.Owner.SeasonID),
		nullString(artifact.Owner.EpisodeID),
		artifact.Name,
		artifact.URL,
		artifact.Format,
		string(artifact.Resolution),
		artifact.Encoding,
		artifact.Size,
		artifact.DurationSec,
		artifact.Bitrate,
		artifact.IsTrailer,
		nullString(artifact.HLSPlaylistKey),
		artifact.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateArtifact
		}
		return fmt.Errorf("failed to create video artifact: %w", err)
	}

	return nil
}

// GetByID retrieves an artifact by its unique identifier.
func (r *VideoRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.VideoArtifact, error) {
	const query = `
		SELECT ` + videoColumns + `
		FROM video_artifacts
		WHERE id = $1
	`

	artifact, err := scanArtifact(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get video artifact by ID: %w", err)
	}

	return artifact, nil
}

// ListByOwner retrieves every artifact belonging to an owner.
func (r *VideoRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.VideoArtifact, error) {
	const query = `
		SELECT ` + videoColumns + `
		FROM video_artifacts
		WHERE owner_id = $1
		ORDER BY created_at
	`

	return r.listArtifacts(ctx, query, ownerID)
}

// ListRungsByOwner retrieves the non-trailer ladder rungs already produced
// for an owner, used to skip completed rungs on a retried job.
func (r *VideoRepository) ListRungsByOwner(ctx context.Context, ownerID string) ([]*model.VideoArtifact, error) {
	const query = `
		SELECT ` + videoColumns + `
		FROM video_artifacts
		WHERE owner_id = $1 AND NOT is_trailer
		ORDER BY created_at
	`

	return r.listArtifacts(ctx, query, ownerID)
}

// Delete removes an artifact row.
func (r *VideoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM video_artifacts WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete video artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *VideoRepository) listArtifacts(ctx context.Context, query string, args ...any) ([]*model.VideoArtifact, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query video artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*model.VideoArtifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating video artifacts: %w", err)
	}

	return artifacts, nil
}

// scanArtifact scans a single row into a VideoArtifact model.
func scanArtifact(row pgx.Row) (*model.VideoArtifact, error) {
	var (
		artifact    model.VideoArtifact
		ownerKind   string
		ownerID     string
		filmID      *string
		seasonID    *string
		episodeID   *string
		resolution  string
		playlistKey *string
	)

	err := row.Scan(
		&artifact.ID,
		&ownerKind,
		&ownerID,
		&filmID,
		&seasonID,
		&episodeID,
		&artifact.Name,
		&artifact.URL,
		&artifact.Format,
		&resolution,
		&artifact.Encoding,
		&artifact.Size,
		&artifact.DurationSec,
		&artifact.Bitrate,
		&artifact.IsTrailer,
		&playlistKey,
		&artifact.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	artifact.Owner = model.Owner{Kind: model.OwnerKind(ownerKind)}
	if filmID != nil {
		artifact.Owner.FilmID = *filmID
	}
	if seasonID != nil {
		artifact.Owner.SeasonID = *seasonID
	}
	if episodeID != nil {
		artifact.Owner.EpisodeID = *episodeID
	}
	artifact.Resolution = model.Resolution(resolution)
	if playlistKey != nil {
		artifact.HLSPlaylistKey = *playlistKey
	}

	return &artifact, nil
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time verification that VideoRepository implements repository.VideoRepository.
var _ repository.VideoRepository = (*VideoRepository)(nil)
