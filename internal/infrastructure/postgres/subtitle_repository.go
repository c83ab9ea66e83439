package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
)

// SubtitleRepository implements repository.SubtitleRepository using PostgreSQL.
type SubtitleRepository struct {
	db DBTX
}

// NewSubtitleRepository creates a new SubtitleRepository instance.
func NewSubtitleRepository(db DBTX) *SubtitleRepository {
	return &SubtitleRepository{db: db}
}

const subtitleColumns = `id, owner_kind, owner_id, film_id, season_id, episode_id, language,
		label, is_default, key`

// Upsert replaces any existing track for (owner, language), making
// subtitle upload idempotent.
func (r *SubtitleRepository) Upsert(ctx context.Context, track *model.SubtitleTrack) error {
	const query = `
		INSERT INTO subtitle_tracks (` + subtitleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_id, language)
		DO UPDATE SET label = EXCLUDED.label, is_default = EXCLUDED.is_default, key = EXCLUDED.key
	`

	_, err := r.db.Exec(ctx, query,
		track.ID,
		string(track.Owner.Kind),
		track.Owner.ID(),
		nullString(track.Owner.FilmID),
		nullString(track.Owner.SeasonID),
		nullString(track.Owner.EpisodeID),
		track.Language,
		track.Label,
		track.IsDefault,
		track.Key,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subtitle track: %w", err)
	}

	return nil
}

// ListByOwner returns every subtitle track registered for an owner,
// ordered by language for stable master-playlist output.
func (r *SubtitleRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.SubtitleTrack, error) {
	const query = `
		SELECT ` + subtitleColumns + `
		FROM subtitle_tracks
		WHERE owner_id = $1
		ORDER BY language
	`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtitle tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*model.SubtitleTrack
	for rows.Next() {
		track, err := scanSubtitle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subtitle track: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subtitle tracks: %w", err)
	}

	return tracks, nil
}

// GetByID retrieves a subtitle track by its unique identifier.
func (r *SubtitleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SubtitleTrack, error) {
	const query = `
		SELECT ` + subtitleColumns + `
		FROM subtitle_tracks
		WHERE id = $1
	`

	track, err := scanSubtitle(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subtitle track by ID: %w", err)
	}

	return track, nil
}

// scanSubtitle scans a single row into a SubtitleTrack model.
func scanSubtitle(row pgx.Row) (*model.SubtitleTrack, error) {
	var (
		track     model.SubtitleTrack
		ownerKind string
		ownerID   string
		filmID    *string
		seasonID  *string
		episodeID *string
	)

	err := row.Scan(
		&track.ID,
		&ownerKind,
		&ownerID,
		&filmID,
		&seasonID,
		&episodeID,
		&track.Language,
		&track.Label,
		&track.IsDefault,
		&track.Key,
	)
	if err != nil {
		return nil, err
	}

	track.Owner = model.Owner{Kind: model.OwnerKind(ownerKind)}
	if filmID != nil {
		track.Owner.FilmID = *filmID
	}
	if seasonID != nil {
		track.Owner.SeasonID = *seasonID
	}
	if episodeID != nil {
		track.Owner.EpisodeID = *episodeID
	}

	return &track, nil
}

// Compile-time verification that SubtitleRepository implements repository.SubtitleRepository.
var _ repository.SubtitleRepository = (*SubtitleRepository)(nil)
