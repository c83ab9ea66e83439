package model

import "fmt"

// OwnerKind distinguishes which kind of catalog entity an artifact or job
// belongs to.
type OwnerKind string

const (
	OwnerFilm    OwnerKind = "film"
	OwnerEpisode OwnerKind = "episode"
)

// Owner is a tagged variant: a video/subtitle/job record is owned by
// exactly one film, or by one episode nested under a season+film. The
// core never needs more than these IDs.
type Owner struct {
	Kind      OwnerKind
	FilmID    string
	SeasonID  string
	EpisodeID string
}

// NewFilmOwner builds an Owner referring to a standalone film.
func NewFilmOwner(filmID string) Owner {
	return Owner{Kind: OwnerFilm, FilmID: filmID}
}

// NewEpisodeOwner builds an Owner referring to an episode nested under a
// season within a film.
func NewEpisodeOwner(filmID, seasonID, episodeID string) Owner {
	return Owner{Kind: OwnerEpisode, FilmID: filmID, SeasonID: seasonID, EpisodeID: episodeID}
}

// ID returns the resource id the owner's artifacts/jobs are keyed by:
// the film id for a film owner, the episode id for an episode owner.
func (o Owner) ID() string {
	if o.Kind == OwnerEpisode {
		return o.EpisodeID
	}
	return o.FilmID
}

// Prefix returns the object-store bucket/key prefix for this owner:
// "{filmId}" for a film, "{filmId}-{seasonId}" for an episode.
func (o Owner) Prefix() string {
	if o.Kind == OwnerEpisode {
		return fmt.Sprintf("%s-%s", o.FilmID, o.SeasonID)
	}
	return o.FilmID
}

func (o Owner) Valid() bool {
	switch o.Kind {
	case OwnerFilm:
		return o.FilmID != ""
	case OwnerEpisode:
		return o.FilmID != "" && o.SeasonID != "" && o.EpisodeID != ""
	default:
		return false
	}
}
