package model

import (
	"fmt"

	"github.com/google/uuid"
)

// SubtitleTrack is shared across all resolutions of the same owner.
type SubtitleTrack struct {
	ID        uuid.UUID
	Owner     Owner
	Language  string
	Label     string
	IsDefault bool
	Key       string
}

// NewSubtitleTrack builds a SubtitleTrack, deriving its shared-prefix object
// key from the owner's storage name (the sanitized file base name, not the
// owner prefix -- subtitles live at "subtitles/{fileName}/...").
func NewSubtitleTrack(owner Owner, fileName, language, label string, isDefault bool) *SubtitleTrack {
	return &SubtitleTrack{
		ID:        uuid.New(),
		Owner:     owner,
		Language:  language,
		Label:     label,
		IsDefault: isDefault,
		Key:       SubtitleKey(fileName, language),
	}
}

// SubtitleKey returns the shared-prefix key for a subtitle track:
// "subtitles/{ownerName}/{ownerName}_{lang}.vtt".
func SubtitleKey(fileName, language string) string {
	return fmt.Sprintf("subtitles/%s/%s_%s.vtt", fileName, fileName, language)
}
