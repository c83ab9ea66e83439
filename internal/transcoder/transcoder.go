package transcoder

import (
	"sync"

	"github.com/filmdist/ingest/internal/domain/model"
)

// CancelToken is tripped cooperatively: the engine checks it at rung
// boundaries and mid-encode, killing the running ffmpeg subprocess on
// trip rather than waiting for it to finish.
type CancelToken struct {
	once sync.Once
	ch   chan struct{}
}

func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

func (t *CancelToken) Done() <-chan struct{} {
	return t.ch
}

// RungOutput describes the local artifacts produced for one completed
// ladder rung, handed to OnRungComplete for upload and persistence.
type RungOutput struct {
	Resolution   model.Resolution
	MP4Path      string
	HLSDir       string
	PlaylistPath string
}

// LadderRequest drives one run of the ladder engine for a single source.
type LadderRequest struct {
	SourcePath         string
	SourceHeight       int
	SourceDurationSec  float64
	OutputDir          string
	BaseName           string // sanitized file name, no extension games -- used verbatim in output names
	Ladder             []model.Resolution
	SegmentDurationSec int

	// OnProgress reports a merged percentage per rung as it encodes.
	OnProgress func(resolution model.Resolution, percent int)

	// OnRungComplete is invoked once a rung's encode+segment phases
	// finish; the metadata row and object-store upload happen inside
	// this callback so they complete within the same logical step.
	OnRungComplete func(output RungOutput) error

	CancelToken *CancelToken
}
