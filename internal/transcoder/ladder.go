package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"

	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
)

// ErrCancelled is returned by RunLadder when the cancel token trips
// before the ladder finishes.
var ErrCancelled = fmt.Errorf("transcoder: cancelled")

// Engine drives an external encoder to produce a resolution ladder,
// bounding CPU use with a shared heavy-work semaphore so that, across
// concurrently-running jobs, no more rungs encode at once than the
// semaphore's size allows.
type Engine struct {
	encoder *Encoder
	heavy   *semaphore.Weighted
}

// NewEngine builds an Engine whose heavy-work semaphore allows up to
// concurrency simultaneous encodes across all jobs this process drives.
func NewEngine(cfg Config, concurrency int64) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		encoder: NewEncoder(cfg),
		heavy:   semaphore.NewWeighted(concurrency),
	}
}

// RunLadder produces req.Ladder's rungs sequentially, skipping any rung
// whose target height exceeds the source height. previousRung ≺ nextRung:
// the engine never starts rung i+1 before rung i's encode+segment+upload
// (via OnRungComplete) finishes.
func (e *Engine) RunLadder(ctx context.Context, req LadderRequest) error {
	for _, res := range req.Ladder {
		if req.CancelToken != nil && req.CancelToken.Cancelled() {
			return ErrCancelled
		}
		if res.Height() > req.SourceHeight {
			continue
		}

		if err := e.runRung(ctx, req, res); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runRung(ctx context.Context, req LadderRequest, res model.Resolution) error {
	if err := e.heavy.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("transcoder: acquire heavy-work slot: %w", err)
	}
	defer e.heavy.Release(1)

	rungCtx := ctx
	var cancel context.CancelFunc
	if req.CancelToken != nil {
		rungCtx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-req.CancelToken.Done():
				cancel()
			case <-rungCtx.Done():
			}
		}()
	}

	label := string(res)
	mp4Path := filepath.Join(req.OutputDir, fmt.Sprintf("%s_%s.mp4", label, req.BaseName))
	hlsDir := filepath.Join(req.OutputDir, fmt.Sprintf("hls_%s_%s", label, req.BaseName))

	onPercent := func(pct int) {
		if req.OnProgress != nil {
			req.OnProgress(res, pct)
		}
	}

	if err := e.encoder.encode(rungCtx, req.SourcePath, mp4Path, res.Height(), req.SourceDurationSec, onPercent); err != nil {
		os.Remove(mp4Path)
		if req.CancelToken != nil && req.CancelToken.Cancelled() {
			return ErrCancelled
		}
		return &repository.TranscodeFailureError{Resolution: label, Stage: "encode", Err: err}
	}

	if req.CancelToken != nil && req.CancelToken.Cancelled() {
		os.Remove(mp4Path)
		return ErrCancelled
	}

	playlistPath, err := e.encoder.segment(rungCtx, mp4Path, hlsDir, label, req.BaseName, req.SegmentDurationSec)
	if err != nil {
		os.RemoveAll(hlsDir)
		if req.CancelToken != nil && req.CancelToken.Cancelled() {
			return ErrCancelled
		}
		return &repository.TranscodeFailureError{Resolution: label, Stage: "segment", Err: err}
	}

	if req.CancelToken != nil && req.CancelToken.Cancelled() {
		os.Remove(mp4Path)
		os.RemoveAll(hlsDir)
		return ErrCancelled
	}

	if req.OnRungComplete != nil {
		if err := req.OnRungComplete(RungOutput{
			Resolution:   res,
			MP4Path:      mp4Path,
			HLSDir:       hlsDir,
			PlaylistPath: playlistPath,
		}); err != nil {
			return fmt.Errorf("transcoder: rung complete callback: %w", err)
		}
	}

	return nil
}
