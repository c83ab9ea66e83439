package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/filmdist/ingest/internal/chunkstore"
	"github.com/filmdist/ingest/internal/cleanup"
	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
	"github.com/filmdist/ingest/internal/hls"
	"github.com/filmdist/ingest/internal/infrastructure/metrics"
	"github.com/filmdist/ingest/internal/jobs"
	"github.com/filmdist/ingest/internal/probe"
	"github.com/filmdist/ingest/internal/progress"
	"github.com/filmdist/ingest/internal/transcoder"
)

const (
	// cancelPollInterval is how often the worker re-reads the cooperative
	// cancel flag while a ladder is running.
	cancelPollInterval = 2 * time.Second

	// probeTimeout bounds the external probe subprocess.
	probeTimeout = 5 * time.Minute

	// uploadTimeout bounds a single object-store upload.
	uploadTimeout = 10 * time.Minute

	// uploadAttempts is the retry budget for transient object-store errors.
	uploadAttempts = 3
)

// PipelineServiceConfig holds configuration for PipelineService.
type PipelineServiceConfig struct {
	// Bucket is the object-store bucket all artifacts land in.
	Bucket string
	// SegmentDurationSec is the HLS target segment duration.
	SegmentDurationSec int
}

// PipelineService runs the full upload pipeline for one queued task:
// combine chunks, probe, transcode the ladder, package HLS, upload, and
// drive the job state machine.
type PipelineService interface {
	// ProcessTask handles one pipeline task from the message queue.
	// Returns nil on success and on deterministic failures (the job row
	// carries the reason); returns an error only for transient
	// infrastructure trouble that should trigger a queue-level retry.
	ProcessTask(ctx context.Context, task repository.PipelineTask) error
}

type pipelineService struct {
	jobs      *jobs.Manager
	videos    repository.VideoRepository
	subtitles repository.SubtitleRepository
	store     repository.ObjectStorage
	chunks    *chunkstore.Store
	prober    *probe.Prober
	engine    *transcoder.Engine
	publisher *hls.Publisher
	bus       *progress.Bus
	sweeper   *cleanup.Sweeper

	bucket             string
	segmentDurationSec int
}

// NewPipelineService creates a new PipelineService instance.
func NewPipelineService(
	jobManager *jobs.Manager,
	videos repository.VideoRepository,
	subtitleRepo repository.SubtitleRepository,
	store repository.ObjectStorage,
	chunks *chunkstore.Store,
	prober *probe.Prober,
	engine *transcoder.Engine,
	publisher *hls.Publisher,
	bus *progress.Bus,
	sweeper *cleanup.Sweeper,
	cfg PipelineServiceConfig,
) PipelineService {
	return &pipelineService{
		jobs:               jobManager,
		videos:             videos,
		subtitles:          subtitleRepo,
		store:              store,
		chunks:             chunks,
		prober:             prober,
		engine:             engine,
		publisher:          publisher,
		bus:                bus,
		sweeper:            sweeper,
		bucket:             cfg.Bucket,
		segmentDurationSec: cfg.SegmentDurationSec,
	}
}

// run carries the per-task state threaded through the pipeline stages.
type run struct {
	task      repository.PipelineTask
	job       *model.ProcessingJob
	sanitized string // full sanitized file name, e.g. "movie.mp4"
	baseName  string // extension-less base, e.g. "movie"
	token     *transcoder.CancelToken
}

func (s *pipelineService) ProcessTask(ctx context.Context, task repository.PipelineTask) error {
	job, err := s.jobs.GetJob(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("task for unknown job, dropping", "job_id", task.JobID)
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}

	sanitized := chunkstore.Sanitize(task.FileName)
	r := &run{
		task:      task,
		job:       job,
		sanitized: sanitized,
		baseName:  strings.TrimSuffix(sanitized, filepath.Ext(sanitized)),
		token:     transcoder.NewCancelToken(),
	}

	if job.Status.IsTerminal() {
		// Cancelled (or cleared) between enqueue and pickup.
		s.sweeper.Sweep(r.sanitized)
		return nil
	}

	if err := s.jobs.MarkActive(ctx, task.JobID); err != nil {
		if errors.Is(err, repository.ErrJobAlreadyFinished) {
			s.sweeper.Sweep(r.sanitized)
			return nil
		}
		return fmt.Errorf("activate job: %w", err)
	}

	stopWatch := s.watchCancel(ctx, task.JobID, r.token)
	defer stopWatch()

	if err := s.runPipeline(ctx, r); err != nil {
		return s.finishWithError(ctx, r, err)
	}

	if err := s.jobs.MarkCompleted(ctx, task.JobID, job.Type); err != nil &&
		!errors.Is(err, repository.ErrJobAlreadyFinished) {
		return fmt.Errorf("complete job: %w", err)
	}
	s.emit(ctx, r, 100, progress.Content{Type: contentTypeFor(job.Type)})
	s.sweeper.Sweep(r.sanitized)
	return nil
}

// runPipeline performs combine -> probe -> (ladder | trailer).
func (s *pipelineService) runPipeline(ctx context.Context, r *run) error {
	sourcePath, err := s.chunks.Combine(r.sanitized)
	if err != nil {
		if errors.Is(err, repository.ErrChunkMissing) {
			return fmt.Errorf("%w: %s", repository.ErrChunkMissing, r.sanitized)
		}
		return fmt.Errorf("combine chunks: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	info, err := s.prober.Probe(probeCtx, sourcePath)
	if err != nil {
		return err
	}

	if r.token.Cancelled() {
		return transcoder.ErrCancelled
	}

	if r.job.Type == model.JobTypeTrailer {
		return s.runTrailer(ctx, r, sourcePath, info)
	}
	return s.runLadder(ctx, r, sourcePath, info)
}

// runLadder drives the transcode engine through the active ladder,
// uploading and persisting each rung as it completes.
func (s *pipelineService) runLadder(ctx context.Context, r *run, sourcePath string, info probe.Result) error {
	existing, err := s.videos.ListRungsByOwner(ctx, r.job.Owner.ID())
	if err != nil {
		return fmt.Errorf("list existing rungs: %w", err)
	}
	done := make(map[model.Resolution]bool, len(existing))
	for _, v := range existing {
		done[v.Resolution] = true
	}

	// The pre-transcode filter: skip rungs a prior attempt already
	// persisted, and rungs that would upscale the source.
	var ladder []model.Resolution
	for _, res := range model.DefaultLadder() {
		if done[res] || res.Height() > info.Height {
			continue
		}
		ladder = append(ladder, res)
	}

	if len(ladder) == 0 {
		return s.rebuildMaster(ctx, r)
	}

	completed := 0
	total := len(ladder)

	req := transcoder.LadderRequest{
		SourcePath:         sourcePath,
		SourceHeight:       info.Height,
		SourceDurationSec:  info.DurationSec,
		OutputDir:          filepath.Dir(sourcePath),
		BaseName:           r.baseName,
		Ladder:             ladder,
		SegmentDurationSec: s.segmentDurationSec,
		CancelToken:        r.token,
		OnProgress: func(res model.Resolution, pct int) {
			s.emit(ctx, r, pct, progress.Content{Type: progress.ContentTranscode, Resolution: string(res)})
			s.jobs.ReportProgress(ctx, r.job.ID, (completed*100+pct)/total)
		},
		OnRungComplete: func(out transcoder.RungOutput) error {
			started := time.Now()
			if err := s.finishRung(ctx, r, out, info); err != nil {
				return err
			}
			metrics.TranscodeDurationSeconds.WithLabelValues(string(out.Resolution)).Observe(time.Since(started).Seconds())
			completed++
			s.jobs.ReportProgress(ctx, r.job.ID, completed*100/total)
			return nil
		},
	}

	return s.engine.RunLadder(ctx, req)
}

// finishRung uploads one rung's MP4 and HLS variant, persists the
// artifact row, and rebuilds the master playlist. The row insert and the
// object uploads complete within this step; an upload or insert failure
// aborts the remaining ladder with the rung row absent, and a failed
// master rebuild aborts it with the row already written.
func (s *pipelineService) finishRung(ctx context.Context, r *run, out transcoder.RungOutput, info probe.Result) error {
	prefix := r.job.Owner.Prefix()
	mp4Name := filepath.Base(out.MP4Path)

	stat, err := os.Stat(out.MP4Path)
	if err != nil {
		return fmt.Errorf("stat rung output: %w", err)
	}

	mp4File, err := os.Open(out.MP4Path)
	if err != nil {
		return fmt.Errorf("open rung output: %w", err)
	}
	defer mp4File.Close()

	result, err := s.putWithRetry(ctx, repository.PutMultipartInput{
		Bucket:      s.bucket,
		Key:         prefix + "/" + mp4Name,
		Body:        mp4File,
		Size:        stat.Size(),
		ContentType: "video/mp4",
		Public:      true,
		OnProgress: func(pct int) {
			s.emit(ctx, r, pct, progress.Content{Type: progress.ContentUpload, Resolution: string(out.Resolution)})
		},
	})
	if err != nil {
		return fmt.Errorf("upload rung mp4: %w", err)
	}

	if err := s.uploadVariantDir(ctx, prefix, out); err != nil {
		return err
	}

	artifact, err := model.NewVideoArtifact(
		r.job.Owner,
		mp4Name,
		out.Resolution,
		stat.Size(),
		int64(out.Resolution.TotalBitrateBps()),
		info.DurationSec,
		false,
	)
	if err != nil {
		return fmt.Errorf("build artifact: %w", err)
	}
	artifact.URL = result.URL
	artifact.Encoding = info.VideoCodec
	artifact.HLSPlaylistKey = hls.VariantPlaylistKey(out.Resolution, r.baseName)

	if err := s.videos.Create(ctx, artifact); err != nil {
		if errors.Is(err, repository.ErrDuplicateArtifact) {
			// A concurrent or crashed prior attempt already owns this
			// rung; the uploaded objects are byte-identical re-renders.
			slog.Warn("rung already persisted, keeping existing row",
				"owner", r.job.Owner.ID(), "resolution", out.Resolution)
		} else {
			return fmt.Errorf("persist artifact: %w", err)
		}
	}

	return s.rebuildMaster(ctx, r)
}

// uploadVariantDir uploads the variant playlist and every segment under
// the rung's hls_* directory.
func (s *pipelineService) uploadVariantDir(ctx context.Context, prefix string, out transcoder.RungOutput) error {
	entries, err := os.ReadDir(out.HLSDir)
	if err != nil {
		return fmt.Errorf("read variant dir: %w", err)
	}

	dirName := filepath.Base(out.HLSDir)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		contentType := "video/mp2t"
		if filepath.Ext(e.Name()) == ".m3u8" {
			contentType = "application/vnd.apple.mpegurl"
		}

		localPath := filepath.Join(out.HLSDir, e.Name())
		stat, err := os.Stat(localPath)
		if err != nil {
			return fmt.Errorf("stat segment: %w", err)
		}
		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("open segment: %w", err)
		}

		_, err = s.putWithRetry(ctx, repository.PutMultipartInput{
			Bucket:      s.bucket,
			Key:         prefix + "/" + dirName + "/" + e.Name(),
			Body:        f,
			Size:        stat.Size(),
			ContentType: contentType,
			Public:      true,
		})
		f.Close()
		if err != nil {
			return fmt.Errorf("upload segment %s: %w", e.Name(), err)
		}
	}

	return nil
}

// runTrailer uploads the combined source directly as a trailer artifact,
// bypassing the ladder.
func (s *pipelineService) runTrailer(ctx context.Context, r *run, sourcePath string, info probe.Result) error {
	stat, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("stat trailer: %w", err)
	}
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open trailer: %w", err)
	}
	defer f.Close()

	prefix := r.job.Owner.Prefix()
	result, err := s.putWithRetry(ctx, repository.PutMultipartInput{
		Bucket:      s.bucket,
		Key:         prefix + "/" + r.sanitized,
		Body:        f,
		Size:        stat.Size(),
		ContentType: "video/mp4",
		Public:      true,
		OnProgress: func(pct int) {
			s.emit(ctx, r, pct, progress.Content{Type: progress.ContentTrailer})
			s.jobs.ReportProgress(ctx, r.job.ID, pct)
		},
	})
	if err != nil {
		return fmt.Errorf("upload trailer: %w", err)
	}

	artifact, err := model.NewVideoArtifact(
		r.job.Owner,
		r.sanitized,
		resolutionForHeight(info.Height),
		stat.Size(),
		info.BitrateBps,
		info.DurationSec,
		true,
	)
	if err != nil {
		return fmt.Errorf("build trailer artifact: %w", err)
	}
	artifact.URL = result.URL
	artifact.Encoding = info.VideoCodec

	if err := s.videos.Create(ctx, artifact); err != nil && !errors.Is(err, repository.ErrDuplicateArtifact) {
		return fmt.Errorf("persist trailer artifact: %w", err)
	}
	return nil
}

// rebuildMaster re-renders the owner's master playlist from the current
// set of persisted rungs and subtitle tracks.
func (s *pipelineService) rebuildMaster(ctx context.Context, r *run) error {
	rungs, err := s.videos.ListRungsByOwner(ctx, r.job.Owner.ID())
	if err != nil {
		return fmt.Errorf("list rungs for master: %w", err)
	}
	if len(rungs) == 0 {
		return nil
	}

	tracks, err := s.subtitles.ListByOwner(ctx, r.job.Owner.ID())
	if err != nil {
		return fmt.Errorf("list subtitles for master: %w", err)
	}

	completed := make([]hls.CompletedRung, 0, len(rungs))
	for _, v := range rungs {
		completed = append(completed, hls.CompletedRung{
			Resolution:  v.Resolution,
			Width:       v.Resolution.Width(),
			Height:      v.Resolution.Height(),
			PlaylistKey: hls.VariantPlaylistKey(v.Resolution, r.baseName),
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

	if err := s.publisher.Publish(ctx, r.job.Owner.Prefix(), r.baseName, completed, subs); err != nil {
		return fmt.Errorf("publish master: %w", err)
	}
	return nil
}

// finishWithError maps a pipeline error onto the job's terminal state.
// Deterministic failures and cancellation are absorbed (nil return, the
// row carries the outcome); anything else propagates for a queue retry.
func (s *pipelineService) finishWithError(ctx context.Context, r *run, pipeErr error) error {
	jobID := r.job.ID
	jobType := r.job.Type

	if errors.Is(pipeErr, transcoder.ErrCancelled) || errors.Is(pipeErr, context.Canceled) {
		if err := s.jobs.AcknowledgeCancel(ctx, jobID, jobType); err != nil &&
			!errors.Is(err, repository.ErrJobAlreadyFinished) {
			slog.Error("failed to acknowledge cancel", "job_id", jobID, "error", err)
		}
		s.sweeper.Sweep(r.sanitized)
		return nil
	}

	reason := failureReason(pipeErr)
	if reason == "" {
		// Transient: leave the job active and let the queue republish.
		return pipeErr
	}

	if err := s.jobs.MarkFailed(ctx, jobID, jobType, reason); err != nil &&
		!errors.Is(err, repository.ErrJobAlreadyFinished) {
		slog.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
	s.sweeper.Sweep(r.sanitized)
	return nil
}

// failureReason classifies deterministic pipeline failures into the
// persisted one-line reason. Transient errors yield "".
func failureReason(err error) string {
	var transcodeErr *repository.TranscodeFailureError
	switch {
	case errors.Is(err, repository.ErrChunkMissing):
		return "ChunkMissing: " + firstLine(err)
	case errors.Is(err, repository.ErrUnreadableMedia):
		return "UnreadableMedia: " + firstLine(err)
	case errors.As(err, &transcodeErr):
		return fmt.Sprintf("TranscodeFailure(%s/%s): %s", transcodeErr.Resolution, transcodeErr.Stage, firstLine(transcodeErr.Err))
	case errors.Is(err, errUploadFailure):
		return "UploadFailure: " + firstLine(err)
	default:
		return ""
	}
}

// errUploadFailure marks an object-store upload that exhausted its retry
// budget.
var errUploadFailure = errors.New("upload failed")

// putWithRetry uploads with a bounded deadline and exponential backoff
// across transient store errors. Deterministic context cancellation is
// not retried.
func (s *pipelineService) putWithRetry(ctx context.Context, in repository.PutMultipartInput) (repository.PutMultipartResult, error) {
	var lastErr error
	backoff := time.Second

	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		if seeker, ok := in.Body.(interface {
			Seek(offset int64, whence int) (int64, error)
		}); ok && attempt > 1 {
			if _, err := seeker.Seek(0, 0); err != nil {
				return repository.PutMultipartResult{}, fmt.Errorf("%w: rewind body: %w", errUploadFailure, err)
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
		result, err := s.store.PutMultipart(opCtx, in)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return repository.PutMultipartResult{}, ctx.Err()
		}

		if attempt < uploadAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return repository.PutMultipartResult{}, ctx.Err()
			}
			backoff *= 2
		}
	}

	return repository.PutMultipartResult{}, fmt.Errorf("%w: %s", errUploadFailure, firstLine(lastErr))
}

// watchCancel polls the cooperative cancel flag and trips the token when
// it flips. Returns a stop function.
func (s *pipelineService) watchCancel(ctx context.Context, jobID uuid.UUID, token *transcoder.CancelToken) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				requested, err := s.jobs.CancelRequested(ctx, jobID)
				if err != nil {
					continue
				}
				if requested {
					token.Cancel()
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

// emit publishes a progress event for the originating client.
// Best-effort: failures are logged at debug level only.
func (s *pipelineService) emit(ctx context.Context, r *run, pct int, content progress.Content) {
	if r.task.ClientID == "" {
		return
	}
	if err := s.bus.Emit(ctx, r.task.ClientID, pct, content); err != nil {
		slog.Debug("progress emit failed", "client_id", r.task.ClientID, "error", err)
	}
}

// contentTypeFor maps a job type to its final progress event type.
func contentTypeFor(t model.JobType) progress.ContentType {
	if t == model.JobTypeTrailer {
		return progress.ContentTrailer
	}
	return progress.ContentTranscode
}

// resolutionForHeight picks the highest ladder label at or below the
// source height, for labeling trailer artifacts. A source shorter than
// every rung is labeled SD.
func resolutionForHeight(height int) model.Resolution {
	best := model.ResolutionSD
	for _, res := range model.DefaultLadder() {
		if res.Height() <= height {
			best = res
		}
	}
	return best
}

// firstLine truncates an error to its first line for the persisted reason.
func firstLine(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
