package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/filmdist/ingest/internal/chunkstore"
	"github.com/filmdist/ingest/internal/cleanup"
	"github.com/filmdist/ingest/internal/domain/model"
	"github.com/filmdist/ingest/internal/domain/repository"
	"github.com/filmdist/ingest/internal/hls"
	"github.com/filmdist/ingest/internal/jobs"
	"github.com/filmdist/ingest/internal/probe"
	"github.com/filmdist/ingest/internal/progress"
	"github.com/filmdist/ingest/internal/transcoder"
)

// pipelineFixture wires a PipelineService over mocks and a temp dir.
type pipelineFixture struct {
	svc     PipelineService
	repo    *mockJobRepository
	videos  *mockVideoRepository
	subs    *mockSubtitleRepository
	store   *mockObjectStorage
	chunks  *chunkstore.Store
	cleanup func()
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	dir := t.TempDir()
	f := &pipelineFixture{
		repo:   &mockJobRepository{},
		videos: &mockVideoRepository{},
		subs:   &mockSubtitleRepository{},
		store:  &mockObjectStorage{},
		chunks: chunkstore.New(dir),
		cleanup: func() {
			redisClient.Close()
			mr.Close()
		},
	}

	f.svc = NewPipelineService(
		jobs.NewManager(f.repo, &mockMessageQueue{}, 10),
		f.videos,
		f.subs,
		f.store,
		f.chunks,
		probe.New("ffprobe"),
		transcoder.NewEngine(transcoder.DefaultConfig(), 1),
		hls.NewPublisher(f.store, "media"),
		progress.NewBus(redisClient),
		cleanup.New(dir),
		PipelineServiceConfig{Bucket: "media", SegmentDurationSec: 6},
	)
	return f
}

func testPipelineTask(job *model.ProcessingJob) repository.PipelineTask {
	return repository.PipelineTask{
		JobID:      job.ID,
		ClientID:   "c1",
		Type:       job.Type,
		ResourceID: job.Owner.ID(),
		Owner:      job.Owner,
		FileName:   job.FileName,
	}
}

func TestPipelineService_ProcessTask_DropsUnknownJob(t *testing.T) {
	f := newPipelineFixture(t)
	defer f.cleanup()

	task := repository.PipelineTask{JobID: uuid.New(), FileName: "movie.mp4"}
	if err := f.svc.ProcessTask(context.Background(), task); err != nil {
		t.Errorf("unknown job must be dropped, got %v", err)
	}
}

func TestPipelineService_ProcessTask_SkipsTerminalJob(t *testing.T) {
	f := newPipelineFixture(t)
	defer f.cleanup()

	job := model.NewProcessingJob(model.NewFilmOwner("F1"), model.JobTypeFilm, "movie.mp4", "q1")
	job.Status = model.JobCancelled

	activated := false
	f.repo.getByIDFn = func(context.Context, uuid.UUID) (*model.ProcessingJob, error) { return job, nil }
	f.repo.updateStatusFn = func(context.Context, uuid.UUID, model.JobStatus, model.JobStatus, string) error {
		activated = true
		return nil
	}

	if err := f.svc.ProcessTask(context.Background(), testPipelineTask(job)); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}
	if activated {
		t.Error("terminal job must not be transitioned")
	}
}

func TestPipelineService_ProcessTask_CancelledBeforePickup(t *testing.T) {
	f := newPipelineFixture(t)
	defer f.cleanup()

	job := model.NewProcessingJob(model.NewFilmOwner("F1"), model.JobTypeFilm, "movie.mp4", "q1")

	f.repo.getByIDFn = func(context.Context, uuid.UUID) (*model.ProcessingJob, error) { return job, nil }
	f.repo.updateStatusFn = func(_ context.Context, _ uuid.UUID, from, to model.JobStatus, _ string) error {
		// The CAS loses: Cancel already moved the row off waiting.
		return repository.ErrJobAlreadyFinished
	}

	if err := f.svc.ProcessTask(context.Background(), testPipelineTask(job)); err != nil {
		t.Errorf("lost activation race must not error, got %v", err)
	}
}

func TestPipelineService_ProcessTask_ChunkMissing(t *testing.T) {
	f := newPipelineFixture(t)
	defer f.cleanup()

	job := model.NewProcessingJob(model.NewFilmOwner("F1"), model.JobTypeFilm, "movie.mp4", "q1")

	// A chunk set with no offset-0 chunk: Combine reports the gap.
	if _, err := f.chunks.SaveChunk("movie.mp4", 1024, strings.NewReader("late")); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}

	var mu sync.Mutex
	var transitions []string
	var failedReason string
	f.repo.getByIDFn = func(context.Context, uuid.UUID) (*model.ProcessingJob, error) { return job, nil }
	f.repo.updateStatusFn = func(_ context.Context, _ uuid.UUID, from, to model.JobStatus, reason string) error {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, string(from)+"->"+string(to))
		if to == model.JobFailed {
			failedReason = reason
		}
		return nil
	}

	if err := f.svc.ProcessTask(context.Background(), testPipelineTask(job)); err != nil {
		t.Fatalf("deterministic failure must be absorbed, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"waiting->active", "active->failed"}
	if len(transitions) != 2 || transitions[0] != want[0] || transitions[1] != want[1] {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
	if !strings.HasPrefix(failedReason, "ChunkMissing") {
		t.Errorf("failedReason = %q, want ChunkMissing prefix", failedReason)
	}
}

func TestPipelineService_PutWithRetry(t *testing.T) {
	t.Run("recovers from transient errors", func(t *testing.T) {
		f := newPipelineFixture(t)
		defer f.cleanup()

		attempts := 0
		f.store.putMultipartFn = func(_ context.Context, in repository.PutMultipartInput) (repository.PutMultipartResult, error) {
			attempts++
			if attempts < 3 {
				return repository.PutMultipartResult{}, errors.New("connection reset")
			}
			return repository.PutMultipartResult{URL: "media/" + in.Key}, nil
		}

		svc := f.svc.(*pipelineService)
		result, err := svc.putWithRetry(context.Background(), repository.PutMultipartInput{
			Bucket: "media",
			Key:    "F1/HD_movie.mp4",
			Body:   strings.NewReader("data"),
			Size:   4,
		})
		if err != nil {
			t.Fatalf("putWithRetry failed: %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
		if result.URL != "media/F1/HD_movie.mp4" {
			t.Errorf("URL = %q", result.URL)
		}
	})

	t.Run("classifies exhausted budget as upload failure", func(t *testing.T) {
		f := newPipelineFixture(t)
		defer f.cleanup()

		f.store.putMultipartFn = func(context.Context, repository.PutMultipartInput) (repository.PutMultipartResult, error) {
			return repository.PutMultipartResult{}, errors.New("still broken")
		}

		svc := f.svc.(*pipelineService)
		_, err := svc.putWithRetry(context.Background(), repository.PutMultipartInput{
			Bucket: "media",
			Key:    "F1/HD_movie.mp4",
			Body:   strings.NewReader("data"),
			Size:   4,
		})
		if !errors.Is(err, errUploadFailure) {
			t.Fatalf("error = %v, want errUploadFailure", err)
		}
		if reason := failureReason(err); !strings.HasPrefix(reason, "UploadFailure") {
			t.Errorf("failureReason = %q, want UploadFailure prefix", reason)
		}
	})
}

func TestPipelineService_RebuildMaster(t *testing.T) {
	f := newPipelineFixture(t)
	defer f.cleanup()

	owner := model.NewFilmOwner("F1")
	job := model.NewProcessingJob(owner, model.JobTypeFilm, "movie.mp4", "q1")

	rung := func(res model.Resolution) *model.VideoArtifact {
		a, err := model.NewVideoArtifact(owner, string(res)+"_movie.mp4", res, 1000, int64(res.TotalBitrateBps()), 90, false)
		if err != nil {
			t.Fatalf("NewVideoArtifact: %v", err)
		}
		return a
	}
	f.videos.listRungsByOwnerFn = func(context.Context, string) ([]*model.VideoArtifact, error) {
		// Deliberately out of bandwidth order.
		return []*model.VideoArtifact{rung(model.ResolutionHD), rung(model.ResolutionSD)}, nil
	}
	f.subs.listByOwnerFn = func(context.Context, string) ([]*model.SubtitleTrack, error) {
		return []*model.SubtitleTrack{
			model.NewSubtitleTrack(owner, "movie", "en", "English", true),
		}, nil
	}

	var masterContent string
	var putKey, copySrc, copyDst string
	f.store.putMultipartFn = func(_ context.Context, in repository.PutMultipartInput) (repository.PutMultipartResult, error) {
		body, err := io.ReadAll(in.Body)
		if err != nil {
			t.Fatalf("read master body: %v", err)
		}
		masterContent = string(body)
		putKey = in.Key
		return repository.PutMultipartResult{URL: "media/" + in.Key}, nil
	}
	f.store.copyFn = func(_ context.Context, _ string, src, dst string) error {
		copySrc, copyDst = src, dst
		return nil
	}

	svc := f.svc.(*pipelineService)
	r := &run{task: testPipelineTask(job), job: job, sanitized: "movie.mp4", baseName: "movie"}
	if err := svc.rebuildMaster(context.Background(), r); err != nil {
		t.Fatalf("rebuildMaster failed: %v", err)
	}

	if !strings.HasPrefix(putKey, "F1/master_movie.m3u8") || putKey == "F1/master_movie.m3u8" {
		t.Errorf("master written to %q, want a temp key under F1/master_movie.m3u8", putKey)
	}
	if copySrc != putKey || copyDst != "F1/master_movie.m3u8" {
		t.Errorf("copy %q -> %q, want %q -> F1/master_movie.m3u8", copySrc, copyDst, putKey)
	}

	if !strings.Contains(masterContent, `#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID="subs",LANGUAGE="en"`) {
		t.Errorf("master missing subtitle media line:\n%s", masterContent)
	}
	sdIdx := strings.Index(masterContent, "RESOLUTION=854x480")
	hdIdx := strings.Index(masterContent, "RESOLUTION=1280x720")
	if sdIdx < 0 || hdIdx < 0 || sdIdx > hdIdx {
		t.Errorf("variants not in ascending bandwidth order:\n%s", masterContent)
	}
	if !strings.Contains(masterContent, `SUBTITLES="subs"`) {
		t.Errorf("stream-inf lines missing subtitle group:\n%s", masterContent)
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "chunk missing",
			err:  repository.ErrChunkMissing,
			want: "ChunkMissing",
		},
		{
			name: "unreadable media",
			err:  repository.ErrUnreadableMedia,
			want: "UnreadableMedia",
		},
		{
			name: "transcode failure",
			err:  &repository.TranscodeFailureError{Resolution: "FHD", Stage: "encode", Err: errors.New("exit status 1")},
			want: "TranscodeFailure(FHD/encode)",
		},
		{
			name: "transient is not classified",
			err:  errors.New("dial tcp: connection refused"),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := failureReason(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("failureReason = %q, want empty", got)
				}
				return
			}
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("failureReason = %q, want %q prefix", got, tt.want)
			}
		})
	}
}

func TestResolutionForHeight(t *testing.T) {
	tests := []struct {
		height int
		want   model.Resolution
	}{
		{height: 360, want: model.ResolutionSD},
		{height: 480, want: model.ResolutionSD},
		{height: 720, want: model.ResolutionHD},
		{height: 1080, want: model.ResolutionFHD},
		{height: 2160, want: model.ResolutionUHD},
		{height: 4320, want: model.ResolutionUHD},
	}

	for _, tt := range tests {
		if got := resolutionForHeight(tt.height); got != tt.want {
			t.Errorf("resolutionForHeight(%d) = %v, want %v", tt.height, got, tt.want)
		}
	}
}
