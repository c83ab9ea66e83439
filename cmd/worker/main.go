package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/filmdist/ingest/internal/chunkstore"
	"github.com/filmdist/ingest/internal/cleanup"
	"github.com/filmdist/ingest/internal/config"
	"github.com/filmdist/ingest/internal/domain/repository"
	"github.com/filmdist/ingest/internal/hls"
	"github.com/filmdist/ingest/internal/infrastructure/postgres"
	"github.com/filmdist/ingest/internal/infrastructure/queue"
	"github.com/filmdist/ingest/internal/infrastructure/storage"
	"github.com/filmdist/ingest/internal/jobs"
	"github.com/filmdist/ingest/internal/probe"
	"github.com/filmdist/ingest/internal/progress"
	"github.com/filmdist/ingest/internal/transcoder"
	"github.com/filmdist/ingest/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Pipeline.UploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Initialize infrastructure clients
	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	storageClient, err := storage.NewClient(storage.ClientConfig{
		Endpoint:  cfg.ObjectStore.Endpoint,
		AccessKey: cfg.ObjectStore.Key,
		SecretKey: cfg.ObjectStore.Secret,
		Region:    cfg.ObjectStore.Region,
		UseSSL:    cfg.ObjectStore.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to object store: %w", err)
	}
	logger.Info("connected to object store")

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	// Initialize repositories and pipeline components
	videoRepo := postgres.NewVideoRepository(pgClient.Pool())
	jobRepo := postgres.NewJobRepository(pgClient.Pool())
	subtitleRepo := postgres.NewSubtitleRepository(pgClient.Pool())

	jobManager := jobs.NewManager(jobRepo, queueClient, cfg.Pipeline.MaxQueueDepth)

	// Jobs left active by a crashed worker have no queue entry anymore;
	// reclaim them before consuming.
	reclaimed, err := jobManager.FixStuck(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to reclaim stuck jobs: %w", err)
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stuck jobs", slog.Int("count", reclaimed))
	}

	encoderCfg := transcoder.DefaultConfig()
	encoderCfg.FFmpegPath = cfg.Pipeline.FFmpegPath

	pipelineSvc := usecase.NewPipelineService(
		jobManager,
		videoRepo,
		subtitleRepo,
		storageClient,
		chunkstore.New(cfg.Pipeline.UploadDir),
		probe.New(cfg.Pipeline.FFprobePath),
		transcoder.NewEngine(encoderCfg, cfg.Pipeline.TranscodeConcurrency),
		hls.NewPublisher(storageClient, cfg.ObjectStore.Bucket),
		progress.NewBus(redisClient),
		cleanup.New(cfg.Pipeline.UploadDir),
		usecase.PipelineServiceConfig{
			Bucket:             cfg.ObjectStore.Bucket,
			SegmentDurationSec: cfg.Pipeline.SegmentDurationSec,
		},
	)

	// Setup signal handling for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Pipeline.QueueConcurrency; i++ {
		worker := i
		g.Go(func() error {
			logger.Info("starting worker, consuming pipeline tasks", slog.Int("worker", worker))
			err := queueClient.Consume(gctx, func(task repository.PipelineTask) error {
				logger.Info("processing task",
					slog.String("job_id", task.JobID.String()),
					slog.String("type", string(task.Type)),
					slog.Int("retry_count", task.RetryCount),
				)

				if err := pipelineSvc.ProcessTask(gctx, task); err != nil {
					logger.Error("task processing failed",
						slog.String("job_id", task.JobID.String()),
						slog.Int("retry_count", task.RetryCount),
						slog.String("error", err.Error()),
					)
					return err
				}

				logger.Info("task finished",
					slog.String("job_id", task.JobID.String()),
				)
				return nil
			})
			if err != nil && gctx.Err() == nil {
				return fmt.Errorf("consumer %d error: %w", worker, err)
			}
			return nil
		})
	}

	// Wait for shutdown signal or consumer error
	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	// Graceful shutdown: stop consuming, then wait for in-flight tasks.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		<-errCh
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some tasks may not have completed")
	}

	logger.Info("worker stopped")
	return nil
}
