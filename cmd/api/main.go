package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/filmdist/ingest/internal/api/handler"
	"github.com/filmdist/ingest/internal/api/middleware"
	"github.com/filmdist/ingest/internal/chunkstore"
	"github.com/filmdist/ingest/internal/config"
	"github.com/filmdist/ingest/internal/hls"
	"github.com/filmdist/ingest/internal/infrastructure/cache"
	"github.com/filmdist/ingest/internal/infrastructure/postgres"
	"github.com/filmdist/ingest/internal/infrastructure/queue"
	"github.com/filmdist/ingest/internal/infrastructure/storage"
	"github.com/filmdist/ingest/internal/jobs"
	"github.com/filmdist/ingest/internal/progress"
	"github.com/filmdist/ingest/internal/streamserver"
	"github.com/filmdist/ingest/internal/subtitles"
	"github.com/filmdist/ingest/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

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

	// Initialize repositories and services
	videoRepo := postgres.NewVideoRepository(pgClient.Pool())
	jobRepo := postgres.NewJobRepository(pgClient.Pool())
	subtitleRepo := postgres.NewSubtitleRepository(pgClient.Pool())

	chunks := chunkstore.New(cfg.Pipeline.UploadDir)
	jobManager := jobs.NewManager(jobRepo, queueClient, cfg.Pipeline.MaxQueueDepth)
	uploadSvc := usecase.NewUploadService(chunks, jobManager)

	publisher := hls.NewPublisher(storageClient, cfg.ObjectStore.Bucket)
	subtitleMgr := subtitles.NewManager(subtitleRepo, storageClient, cfg.ObjectStore.Bucket, videoRepo, publisher)

	trackSvc := usecase.NewCachedTrackService(
		usecase.NewTrackService(videoRepo),
		cache.NewRedisTrackCache(redisClient),
		usecase.DefaultCachedTrackServiceConfig(),
	)
	streamSrv := streamserver.New(trackSvc, storageClient, cfg.ObjectStore.Bucket)

	bus := progress.NewBus(redisClient)

	// Initialize handlers
	uploadHandler := handler.NewUploadHandler(uploadSvc)
	jobHandler := handler.NewJobHandler(jobManager)
	subtitleHandler := handler.NewSubtitleHandler(subtitleMgr)
	streamHandler := handler.NewStreamHandler(streamSrv)
	progressHandler := handler.NewProgressHandler(bus)

	r := setupRouter(logger, cfg.Server.AllowedOrigins, uploadHandler, jobHandler, subtitleHandler, streamHandler, progressHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(
	logger *slog.Logger,
	allowedOrigins []string,
	uploadHandler *handler.UploadHandler,
	jobHandler *handler.JobHandler,
	subtitleHandler *handler.SubtitleHandler,
	streamHandler *handler.StreamHandler,
	progressHandler *handler.ProgressHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/upload-chunk", uploadHandler.SaveChunk)
	r.Get("/check-upload-chunk", uploadHandler.CheckChunk)
	r.Post("/complete-upload", uploadHandler.CompleteUpload)
	r.Post("/trailer-upload", uploadHandler.TrailerUpload)

	r.Post("/upload-subtitle", subtitleHandler.Upload)

	r.Route("/processing-jobs", func(r chi.Router) {
		r.Get("/", jobHandler.List)
		r.Post("/{id}/cancel", jobHandler.Cancel)
		r.Post("/{id}/retry", jobHandler.Retry)
	})

	r.Get("/stream/{trackId}", streamHandler.Track)
	r.Get("/hls/{owner}/*", streamHandler.HLS)
	r.Get("/progress/{clientId}", progressHandler.Events)

	return r
}
