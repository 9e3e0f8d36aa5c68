package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/repository"
	"github.com/noah-isme/coursework-api/internal/service"
	"github.com/noah-isme/coursework-api/pkg/config"
	"github.com/noah-isme/coursework-api/pkg/database"
	"github.com/noah-isme/coursework-api/pkg/jobs"
	"github.com/noah-isme/coursework-api/pkg/logger"
	"github.com/noah-isme/coursework-api/pkg/storage"
	"github.com/noah-isme/coursework-api/pkg/tracing"
)

const sweepJobType = "storage_sweep"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	logr = logr.With(zap.String("component", "storage-sweeper"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.Env, logr)
	if err != nil {
		logr.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		logr.Fatal("failed to open object storage", zap.Error(err))
	}
	gateway := storage.NewGateway(backend, storage.GatewayConfig{
		Bucket:            cfg.Storage.Bucket,
		OperationTimeout:  cfg.Storage.OperationTimeout,
		DeleteConcurrency: cfg.Storage.DeleteConcurrency,
		Logger:            logr,
	})

	sweeper := service.NewSweeperService(
		repository.NewStorageGarbageRepository(db),
		gateway,
		service.NewMetricsService(),
		service.SweeperConfig{BatchSize: cfg.Sweeper.BatchSize, Lease: cfg.Sweeper.Lease},
		logr,
	)

	queue := jobs.NewQueue(sweepJobType, sweepHandler(sweeper, cfg.Sweeper.BatchSize), jobs.QueueConfig{
		Workers:    cfg.Sweeper.Workers,
		MaxRetries: cfg.Sweeper.MaxRetries,
		RetryDelay: cfg.Sweeper.Interval / 2,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	logr.Info("sweeper started", zap.Duration("interval", cfg.Sweeper.Interval), zap.Int("workers", cfg.Sweeper.Workers))
	ticker := time.NewTicker(cfg.Sweeper.Interval)
	defer ticker.Stop()

	enqueueSweep(queue, logr)
	for {
		select {
		case <-ctx.Done():
			logr.Info("sweeper stopping")
			return
		case <-ticker.C:
			enqueueSweep(queue, logr)
		}
	}
}

// sweepHandler runs one pass. Rescheduled paths carry their own backoff in the ledger,
// so only ledger errors are retried by the queue.
func sweepHandler(sweeper *service.SweeperService, batch int) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		_, err := sweeper.Sweep(ctx, batch)
		return err
	}
}

func enqueueSweep(queue *jobs.Queue, logr *zap.Logger) {
	err := queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: sweepJobType})
	if errors.Is(err, jobs.ErrQueueFull) {
		logr.Debug("sweep already pending, skipping tick")
		return
	}
	if err != nil {
		logr.Warn("failed to enqueue sweep", zap.Error(err))
	}
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	if cfg.Driver == config.StorageDriverGCS {
		return storage.NewGCSBackend(ctx, cfg.Bucket, cfg.GCSCredentials, cfg.PublicBaseURL)
	}
	return storage.NewFilesystemBackend(cfg.LocalDir, cfg.Bucket, cfg.PublicBaseURL)
}
