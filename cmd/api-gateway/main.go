package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/handler"
	"github.com/noah-isme/coursework-api/internal/repository"
	"github.com/noah-isme/coursework-api/internal/service"
	"github.com/noah-isme/coursework-api/pkg/cache"
	"github.com/noah-isme/coursework-api/pkg/config"
	"github.com/noah-isme/coursework-api/pkg/database"
	"github.com/noah-isme/coursework-api/pkg/logger"
	"github.com/noah-isme/coursework-api/pkg/storage"
	"github.com/noah-isme/coursework-api/pkg/tracing"
)

// @title Coursework API
// @version 1.0.0
// @description Lessons, assignments, submissions and progress for enrolled classes
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, progress cache disabled", zap.Error(err))
	}

	backend, local, err := openStorageBackend(ctx, cfg.Storage)
	if err != nil {
		logr.Fatal("failed to open object storage", zap.Error(err))
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	gateway := storage.NewGateway(backend, storage.GatewayConfig{
		Bucket:            cfg.Storage.Bucket,
		OperationTimeout:  cfg.Storage.OperationTimeout,
		DeleteConcurrency: cfg.Storage.DeleteConcurrency,
		Logger:            logr,
	})

	validate := validator.New()
	metrics := service.NewMetricsService()

	classRepo := repository.NewClassRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	garbageRepo := repository.NewStorageGarbageRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		redisRepo := repository.NewCacheRepository(redisClient, logr)
		defer redisRepo.Close()
		cacheRepo = redisRepo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Progress.CacheTTL, logr, cfg.Progress.CacheEnabled && redisClient != nil)

	reclaimer := service.NewMediaReclaimer(gateway, garbageRepo, metrics, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, lessonRepo, enrollmentRepo, reclaimer, cacheSvc, metrics, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, lessonRepo, submissionRepo, submissionSvc, reclaimer, cacheSvc, metrics, validate, logr)
	lessonSvc := service.NewLessonService(lessonRepo, classRepo, assignmentSvc, metrics, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(service.EnrollmentDeps{
		Repo:        enrollmentRepo,
		Classes:     classRepo,
		Lessons:     lessonRepo,
		Assignments: assignmentRepo,
		Submissions: submissionRepo,
		Remover:     submissionSvc,
		Reclaimer:   reclaimer,
		Cache:       cacheSvc,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
	})
	progressSvc := service.NewProgressService(service.ProgressDeps{
		Repo:        progressRepo,
		Classes:     classRepo,
		Lessons:     lessonRepo,
		Assignments: assignmentRepo,
		Finder:      assignmentRepo,
		Roster:      enrollmentRepo,
		Cache:       cacheSvc,
		CacheTTL:    cfg.Progress.CacheTTL,
		Logger:      logr,
	})
	mediaSvc := service.NewMediaService(gateway, cfg.Storage.MaxUploadBytes, logr)
	sweeperSvc := service.NewSweeperService(garbageRepo, gateway, metrics, service.SweeperConfig{
		BatchSize: cfg.Sweeper.BatchSize,
		Lease:     cfg.Sweeper.Lease,
	}, logr)
	identitySvc := service.NewIdentityService(service.IdentityConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	storageHandler := handler.NewStorageHandler(sweeperSvc, nil)
	if local != nil {
		storageHandler = handler.NewStorageHandler(sweeperSvc, local)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := newRouter(cfg, logr, routerDeps{
		identity:    identitySvc,
		metrics:     metrics,
		lessons:     handler.NewLessonHandler(lessonSvc),
		assignments: handler.NewAssignmentHandler(assignmentSvc),
		submissions: handler.NewSubmissionHandler(submissionSvc),
		enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		progress:    handler.NewProgressHandler(progressSvc),
		media:       handler.NewMediaHandler(mediaSvc),
		storage:     storageHandler,
		system:      handler.NewMetricsHandler(metrics, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage_driver", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openStorageBackend returns the configured backend and, for the local driver, the
// filesystem handle the public object route reads from.
func openStorageBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, *storage.FilesystemBackend, error) {
	switch cfg.Driver {
	case config.StorageDriverGCS:
		gcs, err := storage.NewGCSBackend(ctx, cfg.Bucket, cfg.GCSCredentials, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return gcs, nil, nil
	case config.StorageDriverLocal, "":
		fs, err := storage.NewFilesystemBackend(cfg.LocalDir, cfg.Bucket, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
