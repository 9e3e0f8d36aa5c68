package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
	"github.com/noah-isme/coursework-api/pkg/logger"
	"github.com/noah-isme/coursework-api/pkg/storage"
)

type garbageLedger interface {
	Claim(ctx context.Context, limit int, lease time.Duration) ([]models.StorageGarbage, error)
	Resolve(ctx context.Context, ids []string) error
	Reschedule(ctx context.Context, id, lastError string, next time.Time) error
	Count(ctx context.Context) (int, error)
}

type pathDeleter interface {
	DeleteByPath(ctx context.Context, paths []string) error
}

// SweeperConfig tunes orphan sweeps.
type SweeperConfig struct {
	BatchSize int
	Lease     time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// SweeperService retries deletion of storage paths left behind by partial cascades.
type SweeperService struct {
	ledger  garbageLedger
	storage pathDeleter
	metrics *MetricsService
	cfg     SweeperConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewSweeperService constructs SweeperService.
func NewSweeperService(ledger garbageLedger, store pathDeleter, metrics *MetricsService, cfg SweeperConfig, logger *zap.Logger) *SweeperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Minute
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 6 * time.Hour
	}
	return &SweeperService{
		ledger:  ledger,
		storage: store,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sweep claims up to batch due ledger rows and retries their deletion. Rows whose object is
// gone are resolved; the rest are rescheduled with exponential backoff.
func (s *SweeperService) Sweep(ctx context.Context, batch int) (*models.SweepResult, error) {
	if batch <= 0 || batch > s.cfg.BatchSize {
		batch = s.cfg.BatchSize
	}
	ctx, span := tracer.Start(ctx, "storage.sweep")
	defer span.End()
	log := logger.WithContext(ctx, s.logger)

	items, err := s.ledger.Claim(ctx, batch, s.cfg.Lease)
	if err != nil {
		failSpan(span, err)
		return nil, appErrors.Transaction(err, "failed to claim storage garbage")
	}
	result := &models.SweepResult{Claimed: len(items)}
	if len(items) == 0 {
		s.publishOutstanding(ctx)
		return result, nil
	}

	paths := make([]string, 0, len(items))
	for _, item := range items {
		paths = append(paths, item.Path)
	}
	failed := map[string]error{}
	if err := s.storage.DeleteByPath(ctx, paths); err != nil {
		var partial *storage.PartialFailureError
		if errors.As(err, &partial) {
			for _, p := range partial.FailedPaths {
				failed[p] = partial.Causes[p]
			}
		} else {
			for _, p := range paths {
				failed[p] = err
			}
		}
	}

	resolved := make([]string, 0, len(items))
	for _, item := range items {
		cause, ok := failed[item.Path]
		if !ok {
			resolved = append(resolved, item.ID)
			continue
		}
		msg := "delete failed"
		if cause != nil {
			msg = cause.Error()
		}
		next := s.now().Add(s.backoff(item.Attempts))
		if err := s.ledger.Reschedule(ctx, item.ID, msg, next); err != nil {
			log.Error("failed to reschedule storage garbage", zap.String("path", item.Path), zap.Error(err))
		}
		result.Rescheduled++
		result.FailedPaths = append(result.FailedPaths, item.Path)
	}

	if len(resolved) > 0 {
		if err := s.ledger.Resolve(ctx, resolved); err != nil {
			failSpan(span, err)
			return nil, appErrors.Transaction(err, "failed to resolve storage garbage")
		}
	}
	result.Deleted = len(resolved)
	s.metrics.RecordStorageDeletes(result.Deleted, result.Rescheduled)
	s.publishOutstanding(ctx)

	if result.Rescheduled > 0 {
		log.Warn("storage sweep left paths behind", zap.Strings("failed_paths", result.FailedPaths))
	}
	log.Info("storage sweep finished",
		zap.Int("claimed", result.Claimed),
		zap.Int("deleted", result.Deleted),
		zap.Int("rescheduled", result.Rescheduled),
	)
	return result, nil
}

// SweepAsAdmin runs Sweep on behalf of an administrator.
func (s *SweeperService) SweepAsAdmin(ctx context.Context, actor models.Actor, batch int) (*models.SweepResult, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	return s.Sweep(ctx, batch)
}

// backoff doubles from BaseDelay per attempt, capped at MaxDelay.
func (s *SweeperService) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 32 {
		return s.cfg.MaxDelay
	}
	factor := math.Pow(2, float64(attempts-1))
	delay := time.Duration(float64(s.cfg.BaseDelay) * factor)
	if delay <= 0 || delay > s.cfg.MaxDelay {
		return s.cfg.MaxDelay
	}
	return delay
}

func (s *SweeperService) publishOutstanding(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	n, err := s.ledger.Count(ctx)
	if err != nil {
		logger.WithContext(ctx, s.logger).Warn("failed to count storage garbage", zap.Error(err))
		return
	}
	s.metrics.SetGarbageOutstanding(n)
}
