package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/models"
	"github.com/noah-isme/coursework-api/pkg/logger"
	"github.com/noah-isme/coursework-api/pkg/storage"
)

type objectStorage interface {
	ExtractPath(rawURL string) (string, bool)
	DeleteByPath(ctx context.Context, paths []string) error
}

type garbageRecorder interface {
	Record(ctx context.Context, paths []string, source, lastError string) error
}

// MediaReclaimer resolves stored media references and deletes them best-effort.
// Paths that cannot be deleted are parked in the orphan ledger for the sweeper.
type MediaReclaimer struct {
	storage objectStorage
	garbage garbageRecorder
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMediaReclaimer constructs a MediaReclaimer. garbage may be nil.
func NewMediaReclaimer(store objectStorage, garbage garbageRecorder, metrics *MetricsService, logger *zap.Logger) *MediaReclaimer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaReclaimer{storage: store, garbage: garbage, metrics: metrics, logger: logger}
}

// Encoding resolves which field of src carries media and the paths it references.
func (r *MediaReclaimer) Encoding(src models.ContentSource) models.ContentEncoding {
	return models.ResolveEncoding(src, r.storage.ExtractPath)
}

// Paths collects the storage paths referenced by every source, in order.
func (r *MediaReclaimer) Paths(sources ...models.ContentSource) []string {
	var paths []string
	for _, src := range sources {
		paths = append(paths, r.Encoding(src).Paths...)
	}
	return storage.Dedupe(paths)
}

// MediaPrefix is the storage prefix uploads by userID land under.
func MediaPrefix(userID string) string {
	return "media/" + userID + "/"
}

// Authorize rejects media blocks that do not resolve to this bucket or that point outside
// the actor's upload prefix. Paths already referenced by prior stay allowed.
func (r *MediaReclaimer) Authorize(actor models.Actor, blocks models.BlockList, prior ...models.ContentSource) error {
	allowed := map[string]struct{}{}
	for _, p := range r.Paths(prior...) {
		allowed[p] = struct{}{}
	}
	prefix := MediaPrefix(actor.UserID)
	for i, block := range blocks {
		if !block.Kind.IsMedia() || block.Body == "" {
			continue
		}
		p, ok := r.storage.ExtractPath(block.Body)
		if !ok {
			return &models.BlockError{Index: i, Reason: "media block does not reference this storage bucket"}
		}
		if _, kept := allowed[p]; kept {
			continue
		}
		if actor.UserID == "" || !strings.HasPrefix(p, prefix) || strings.Contains(p, "..") {
			return &models.BlockError{Index: i, Reason: "media block references a file uploaded by another user"}
		}
	}
	return nil
}

// Reclaim deletes paths and reports which ones survived. It never fails the caller.
func (r *MediaReclaimer) Reclaim(ctx context.Context, paths []string, source string) models.CascadeReport {
	paths = storage.Dedupe(paths)
	report := models.CascadeReport{StoragePaths: paths}
	if len(paths) == 0 {
		return report
	}

	err := r.storage.DeleteByPath(ctx, paths)
	if err == nil {
		r.metrics.RecordStorageDeletes(len(paths), 0)
		return report
	}

	var partial *storage.PartialFailureError
	if errors.As(err, &partial) {
		report.FailedPaths = partial.FailedPaths
	} else {
		report.FailedPaths = append([]string(nil), paths...)
	}
	r.metrics.RecordStorageDeletes(len(paths)-len(report.FailedPaths), len(report.FailedPaths))

	log := logger.WithContext(ctx, r.logger)
	log.Warn("storage reclamation incomplete",
		zap.String("source", source),
		zap.Strings("failed_paths", report.FailedPaths),
		zap.Error(err),
	)

	if r.garbage != nil {
		if recErr := r.garbage.Record(ctx, report.FailedPaths, source, causeSummary(err, partial)); recErr != nil {
			log.Error("failed to record orphaned storage paths", zap.Strings("paths", report.FailedPaths), zap.Error(recErr))
		}
	}
	return report
}

func causeSummary(err error, partial *storage.PartialFailureError) string {
	if partial == nil || len(partial.Causes) == 0 {
		return err.Error()
	}
	seen := map[string]struct{}{}
	var parts []string
	for _, p := range partial.FailedPaths {
		cause, ok := partial.Causes[p]
		if !ok || cause == nil {
			continue
		}
		msg := cause.Error()
		if _, dup := seen[msg]; dup {
			continue
		}
		seen[msg] = struct{}{}
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return err.Error()
	}
	return strings.Join(parts, "; ")
}
