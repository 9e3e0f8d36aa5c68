package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Backend stores objects addressed by bucket-relative paths.
// Delete must treat a missing object as success.
type Backend interface {
	Put(ctx context.Context, objectPath string, r io.Reader, contentType string) error
	Delete(ctx context.Context, objectPath string) error
	PublicURL(objectPath string) string
}

// GatewayConfig tunes the gateway.
type GatewayConfig struct {
	Bucket            string
	OperationTimeout  time.Duration
	DeleteConcurrency int
	Logger            *zap.Logger
}

// Object describes a stored upload.
type Object struct {
	Path        string
	URL         string
	ContentType string
	Size        int64
}

// PartialFailureError lists the paths a batch delete could not remove.
type PartialFailureError struct {
	FailedPaths []string
	Causes      map[string]error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("failed to delete %d of the requested objects", len(e.FailedPaths))
}

// Gateway fronts a Backend with URL resolution and batch deletion.
type Gateway struct {
	backend     Backend
	bucket      string
	marker      string
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
}

// NewGateway wraps backend for the given bucket.
func NewGateway(backend Backend, cfg GatewayConfig) *Gateway {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	if cfg.DeleteConcurrency <= 0 {
		cfg.DeleteConcurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Gateway{
		backend:     backend,
		bucket:      cfg.Bucket,
		marker:      "/" + cfg.Bucket + "/",
		timeout:     cfg.OperationTimeout,
		concurrency: cfg.DeleteConcurrency,
		logger:      cfg.Logger,
	}
}

// Bucket returns the bucket segment used for path extraction.
func (g *Gateway) Bucket() string {
	return g.bucket
}

// Upload stores data under prefix with a generated name keeping the suggested extension.
func (g *Gateway) Upload(ctx context.Context, prefix, suggestedName string, data []byte, contentType string) (*Object, error) {
	ctx, span := otel.Tracer("coursework/storage").Start(ctx, "storage.upload")
	defer span.End()

	objectPath := objectName(prefix, suggestedName)
	if contentType == "" {
		contentType = DetectContentType(suggestedName, data)
	}
	span.SetAttributes(attribute.String("storage.path", objectPath), attribute.Int("storage.size", len(data)))

	opCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.backend.Put(opCtx, objectPath, bytes.NewReader(data), contentType); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return nil, fmt.Errorf("upload %s: %w", objectPath, err)
	}

	return &Object{
		Path:        objectPath,
		URL:         g.backend.PublicURL(objectPath),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// PublicURL resolves the publicly dereferenceable URL for objectPath.
func (g *Gateway) PublicURL(objectPath string) string {
	return g.backend.PublicURL(strings.TrimPrefix(objectPath, "/"))
}

// ExtractPath returns the object path following the bucket segment of rawURL.
// ok is false when the URL does not reference this bucket.
func (g *Gateway) ExtractPath(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || g.bucket == "" {
		return "", false
	}
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	idx := strings.Index(p, g.marker)
	if idx < 0 {
		return "", false
	}
	objectPath := strings.TrimPrefix(p[idx+len(g.marker):], "/")
	if objectPath == "" {
		return "", false
	}
	return objectPath, true
}

// DeleteByPath removes every distinct path concurrently. Missing objects count as deleted.
// A *PartialFailureError is returned when some deletions fail; the others still run.
func (g *Gateway) DeleteByPath(ctx context.Context, paths []string) error {
	unique := Dedupe(paths)
	if len(unique) == 0 {
		return nil
	}

	ctx, span := otel.Tracer("coursework/storage").Start(ctx, "storage.delete_by_path")
	defer span.End()
	span.SetAttributes(attribute.Int("storage.paths", len(unique)))

	var (
		mu     sync.Mutex
		failed = map[string]error{}
		group  errgroup.Group
	)
	group.SetLimit(g.concurrency)
	for _, p := range unique {
		p := p
		group.Go(func() error {
			opCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			if err := g.backend.Delete(opCtx, p); err != nil {
				mu.Lock()
				failed[p] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	if len(failed) == 0 {
		return nil
	}

	failedPaths := make([]string, 0, len(failed))
	for p := range failed {
		failedPaths = append(failedPaths, p)
	}
	sort.Strings(failedPaths)
	g.logger.Warn("storage delete partially failed", zap.Strings("failed_paths", failedPaths), zap.Int("requested", len(unique)))
	span.SetStatus(codes.Error, "partial failure")
	return &PartialFailureError{FailedPaths: failedPaths, Causes: failed}
}

// Dedupe drops empty and repeated paths, keeping first-seen order.
func Dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func objectName(prefix, suggestedName string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(suggestedName, "\\", "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	name := uuid.NewString() + ext
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
