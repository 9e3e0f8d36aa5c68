package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
	"github.com/noah-isme/coursework-api/pkg/logger"
	"github.com/noah-isme/coursework-api/pkg/storage"
)

type mediaUploader interface {
	Upload(ctx context.Context, prefix, suggestedName string, data []byte, contentType string) (*storage.Object, error)
}

// MediaUpload carries an uploaded file and its client-declared metadata.
type MediaUpload struct {
	FileName string
	MimeType string
	Content  io.Reader
}

// MediaService stores media for content blocks and returns ready-to-persist blocks.
type MediaService struct {
	storage  mediaUploader
	maxBytes int64
	logger   *zap.Logger
}

// NewMediaService constructs MediaService.
func NewMediaService(store mediaUploader, maxBytes int64, logger *zap.Logger) *MediaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	return &MediaService{storage: store, maxBytes: maxBytes, logger: logger}
}

// Upload stores the file under the caller's prefix. The block kind follows the content type:
// image/* yields IMAGE, video/* yields VIDEO, anything else is rejected.
func (s *MediaService) Upload(ctx context.Context, actor models.Actor, upload MediaUpload) (*models.MediaUploadResult, error) {
	if actor.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if upload.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	data, err := io.ReadAll(io.LimitReader(upload.Content, s.maxBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrTooLarge, fmt.Sprintf("file exceeds %d bytes limit", s.maxBytes))
	}

	name := path.Base(strings.ReplaceAll(strings.TrimSpace(upload.FileName), "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	mimeType := strings.ToLower(strings.TrimSpace(upload.MimeType))
	if mimeType == "" || mimeType == "application/octet-stream" {
		head := data
		if len(head) > 512 {
			head = head[:512]
		}
		mimeType = storage.DetectContentType(name, head)
	}
	kind, ok := blockKindForMime(mimeType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported media type %q", mimeType))
	}

	obj, err := s.storage.Upload(ctx, strings.TrimSuffix(MediaPrefix(actor.UserID), "/"), name, data, mimeType)
	if err != nil {
		logger.WithContext(ctx, s.logger).Error("media upload failed", zap.String("file_name", name), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUploadFailed.Code, appErrors.ErrUploadFailed.Status, "failed to store media")
	}

	return &models.MediaUploadResult{
		Block: models.ContentBlock{
			Kind: kind,
			Body: obj.URL,
			Metadata: &models.MediaMetadata{
				OriginalFileName: name,
				SizeBytes:        obj.Size,
				MimeType:         mimeType,
			},
		},
		Path: obj.Path,
	}, nil
}

func blockKindForMime(mimeType string) (models.BlockKind, bool) {
	base, _, _ := strings.Cut(mimeType, ";")
	switch {
	case strings.HasPrefix(base, "image/"):
		return models.BlockImage, true
	case strings.HasPrefix(base, "video/"):
		return models.BlockVideo, true
	}
	return "", false
}
