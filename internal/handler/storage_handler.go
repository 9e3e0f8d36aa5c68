package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
	"github.com/noah-isme/coursework-api/pkg/response"
	"github.com/noah-isme/coursework-api/pkg/storage"
)

type sweepService interface {
	SweepAsAdmin(ctx context.Context, actor models.Actor, batch int) (*models.SweepResult, error)
}

type objectOpener interface {
	Open(objectPath string) (*os.File, error)
	Bucket() string
}

// StorageHandler exposes orphan sweeping and, for the local driver, public object reads.
type StorageHandler struct {
	sweeper sweepService
	objects objectOpener
}

// NewStorageHandler constructs StorageHandler. objects may be nil when a cloud backend serves files.
func NewStorageHandler(sweeper sweepService, objects objectOpener) *StorageHandler {
	return &StorageHandler{sweeper: sweeper, objects: objects}
}

// Sweep godoc
// @Summary Retry deletion of orphaned storage objects
// @Tags Storage
// @Produce json
// @Param batch query int false "Rows to claim"
// @Success 200 {object} response.Envelope
// @Router /storage/sweep [post]
func (h *StorageHandler) Sweep(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	batch := 0
	if raw := c.Query("batch"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "batch must be a positive integer"))
			return
		}
		batch = n
	}
	result, err := h.sweeper.SweepAsAdmin(c.Request.Context(), actor, batch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, http.StatusOK, result, response.PartialFailure(result.FailedPaths))
}

// ServeObject streams a locally stored object. Only the configured bucket is served.
func (h *StorageHandler) ServeObject(c *gin.Context) {
	if h.objects == nil || c.Param("bucket") != h.objects.Bucket() {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	objectPath := strings.TrimPrefix(c.Param("path"), "/")
	file, err := h.objects.Open(objectPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrInvalidPath) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open object"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	c.Header("Content-Type", storage.DetectContentType(objectPath, nil))
	c.Header("Cache-Control", "public, max-age=3600")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}
