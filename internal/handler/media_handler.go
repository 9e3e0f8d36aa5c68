package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coursework-api/internal/models"
	"github.com/noah-isme/coursework-api/internal/service"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
	"github.com/noah-isme/coursework-api/pkg/response"
)

type mediaService interface {
	Upload(ctx context.Context, actor models.Actor, upload service.MediaUpload) (*models.MediaUploadResult, error)
}

// MediaHandler accepts media uploads for content blocks.
type MediaHandler struct {
	media mediaService
}

// NewMediaHandler constructs MediaHandler.
func NewMediaHandler(media mediaService) *MediaHandler {
	return &MediaHandler{media: media}
}

// Upload godoc
// @Summary Upload an image or video
// @Description Stores the file and returns a content block ready to include in an assignment or submission.
// @Tags Media
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Media file"
// @Success 201 {object} response.Envelope
// @Router /media [post]
func (h *MediaHandler) Upload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable file"))
		return
	}
	defer file.Close()

	result, err := h.media.Upload(c.Request.Context(), actor, service.MediaUpload{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Content:  file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
