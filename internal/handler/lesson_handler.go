package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coursework-api/internal/models"
	"github.com/noah-isme/coursework-api/pkg/response"
)

type lessonService interface {
	Create(ctx context.Context, actor models.Actor, classID string, req models.CreateLessonRequest) (*models.Lesson, error)
	ListByClass(ctx context.Context, classID string) ([]models.Lesson, error)
	Delete(ctx context.Context, actor models.Actor, lessonID string) (models.CascadeReport, error)
}

// LessonHandler exposes lesson endpoints.
type LessonHandler struct {
	lessons lessonService
}

// NewLessonHandler constructs LessonHandler.
func NewLessonHandler(lessons lessonService) *LessonHandler {
	return &LessonHandler{lessons: lessons}
}

// Create godoc
// @Summary Create lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body models.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Router /classes/{classId}/lessons [post]
func (h *LessonHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.CreateLessonRequest
	if !bindJSON(c, &req) {
		return
	}
	lesson, err := h.lessons.Create(c.Request.Context(), actor, c.Param("classId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// List godoc
// @Summary List lessons of a class
// @Tags Lessons
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/lessons [get]
func (h *LessonHandler) List(c *gin.Context) {
	lessons, err := h.lessons.ListByClass(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil)
}

// Delete godoc
// @Summary Delete lesson and everything it owns
// @Tags Lessons
// @Produce json
// @Param lessonId path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{lessonId} [delete]
func (h *LessonHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	report, err := h.lessons.Delete(c.Request.Context(), actor, c.Param("lessonId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCascade(c, report, report)
}
