package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coursework-api/internal/models"
	"github.com/noah-isme/coursework-api/pkg/response"
)

type assignmentService interface {
	Create(ctx context.Context, actor models.Actor, lessonID string, req models.AssignmentContentRequest) (*models.AssignmentView, error)
	Update(ctx context.Context, actor models.Actor, id string, req models.AssignmentContentRequest) (*models.AssignmentUpdateResult, error)
	Get(ctx context.Context, id string) (*models.AssignmentView, error)
	ListByLesson(ctx context.Context, lessonID string) ([]models.AssignmentView, error)
	Delete(ctx context.Context, actor models.Actor, id string) (models.CascadeReport, error)
}

// AssignmentHandler exposes assignment authoring endpoints.
type AssignmentHandler struct {
	assignments assignmentService
}

// NewAssignmentHandler constructs AssignmentHandler.
func NewAssignmentHandler(assignments assignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// Create godoc
// @Summary Create assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param lessonId path string true "Lesson ID"
// @Param payload body models.AssignmentContentRequest true "Content blocks"
// @Success 201 {object} response.Envelope
// @Router /lessons/{lessonId}/assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.AssignmentContentRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.assignments.Create(c.Request.Context(), actor, c.Param("lessonId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// List godoc
// @Summary List assignments of a lesson
// @Tags Assignments
// @Produce json
// @Param lessonId path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{lessonId}/assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	views, err := h.assignments.ListByLesson(c.Request.Context(), c.Param("lessonId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}

// Get godoc
// @Summary Get assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	view, err := h.assignments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Update godoc
// @Summary Replace assignment content
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body models.AssignmentContentRequest true "Content blocks"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [put]
func (h *AssignmentHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.AssignmentContentRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.assignments.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCascade(c, result, result.Reclaimed)
}

// Delete godoc
// @Summary Delete assignment with its submissions and media
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	report, err := h.assignments.Delete(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCascade(c, report, report)
}
