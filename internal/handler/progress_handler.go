package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coursework-api/internal/models"
	"github.com/noah-isme/coursework-api/pkg/response"
)

type progressService interface {
	StatsForAssignment(ctx context.Context, actor models.Actor, assignmentID string) (*models.AssignmentStats, error)
	ProgressInClass(ctx context.Context, actor models.Actor, classID, studentID string) (*models.ClassProgress, error)
	ClassRoster(ctx context.Context, actor models.Actor, classID string) ([]models.ClassProgress, error)
	ExportRoster(ctx context.Context, actor models.Actor, classID, format string) (*models.RosterExport, error)
}

// ProgressHandler exposes progress aggregation endpoints.
type ProgressHandler struct {
	progress progressService
}

// NewProgressHandler constructs ProgressHandler.
func NewProgressHandler(progress progressService) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// AssignmentStats godoc
// @Summary Submission status counts for an assignment
// @Tags Progress
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/stats [get]
func (h *ProgressHandler) AssignmentStats(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	stats, err := h.progress.StatsForAssignment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Student godoc
// @Summary Progress of one student in a class
// @Tags Progress
// @Produce json
// @Param classId path string true "Class ID"
// @Param studentId query string false "Student ID (defaults to the caller)"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/progress [get]
func (h *ProgressHandler) Student(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	studentID := c.DefaultQuery("studentId", actor.UserID)
	progress, err := h.progress.ProgressInClass(c.Request.Context(), actor, c.Param("classId"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Roster godoc
// @Summary Progress of every enrolled student
// @Tags Progress
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/progress/roster [get]
func (h *ProgressHandler) Roster(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	roster, err := h.progress.ClassRoster(c.Request.Context(), actor, c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// Export godoc
// @Summary Download the class progress roster
// @Tags Progress
// @Produce text/csv
// @Produce application/pdf
// @Param classId path string true "Class ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /classes/{classId}/progress/export [get]
func (h *ProgressHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	export, err := h.progress.ExportRoster(c.Request.Context(), actor, c.Param("classId"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+export.FileName+"\"")
	c.Data(http.StatusOK, export.ContentType, export.Data)
}
