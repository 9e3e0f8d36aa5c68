package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coursework-api/internal/models"
	"github.com/noah-isme/coursework-api/pkg/response"
)

type submissionService interface {
	Submit(ctx context.Context, actor models.Actor, assignmentID string, blocks models.BlockList) (*models.SubmitResult, error)
	Review(ctx context.Context, actor models.Actor, submissionID, feedback string) (*models.Submission, error)
	GetForStudent(ctx context.Context, actor models.Actor, assignmentID, studentID string) (*models.Submission, error)
	ListForAssignment(ctx context.Context, actor models.Actor, assignmentID string) ([]models.Submission, error)
}

// SubmissionHandler exposes the submission lifecycle.
type SubmissionHandler struct {
	submissions submissionService
}

// NewSubmissionHandler constructs SubmissionHandler.
func NewSubmissionHandler(submissions submissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// Submit godoc
// @Summary Submit or resubmit work
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body models.SubmitRequest true "Content blocks"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/submission [put]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.SubmitRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.submissions.Submit(c.Request.Context(), actor, c.Param("id"), req.Blocks)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCascade(c, result, result.Reclaimed)
}

// Get godoc
// @Summary Get a student's submission
// @Description Returns a NOT_STARTED placeholder when the student has not submitted.
// @Tags Submissions
// @Produce json
// @Param id path string true "Assignment ID"
// @Param studentId query string false "Student ID (defaults to the caller)"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/submission [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	studentID := c.DefaultQuery("studentId", actor.UserID)
	submission, err := h.submissions.GetForStudent(c.Request.Context(), actor, c.Param("id"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// List godoc
// @Summary List submissions for every enrolled student
// @Tags Submissions
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	submissions, err := h.submissions.ListForAssignment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}

// Review godoc
// @Summary Record feedback on a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body models.ReviewRequest true "Feedback"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/review [put]
func (h *SubmissionHandler) Review(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.ReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	submission, err := h.submissions.Review(c.Request.Context(), actor, c.Param("id"), req.Feedback)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}
