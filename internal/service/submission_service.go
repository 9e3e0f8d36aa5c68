package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
	"github.com/noah-isme/coursework-api/pkg/logger"
)

type submissionStore interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error)
	Upsert(ctx context.Context, submission *models.Submission) (*models.Submission, error)
	UpdateReview(ctx context.Context, id string, feedback *string, status models.SubmissionStatus, reviewerID string, reviewedAt time.Time) error
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

type assignmentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type lessonFinder interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

type enrollmentChecker interface {
	Exists(ctx context.Context, classID, studentID string) (bool, error)
	ListStudentIDsByAssignment(ctx context.Context, assignmentID string) ([]string, error)
}

// SubmissionService owns the submission state machine.
type SubmissionService struct {
	repo        submissionStore
	assignments assignmentFinder
	lessons     lessonFinder
	enrollments enrollmentChecker
	reclaimer   *MediaReclaimer
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(repo submissionStore, assignments assignmentFinder, lessons lessonFinder, enrollments enrollmentChecker, reclaimer *MediaReclaimer, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		repo:        repo,
		assignments: assignments,
		lessons:     lessons,
		enrollments: enrollments,
		reclaimer:   reclaimer,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit inserts or overwrites the caller's submission and moves it to PENDING_REVIEW.
// Prior feedback is kept. Media referenced only by the previous content is reclaimed.
func (s *SubmissionService) Submit(ctx context.Context, actor models.Actor, assignmentID string, blocks models.BlockList) (*models.SubmitResult, error) {
	if actor.Role != models.RoleStudent || actor.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can submit work")
	}
	if err := blocks.Validate(models.ValidateForPersist); err != nil {
		return nil, blockValidationError(err)
	}

	ctx, span := tracer.Start(ctx, "submission.submit")
	defer span.End()
	span.SetAttributes(attribute.String("assignment.id", assignmentID))

	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, lookupError(err, "assignment")
	}
	if err := s.ensureEnrolled(ctx, assignment.LessonID, actor.UserID); err != nil {
		return nil, err
	}
	if err := s.authorizeMedia(ctx, actor, assignmentID, blocks); err != nil {
		return nil, err
	}

	submission := &models.Submission{
		AssignmentID: assignmentID,
		StudentID:    actor.UserID,
		Blocks:       blocks,
	}
	prev, err := s.repo.Upsert(ctx, submission)
	if err != nil {
		failSpan(span, err)
		logger.WithContext(ctx, s.logger).Error("failed to upsert submission", zap.String("assignment_id", assignmentID), zap.Error(err))
		return nil, appErrors.Transaction(err, "failed to save submission")
	}
	s.metrics.RecordSubmissionTransition(submission.Status)
	s.cache.InvalidateProgress(ctx)

	result := &models.SubmitResult{Submission: *submission}
	if prev != nil {
		replaced := models.ReplacedPaths(s.reclaimer.Encoding(prev.Content()), s.reclaimer.Encoding(submission.Content()))
		result.Reclaimed = s.reclaimer.Reclaim(ctx, replaced, models.GarbageSourceReplacedMedia)
	}
	return result, nil
}

// authorizeMedia allows the student's own uploads plus whatever their current submission
// already references.
func (s *SubmissionService) authorizeMedia(ctx context.Context, actor models.Actor, assignmentID string, blocks models.BlockList) error {
	var prior []models.ContentSource
	current, err := s.repo.FindByAssignmentAndStudent(ctx, assignmentID, actor.UserID)
	switch {
	case err == nil:
		prior = append(prior, current.Content())
	case !errors.Is(err, sql.ErrNoRows):
		return lookupError(err, "submission")
	}
	if err := s.reclaimer.Authorize(actor, blocks, prior...); err != nil {
		return blockValidationError(err)
	}
	return nil
}

func (s *SubmissionService) ensureEnrolled(ctx context.Context, lessonID, studentID string) error {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		return lookupError(err, "lesson")
	}
	enrolled, err := s.enrollments.Exists(ctx, lesson.ClassID, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this class")
	}
	return nil
}

// Review records instructor feedback. Blank feedback clears it and reopens the submission.
func (s *SubmissionService) Review(ctx context.Context, actor models.Actor, submissionID, feedback string) (*models.Submission, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var stored *string
	if trimmed := strings.TrimSpace(feedback); trimmed != "" {
		stored = &feedback
	}
	status := models.StatusForFeedback(stored)
	reviewedAt := s.now()

	if err := s.repo.UpdateReview(ctx, submissionID, stored, status, actor.UserID, reviewedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Transaction(err, "failed to save review")
	}
	s.metrics.RecordSubmissionTransition(status)
	s.cache.InvalidateProgress(ctx)

	submission, err := s.repo.FindByID(ctx, submissionID)
	if err != nil {
		return nil, lookupError(err, "submission")
	}
	return submission, nil
}

// Remove hard-deletes submission rows. Ids that are already gone are not an error.
func (s *SubmissionService) Remove(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted, err := s.repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, appErrors.Transaction(err, "failed to delete submissions")
	}
	if deleted > 0 {
		s.cache.InvalidateProgress(ctx)
	}
	return int(deleted), nil
}

// GetForStudent returns the student's submission, or a NOT_STARTED placeholder without an id.
func (s *SubmissionService) GetForStudent(ctx context.Context, actor models.Actor, assignmentID, studentID string) (*models.Submission, error) {
	if studentID == "" {
		studentID = actor.UserID
	}
	if !actor.IsStaff() && studentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another student's submission")
	}
	if _, err := s.assignments.FindByID(ctx, assignmentID); err != nil {
		return nil, lookupError(err, "assignment")
	}
	submission, err := s.repo.FindByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			placeholder := models.NotStartedSubmission(assignmentID, studentID)
			return &placeholder, nil
		}
		return nil, lookupError(err, "submission")
	}
	return submission, nil
}

// ListForAssignment returns one entry per enrolled student, NOT_STARTED placeholders included.
// Rows of students no longer enrolled are still listed after the roster.
func (s *SubmissionService) ListForAssignment(ctx context.Context, actor models.Actor, assignmentID string) ([]models.Submission, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if _, err := s.assignments.FindByID(ctx, assignmentID); err != nil {
		return nil, lookupError(err, "assignment")
	}
	enrolled, err := s.enrollments.ListStudentIDsByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}
	rows, err := s.repo.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}

	byStudent := make(map[string]models.Submission, len(rows))
	for _, row := range rows {
		byStudent[row.StudentID] = row
	}
	out := make([]models.Submission, 0, len(enrolled))
	for _, studentID := range enrolled {
		if row, ok := byStudent[studentID]; ok {
			out = append(out, row)
			delete(byStudent, studentID)
			continue
		}
		out = append(out, models.NotStartedSubmission(assignmentID, studentID))
	}
	for _, row := range rows {
		if _, ok := byStudent[row.StudentID]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}
