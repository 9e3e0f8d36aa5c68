package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
	"github.com/noah-isme/coursework-api/pkg/logger"
)

type enrollmentStore interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Exists(ctx context.Context, classID, studentID string) (bool, error)
	ListByClass(ctx context.Context, classID string) ([]models.Enrollment, error)
	Delete(ctx context.Context, classID, studentID string) (bool, error)
}

type lessonIDLister interface {
	ListIDsByClass(ctx context.Context, classID string) ([]string, error)
}

type assignmentIDLister interface {
	ListIDsByLessons(ctx context.Context, lessonIDs []string) ([]string, error)
}

type studentSubmissionLister interface {
	ListByStudentAndAssignments(ctx context.Context, studentID string, assignmentIDs []string) ([]models.Submission, error)
}

// EnrollmentService manages class rosters and coordinates enrollment removal.
type EnrollmentService struct {
	repo        enrollmentStore
	classes     classChecker
	lessons     lessonIDLister
	assignments assignmentIDLister
	submissions studentSubmissionLister
	remover     submissionRemover
	reclaimer   *MediaReclaimer
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// EnrollmentDeps groups the collaborators of EnrollmentService.
type EnrollmentDeps struct {
	Repo        enrollmentStore
	Classes     classChecker
	Lessons     lessonIDLister
	Assignments assignmentIDLister
	Submissions studentSubmissionLister
	Remover     submissionRemover
	Reclaimer   *MediaReclaimer
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(deps EnrollmentDeps) *EnrollmentService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	return &EnrollmentService{
		repo:        deps.Repo,
		classes:     deps.Classes,
		lessons:     deps.Lessons,
		assignments: deps.Assignments,
		submissions: deps.Submissions,
		remover:     deps.Remover,
		reclaimer:   deps.Reclaimer,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		validator:   deps.Validator,
		logger:      deps.Logger,
	}
}

// Enroll adds a student to a class.
func (s *EnrollmentService) Enroll(ctx context.Context, actor models.Actor, classID string, req models.EnrollRequest) (*models.Enrollment, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if err := ensureClass(ctx, s.classes, classID); err != nil {
		return nil, err
	}
	exists, err := s.repo.Exists(ctx, classID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in class")
	}

	enrollment := &models.Enrollment{ClassID: classID, StudentID: req.StudentID}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Transaction(err, "failed to enroll student")
	}
	s.cache.InvalidateProgress(ctx)
	return enrollment, nil
}

// Roster lists the class enrollments.
func (s *EnrollmentService) Roster(ctx context.Context, classID string) ([]models.Enrollment, error) {
	if err := ensureClass(ctx, s.classes, classID); err != nil {
		return nil, err
	}
	enrollments, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// RemoveStudentFromClass purges the student's submissions and their media across the class,
// then deletes the enrollment. Any relational failure stops the cascade with the enrollment intact.
// Removing a student who is not enrolled is a no-op.
func (s *EnrollmentService) RemoveStudentFromClass(ctx context.Context, actor models.Actor, classID, studentID string) (*models.RemovalResult, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := ensureClass(ctx, s.classes, classID); err != nil {
		return nil, err
	}
	enrolled, err := s.repo.Exists(ctx, classID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return &models.RemovalResult{Removed: false}, nil
	}

	ctx, span := tracer.Start(ctx, "enrollment.remove_cascade")
	defer span.End()
	span.SetAttributes(attribute.String("class.id", classID), attribute.String("student.id", studentID))
	log := logger.WithContext(ctx, s.logger).With(zap.String("class_id", classID), zap.String("student_id", studentID))

	fail := func(err error, message string) (*models.RemovalResult, error) {
		failSpan(span, err)
		s.metrics.RecordCascade("enrollment", OutcomeFailed)
		log.Error(message, zap.Error(err))
		return nil, appErrors.Transaction(err, message)
	}

	lessonIDs, err := s.lessons.ListIDsByClass(ctx, classID)
	if err != nil {
		return fail(err, "failed to resolve class lessons")
	}
	assignmentIDs, err := s.assignments.ListIDsByLessons(ctx, lessonIDs)
	if err != nil {
		return fail(err, "failed to resolve class assignments")
	}
	submissions, err := s.submissions.ListByStudentAndAssignments(ctx, studentID, assignmentIDs)
	if err != nil {
		return fail(err, "failed to collect student submissions")
	}

	ids := make([]string, 0, len(submissions))
	sources := make([]models.ContentSource, 0, len(submissions))
	for _, sub := range submissions {
		ids = append(ids, sub.ID)
		sources = append(sources, sub.Content())
	}
	report := s.reclaimer.Reclaim(ctx, s.reclaimer.Paths(sources...), models.GarbageSourceEnrollmentRemove)

	removed, err := s.remover.Remove(ctx, ids)
	if err != nil {
		failSpan(span, err)
		s.metrics.RecordCascade("enrollment", OutcomeFailed)
		log.Error("enrollment cascade stopped before submission delete", zap.Error(err))
		return nil, err
	}
	report.DeletedSubmissions = removed

	deleted, err := s.repo.Delete(ctx, classID, studentID)
	if err != nil {
		return fail(err, "failed to delete enrollment")
	}
	s.cache.InvalidateProgress(ctx)
	s.metrics.RecordCascade("enrollment", cascadeOutcome(report))

	log.Info("student removed from class",
		zap.Int("submissions", removed),
		zap.Int("storage_paths", len(report.StoragePaths)),
		zap.Int("failed_paths", len(report.FailedPaths)),
	)
	return &models.RemovalResult{Removed: deleted, Report: report}, nil
}
