package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
	"github.com/noah-isme/coursework-api/pkg/logger"
)

type lessonStore interface {
	Create(ctx context.Context, lesson *models.Lesson) error
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByClass(ctx context.Context, classID string) ([]models.Lesson, error)
	Delete(ctx context.Context, id string) error
}

type classChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type lessonAssignmentCascade interface {
	DeleteForLesson(ctx context.Context, lessonID string) (models.CascadeReport, error)
}

// LessonService manages lessons within a class.
type LessonService struct {
	repo        lessonStore
	classes     classChecker
	assignments lessonAssignmentCascade
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewLessonService constructs LessonService.
func NewLessonService(repo lessonStore, classes classChecker, assignments lessonAssignmentCascade, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LessonService{repo: repo, classes: classes, assignments: assignments, metrics: metrics, validator: validate, logger: logger}
}

// Create appends a lesson to the class.
func (s *LessonService) Create(ctx context.Context, actor models.Actor, classID string, req models.CreateLessonRequest) (*models.Lesson, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if err := ensureClass(ctx, s.classes, classID); err != nil {
		return nil, err
	}
	lesson := &models.Lesson{ClassID: classID, Title: req.Title}
	if err := s.repo.Create(ctx, lesson); err != nil {
		return nil, appErrors.Transaction(err, "failed to create lesson")
	}
	return lesson, nil
}

// ListByClass returns the class lessons by position.
func (s *LessonService) ListByClass(ctx context.Context, classID string) ([]models.Lesson, error) {
	if err := ensureClass(ctx, s.classes, classID); err != nil {
		return nil, err
	}
	lessons, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// Delete cascades through the lesson's assignments and removes the lesson row last.
func (s *LessonService) Delete(ctx context.Context, actor models.Actor, lessonID string) (models.CascadeReport, error) {
	if err := requireStaff(actor); err != nil {
		return models.CascadeReport{}, err
	}
	if _, err := s.repo.FindByID(ctx, lessonID); err != nil {
		return models.CascadeReport{}, lookupError(err, "lesson")
	}

	ctx, span := tracer.Start(ctx, "lesson.delete_cascade")
	defer span.End()

	report, err := s.assignments.DeleteForLesson(ctx, lessonID)
	if err != nil {
		failSpan(span, err)
		s.metrics.RecordCascade("lesson", OutcomeFailed)
		return report, err
	}
	if err := s.repo.Delete(ctx, lessonID); err != nil {
		failSpan(span, err)
		s.metrics.RecordCascade("lesson", OutcomeFailed)
		logger.WithContext(ctx, s.logger).Error("lesson cascade stopped before lesson delete", zap.String("lesson_id", lessonID), zap.Error(err))
		return report, appErrors.Transaction(err, "failed to delete lesson")
	}
	s.metrics.RecordCascade("lesson", cascadeOutcome(report))
	return report, nil
}
