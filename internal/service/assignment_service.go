package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
	"github.com/noah-isme/coursework-api/pkg/logger"
)

type assignmentStore interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByLesson(ctx context.Context, lessonID string) ([]models.Assignment, error)
	ReplaceBlocks(ctx context.Context, id string, blocks models.BlockList) (*models.Assignment, *models.Assignment, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type assignmentSubmissionLister interface {
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error)
}

type submissionRemover interface {
	Remove(ctx context.Context, ids []string) (int, error)
}

// AssignmentService authors assignments and owns their delete cascade.
type AssignmentService struct {
	repo        assignmentStore
	lessons     lessonFinder
	submissions assignmentSubmissionLister
	remover     submissionRemover
	reclaimer   *MediaReclaimer
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentStore, lessons lessonFinder, submissions assignmentSubmissionLister, remover submissionRemover, reclaimer *MediaReclaimer, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{
		repo:        repo,
		lessons:     lessons,
		submissions: submissions,
		remover:     remover,
		reclaimer:   reclaimer,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Create persists a new assignment under lessonID authored by actor.
func (s *AssignmentService) Create(ctx context.Context, actor models.Actor, lessonID string, req models.AssignmentContentRequest) (*models.AssignmentView, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := s.validateContent(req); err != nil {
		return nil, err
	}
	if err := s.reclaimer.Authorize(actor, req.Blocks); err != nil {
		return nil, blockValidationError(err)
	}
	if _, err := s.lessons.FindByID(ctx, lessonID); err != nil {
		return nil, lookupError(err, "lesson")
	}

	assignment := &models.Assignment{
		LessonID:     lessonID,
		InstructorID: actor.UserID,
		Blocks:       req.Blocks,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Transaction(err, "failed to create assignment")
	}
	s.cache.InvalidateProgress(ctx)

	view := models.NewAssignmentView(*assignment)
	return &view, nil
}

// Update replaces the assignment's blocks wholesale. Existing submissions are untouched.
func (s *AssignmentService) Update(ctx context.Context, actor models.Actor, id string, req models.AssignmentContentRequest) (*models.AssignmentUpdateResult, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := s.validateContent(req); err != nil {
		return nil, err
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "assignment")
	}
	if err := s.reclaimer.Authorize(actor, req.Blocks, current.Content()); err != nil {
		return nil, blockValidationError(err)
	}

	prev, updated, err := s.repo.ReplaceBlocks(ctx, id, req.Blocks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Transaction(err, "failed to update assignment")
	}

	replaced := models.ReplacedPaths(s.reclaimer.Encoding(prev.Content()), s.reclaimer.Encoding(updated.Content()))
	return &models.AssignmentUpdateResult{
		Assignment: models.NewAssignmentView(*updated),
		Reclaimed:  s.reclaimer.Reclaim(ctx, replaced, models.GarbageSourceReplacedMedia),
	}, nil
}

func (s *AssignmentService) validateContent(req models.AssignmentContentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := req.Blocks.Validate(models.ValidateForPersist); err != nil {
		return blockValidationError(err)
	}
	return nil
}

// Get returns an assignment with its render-ordered view.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.AssignmentView, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "assignment")
	}
	view := models.NewAssignmentView(*assignment)
	return &view, nil
}

// ListByLesson returns the lesson's assignments in creation order.
func (s *AssignmentService) ListByLesson(ctx context.Context, lessonID string) ([]models.AssignmentView, error) {
	if _, err := s.lessons.FindByID(ctx, lessonID); err != nil {
		return nil, lookupError(err, "lesson")
	}
	assignments, err := s.repo.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	views := make([]models.AssignmentView, 0, len(assignments))
	for _, a := range assignments {
		views = append(views, models.NewAssignmentView(a))
	}
	return views, nil
}

// Delete removes an assignment, its submissions and every stored object they reference.
// Deleting an assignment that is already gone succeeds with an empty report.
func (s *AssignmentService) Delete(ctx context.Context, actor models.Actor, id string) (models.CascadeReport, error) {
	if err := requireStaff(actor); err != nil {
		return models.CascadeReport{}, err
	}
	assignment, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CascadeReport{}, nil
	}
	if err != nil {
		return models.CascadeReport{}, lookupError(err, "assignment")
	}
	report, err := s.cascade(ctx, assignment, models.GarbageSourceAssignmentDelete)
	if err != nil {
		s.metrics.RecordCascade("assignment", OutcomeFailed)
		return report, err
	}
	s.metrics.RecordCascade("assignment", cascadeOutcome(report))
	return report, nil
}

// cascade runs the ordered delete: collect submissions, resolve their paths, reclaim storage,
// delete submission rows, then delete the assignment row. Storage failures are reported only.
func (s *AssignmentService) cascade(ctx context.Context, assignment *models.Assignment, source string) (models.CascadeReport, error) {
	ctx, span := tracer.Start(ctx, "assignment.delete_cascade")
	defer span.End()
	span.SetAttributes(attribute.String("assignment.id", assignment.ID))
	log := logger.WithContext(ctx, s.logger).With(zap.String("assignment_id", assignment.ID))

	submissions, err := s.submissions.ListByAssignment(ctx, assignment.ID)
	if err != nil {
		failSpan(span, err)
		return models.CascadeReport{}, appErrors.Transaction(err, "failed to collect submissions")
	}

	ids := make([]string, 0, len(submissions))
	sources := make([]models.ContentSource, 0, len(submissions)+1)
	for _, sub := range submissions {
		ids = append(ids, sub.ID)
		sources = append(sources, sub.Content())
	}
	sources = append(sources, assignment.Content())

	report := s.reclaimer.Reclaim(ctx, s.reclaimer.Paths(sources...), source)
	span.SetAttributes(attribute.Int("cascade.storage_paths", len(report.StoragePaths)), attribute.Int("cascade.failed_paths", len(report.FailedPaths)))

	removed, err := s.remover.Remove(ctx, ids)
	if err != nil {
		failSpan(span, err)
		log.Error("assignment cascade stopped before submission delete", zap.Error(err))
		return report, err
	}
	report.DeletedSubmissions = removed

	if _, err := s.repo.Delete(ctx, assignment.ID); err != nil {
		failSpan(span, err)
		log.Error("assignment cascade stopped before assignment delete", zap.Error(err))
		return report, appErrors.Transaction(err, "failed to delete assignment")
	}
	s.cache.InvalidateProgress(ctx)

	log.Info("assignment deleted",
		zap.Int("submissions", removed),
		zap.Int("storage_paths", len(report.StoragePaths)),
		zap.Int("failed_paths", len(report.FailedPaths)),
	)
	return report, nil
}

// DeleteForLesson cascades through every assignment of a lesson, stopping at the first
// relational failure. Storage reports are merged.
func (s *AssignmentService) DeleteForLesson(ctx context.Context, lessonID string) (models.CascadeReport, error) {
	var total models.CascadeReport
	assignments, err := s.repo.ListByLesson(ctx, lessonID)
	if err != nil {
		return total, appErrors.Transaction(err, "failed to collect assignments")
	}
	for i := range assignments {
		report, err := s.cascade(ctx, &assignments[i], models.GarbageSourceLessonDelete)
		total.Merge(report)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
