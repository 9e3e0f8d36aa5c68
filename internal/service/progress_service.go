package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
	"github.com/noah-isme/coursework-api/pkg/export"
)

type progressStore interface {
	CountByStatus(ctx context.Context, assignmentID string) ([]models.StatusCount, error)
	SubmittedStudentIDs(ctx context.Context, assignmentID string) ([]string, error)
	CountStudentByStatus(ctx context.Context, studentID string, lessonIDs []string) ([]models.StatusCount, error)
	CountRosterByStatus(ctx context.Context, lessonIDs []string) ([]models.StudentStatusCount, error)
}

type assignmentCounter interface {
	CountByLessons(ctx context.Context, lessonIDs []string) (int, error)
}

type rosterReader interface {
	ListStudentIDs(ctx context.Context, classID string) ([]string, error)
	ListStudentIDsByAssignment(ctx context.Context, assignmentID string) ([]string, error)
}

// ProgressService aggregates submission state. It never writes submission or enrollment rows.
type ProgressService struct {
	repo        progressStore
	classes     classChecker
	lessons     lessonIDLister
	assignments assignmentCounter
	finder      assignmentFinder
	roster      rosterReader
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// ProgressDeps groups the collaborators of ProgressService.
type ProgressDeps struct {
	Repo        progressStore
	Classes     classChecker
	Lessons     lessonIDLister
	Assignments assignmentCounter
	Finder      assignmentFinder
	Roster      rosterReader
	Cache       *CacheService
	CacheTTL    time.Duration
	Logger      *zap.Logger
}

// NewProgressService constructs ProgressService.
func NewProgressService(deps ProgressDeps) *ProgressService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ProgressService{
		repo:        deps.Repo,
		classes:     deps.Classes,
		lessons:     deps.Lessons,
		assignments: deps.Assignments,
		finder:      deps.Finder,
		roster:      deps.Roster,
		cache:       deps.Cache,
		cacheTTL:    deps.CacheTTL,
		logger:      deps.Logger,
	}
}

// AssignmentStats counts enrolled students without a row as not started, and counts
// existing rows by status.
func (s *ProgressService) AssignmentStats(ctx context.Context, assignmentID string, enrolledStudentIDs []string) (*models.AssignmentStats, error) {
	submitted, err := s.repo.SubmittedStudentIDs(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submitted students")
	}
	counts, err := s.repo.CountByStatus(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count submissions")
	}

	stats := &models.AssignmentStats{AssignmentID: assignmentID, NotStarted: notStartedCount(enrolledStudentIDs, submitted)}
	for _, c := range counts {
		switch c.Status {
		case models.SubmissionPendingReview:
			stats.PendingReview += c.Count
		case models.SubmissionCompleted:
			stats.Completed += c.Count
		}
	}
	return stats, nil
}

// notStartedCount is |enrolled - submitted| over distinct student ids.
func notStartedCount(enrolled, submitted []string) int {
	has := make(map[string]struct{}, len(submitted))
	for _, id := range submitted {
		has[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(enrolled))
	n := 0
	for _, id := range enrolled {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := has[id]; !ok {
			n++
		}
	}
	return n
}

// ClassProgress counts every assignment under lessonIDs as total, and only the student's
// own rows as completed or pending.
func (s *ProgressService) ClassProgress(ctx context.Context, studentID string, lessonIDs []string) (*models.ClassProgress, error) {
	total, err := s.assignments.CountByLessons(ctx, lessonIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
	}
	counts, err := s.repo.CountStudentByStatus(ctx, studentID, lessonIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count student submissions")
	}
	progress := &models.ClassProgress{StudentID: studentID, Total: total}
	for _, c := range counts {
		applyStatusCount(progress, c.Status, c.Count)
	}
	return progress, nil
}

func applyStatusCount(p *models.ClassProgress, status models.SubmissionStatus, count int) {
	switch status {
	case models.SubmissionCompleted:
		p.Completed += count
	case models.SubmissionPendingReview:
		p.Pending += count
	}
}

// StatsForAssignment computes AssignmentStats against the class roster owning the assignment.
func (s *ProgressService) StatsForAssignment(ctx context.Context, actor models.Actor, assignmentID string) (*models.AssignmentStats, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var cached models.AssignmentStats
	if s.cache.Get(ctx, assignmentStatsKey(assignmentID), &cached) {
		return &cached, nil
	}
	if _, err := s.finder.FindByID(ctx, assignmentID); err != nil {
		return nil, lookupError(err, "assignment")
	}
	enrolled, err := s.roster.ListStudentIDsByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}
	stats, err := s.AssignmentStats(ctx, assignmentID, enrolled)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, assignmentStatsKey(assignmentID), stats, s.cacheTTL)
	return stats, nil
}

// ProgressInClass computes ClassProgress for a student over every lesson of the class.
// Students may only read their own progress.
func (s *ProgressService) ProgressInClass(ctx context.Context, actor models.Actor, classID, studentID string) (*models.ClassProgress, error) {
	if studentID == "" {
		studentID = actor.UserID
	}
	if !actor.IsStaff() && studentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another student's progress")
	}
	var cached models.ClassProgress
	if s.cache.Get(ctx, classProgressKey(classID, studentID), &cached) {
		return &cached, nil
	}
	if err := ensureClass(ctx, s.classes, classID); err != nil {
		return nil, err
	}
	lessonIDs, err := s.lessons.ListIDsByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	progress, err := s.ClassProgress(ctx, studentID, lessonIDs)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, classProgressKey(classID, studentID), progress, s.cacheTTL)
	return progress, nil
}

// ClassRoster returns ClassProgress for every enrolled student in roster order.
func (s *ProgressService) ClassRoster(ctx context.Context, actor models.Actor, classID string) ([]models.ClassProgress, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var cached []models.ClassProgress
	if s.cache.Get(ctx, rosterKey(classID), &cached) {
		return cached, nil
	}
	if err := ensureClass(ctx, s.classes, classID); err != nil {
		return nil, err
	}
	students, err := s.roster.ListStudentIDs(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}
	lessonIDs, err := s.lessons.ListIDsByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	total, err := s.assignments.CountByLessons(ctx, lessonIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
	}
	counts, err := s.repo.CountRosterByStatus(ctx, lessonIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count roster submissions")
	}

	byStudent := make(map[string]*models.ClassProgress, len(students))
	roster := make([]models.ClassProgress, len(students))
	for i, id := range students {
		roster[i] = models.ClassProgress{StudentID: id, Total: total}
		byStudent[id] = &roster[i]
	}
	for _, c := range counts {
		if p, ok := byStudent[c.StudentID]; ok {
			applyStatusCount(p, c.Status, c.Count)
		}
	}
	s.cache.Set(ctx, rosterKey(classID), roster, s.cacheTTL)
	return roster, nil
}

// ExportRoster renders the class roster progress as CSV or PDF.
func (s *ProgressService) ExportRoster(ctx context.Context, actor models.Actor, classID, format string) (*models.RosterExport, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
		}
		return nil, err
	}
	roster, err := s.ClassRoster(ctx, actor, classID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Class %s progress", classID),
		Headers: []string{"Student", "Completed", "Pending review", "Not submitted", "Total"},
		Rows:    make([][]string, 0, len(roster)),
	}
	for _, p := range roster {
		dataset.Rows = append(dataset.Rows, []string{
			p.StudentID,
			strconv.Itoa(p.Completed),
			strconv.Itoa(p.Pending),
			strconv.Itoa(p.Remaining()),
			strconv.Itoa(p.Total),
		})
	}
	data, err := export.Render(f, dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster export")
	}
	return &models.RosterExport{
		FileName:    fmt.Sprintf("class-%s-progress.%s", classID, f),
		ContentType: f.ContentType(),
		Data:        data,
	}, nil
}
