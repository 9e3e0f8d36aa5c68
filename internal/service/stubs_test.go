package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/models"
	"github.com/noah-isme/coursework-api/pkg/storage"
)

const testBucket = "coursework"

func mediaURL(path string) string {
	return "https://cdn.test/storage/v1/object/public/" + testBucket + "/" + path
}

func textBlocks(body string) models.BlockList {
	return models.BlockList{{Kind: models.BlockText, Body: body}}
}

func imageBlocks(paths ...string) models.BlockList {
	blocks := models.BlockList{{Kind: models.BlockText, Body: "see attached"}}
	for _, p := range paths {
		blocks = append(blocks, models.ContentBlock{Kind: models.BlockImage, Body: mediaURL(p)})
	}
	return blocks
}

// memWorld is an in-memory relational store shared by the repository stubs.
// events records deletes in the order they happen.
type memWorld struct {
	mu          sync.Mutex
	classes     map[string]bool
	lessons     map[string]models.Lesson
	assignments map[string]models.Assignment
	submissions map[string]models.Submission
	enrollments []models.Enrollment
	events      []string
	errs        map[string]error
	seq         int
}

func newMemWorld() *memWorld {
	return &memWorld{
		classes:     map[string]bool{},
		lessons:     map[string]models.Lesson{},
		assignments: map[string]models.Assignment{},
		submissions: map[string]models.Submission{},
		errs:        map[string]error{},
	}
}

func (w *memWorld) nextID(prefix string) string {
	w.seq++
	return fmt.Sprintf("%s-%d", prefix, w.seq)
}

func (w *memWorld) record(event string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
}

func (w *memWorld) eventIndex(event string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, e := range w.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (w *memWorld) addClass(id string) {
	w.classes[id] = true
}

func (w *memWorld) addLesson(id, classID string) {
	w.lessons[id] = models.Lesson{ID: id, ClassID: classID, Title: id, Position: len(w.lessons) + 1}
}

func (w *memWorld) addAssignment(id, lessonID string, blocks models.BlockList) {
	w.assignments[id] = models.Assignment{ID: id, LessonID: lessonID, InstructorID: "teacher-1", Blocks: blocks}
}

func (w *memWorld) addSubmission(id, assignmentID, studentID string, status models.SubmissionStatus, blocks models.BlockList) {
	now := time.Now().UTC()
	sub := models.Submission{ID: id, AssignmentID: assignmentID, StudentID: studentID, Blocks: blocks, Status: status, SubmittedAt: &now}
	if status == models.SubmissionCompleted {
		fb := "well done"
		sub.Feedback = &fb
	}
	w.submissions[id] = sub
}

func (w *memWorld) enroll(classID, studentID string) {
	w.enrollments = append(w.enrollments, models.Enrollment{ID: w.nextID("enr"), ClassID: classID, StudentID: studentID})
}

func (w *memWorld) isEnrolled(classID, studentID string) bool {
	for _, e := range w.enrollments {
		if e.ClassID == classID && e.StudentID == studentID {
			return true
		}
	}
	return false
}

func (w *memWorld) lessonOf(assignmentID string) (models.Lesson, bool) {
	a, ok := w.assignments[assignmentID]
	if !ok {
		return models.Lesson{}, false
	}
	l, ok := w.lessons[a.LessonID]
	return l, ok
}

func sortedSubmissions(m map[string]models.Submission, keep func(models.Submission) bool) []models.Submission {
	out := make([]models.Submission, 0)
	for _, s := range m {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type classStub struct{ w *memWorld }

func (s *classStub) Exists(ctx context.Context, id string) (bool, error) {
	return s.w.classes[id], nil
}

type lessonStub struct{ w *memWorld }

func (s *lessonStub) Create(ctx context.Context, lesson *models.Lesson) error {
	if err := s.w.errs["lessons.create"]; err != nil {
		return err
	}
	lesson.ID = s.w.nextID("lesson")
	pos := 0
	for _, l := range s.w.lessons {
		if l.ClassID == lesson.ClassID && l.Position > pos {
			pos = l.Position
		}
	}
	lesson.Position = pos + 1
	s.w.lessons[lesson.ID] = *lesson
	return nil
}

func (s *lessonStub) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	l, ok := s.w.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &l, nil
}

func (s *lessonStub) ListByClass(ctx context.Context, classID string) ([]models.Lesson, error) {
	out := make([]models.Lesson, 0)
	for _, l := range s.w.lessons {
		if l.ClassID == classID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *lessonStub) ListIDsByClass(ctx context.Context, classID string) ([]string, error) {
	lessons, _ := s.ListByClass(ctx, classID)
	ids := make([]string, 0, len(lessons))
	for _, l := range lessons {
		ids = append(ids, l.ID)
	}
	return ids, nil
}

func (s *lessonStub) Delete(ctx context.Context, id string) error {
	if err := s.w.errs["lessons.delete"]; err != nil {
		return err
	}
	delete(s.w.lessons, id)
	s.w.record("lesson:" + id)
	return nil
}

type assignmentStub struct{ w *memWorld }

func (s *assignmentStub) Create(ctx context.Context, a *models.Assignment) error {
	if err := s.w.errs["assignments.create"]; err != nil {
		return err
	}
	a.ID = s.w.nextID("assignment")
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	s.w.assignments[a.ID] = *a
	return nil
}

func (s *assignmentStub) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	a, ok := s.w.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (s *assignmentStub) ListByLesson(ctx context.Context, lessonID string) ([]models.Assignment, error) {
	if err := s.w.errs["assignments.list"]; err != nil {
		return nil, err
	}
	out := make([]models.Assignment, 0)
	for _, a := range s.w.assignments {
		if a.LessonID == lessonID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *assignmentStub) ListIDsByLessons(ctx context.Context, lessonIDs []string) ([]string, error) {
	want := map[string]bool{}
	for _, id := range lessonIDs {
		want[id] = true
	}
	ids := make([]string, 0)
	for _, a := range s.w.assignments {
		if want[a.LessonID] {
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *assignmentStub) CountByLessons(ctx context.Context, lessonIDs []string) (int, error) {
	ids, _ := s.ListIDsByLessons(ctx, lessonIDs)
	return len(ids), nil
}

func (s *assignmentStub) ReplaceBlocks(ctx context.Context, id string, blocks models.BlockList) (*models.Assignment, *models.Assignment, error) {
	current, ok := s.w.assignments[id]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	next := current
	next.Blocks = blocks
	next.FileURL = nil
	next.UpdatedAt = time.Now().UTC()
	s.w.assignments[id] = next
	return &current, &next, nil
}

func (s *assignmentStub) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.w.errs["assignments.delete"]; err != nil {
		return false, err
	}
	for sid, sub := range s.w.submissions {
		if sub.AssignmentID == id {
			delete(s.w.submissions, sid)
		}
	}
	_, existed := s.w.assignments[id]
	delete(s.w.assignments, id)
	s.w.record("assignment:" + id)
	return existed, nil
}

type submissionStub struct{ w *memWorld }

func (s *submissionStub) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	sub, ok := s.w.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &sub, nil
}

func (s *submissionStub) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	for _, sub := range s.w.submissions {
		if sub.AssignmentID == assignmentID && sub.StudentID == studentID {
			found := sub
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *submissionStub) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error) {
	if err := s.w.errs["submissions.list"]; err != nil {
		return nil, err
	}
	return sortedSubmissions(s.w.submissions, func(sub models.Submission) bool { return sub.AssignmentID == assignmentID }), nil
}

func (s *submissionStub) ListByStudentAndAssignments(ctx context.Context, studentID string, assignmentIDs []string) ([]models.Submission, error) {
	want := map[string]bool{}
	for _, id := range assignmentIDs {
		want[id] = true
	}
	return sortedSubmissions(s.w.submissions, func(sub models.Submission) bool {
		return sub.StudentID == studentID && want[sub.AssignmentID]
	}), nil
}

func (s *submissionStub) Upsert(ctx context.Context, sub *models.Submission) (*models.Submission, error) {
	if err := s.w.errs["submissions.upsert"]; err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sub.Status = models.SubmissionPendingReview
	sub.SubmittedAt = &now
	sub.UpdatedAt = now
	sub.FileURL = nil

	existing, err := s.FindByAssignmentAndStudent(ctx, sub.AssignmentID, sub.StudentID)
	if err != nil {
		sub.ID = s.w.nextID("submission")
		sub.CreatedAt = now
		s.w.submissions[sub.ID] = *sub
		return nil, nil
	}
	prev := *existing
	sub.ID = existing.ID
	sub.CreatedAt = existing.CreatedAt
	sub.Feedback = existing.Feedback
	sub.ReviewedBy = existing.ReviewedBy
	sub.ReviewedAt = existing.ReviewedAt
	s.w.submissions[sub.ID] = *sub
	return &prev, nil
}

func (s *submissionStub) UpdateReview(ctx context.Context, id string, feedback *string, status models.SubmissionStatus, reviewerID string, reviewedAt time.Time) error {
	sub, ok := s.w.submissions[id]
	if !ok {
		return sql.ErrNoRows
	}
	sub.Feedback = feedback
	sub.Status = status
	sub.ReviewedBy = &reviewerID
	sub.ReviewedAt = &reviewedAt
	s.w.submissions[id] = sub
	return nil
}

func (s *submissionStub) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if err := s.w.errs["submissions.delete"]; err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if _, ok := s.w.submissions[id]; ok {
			delete(s.w.submissions, id)
			n++
		}
	}
	s.w.record("submissions")
	return n, nil
}

type enrollmentStub struct{ w *memWorld }

func (s *enrollmentStub) Create(ctx context.Context, e *models.Enrollment) error {
	e.ID = s.w.nextID("enr")
	e.EnrolledAt = time.Now().UTC()
	s.w.enrollments = append(s.w.enrollments, *e)
	return nil
}

func (s *enrollmentStub) Exists(ctx context.Context, classID, studentID string) (bool, error) {
	return s.w.isEnrolled(classID, studentID), nil
}

func (s *enrollmentStub) ListByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	out := make([]models.Enrollment, 0)
	for _, e := range s.w.enrollments {
		if e.ClassID == classID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *enrollmentStub) ListStudentIDs(ctx context.Context, classID string) ([]string, error) {
	enrollments, _ := s.ListByClass(ctx, classID)
	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.StudentID)
	}
	return ids, nil
}

func (s *enrollmentStub) ListStudentIDsByAssignment(ctx context.Context, assignmentID string) ([]string, error) {
	lesson, ok := s.w.lessonOf(assignmentID)
	if !ok {
		return []string{}, nil
	}
	return s.ListStudentIDs(ctx, lesson.ClassID)
}

func (s *enrollmentStub) Delete(ctx context.Context, classID, studentID string) (bool, error) {
	if err := s.w.errs["enrollments.delete"]; err != nil {
		return false, err
	}
	kept := s.w.enrollments[:0]
	removed := false
	for _, e := range s.w.enrollments {
		if e.ClassID == classID && e.StudentID == studentID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	s.w.enrollments = kept
	s.w.record("enrollment:" + classID + ":" + studentID)
	return removed, nil
}

type progressStub struct{ w *memWorld }

func (s *progressStub) CountByStatus(ctx context.Context, assignmentID string) ([]models.StatusCount, error) {
	return s.count(func(sub models.Submission) bool { return sub.AssignmentID == assignmentID }), nil
}

func (s *progressStub) SubmittedStudentIDs(ctx context.Context, assignmentID string) ([]string, error) {
	ids := make([]string, 0)
	for _, sub := range sortedSubmissions(s.w.submissions, func(sub models.Submission) bool { return sub.AssignmentID == assignmentID }) {
		ids = append(ids, sub.StudentID)
	}
	return ids, nil
}

func (s *progressStub) CountStudentByStatus(ctx context.Context, studentID string, lessonIDs []string) ([]models.StatusCount, error) {
	inLessons := s.inLessons(lessonIDs)
	return s.count(func(sub models.Submission) bool { return sub.StudentID == studentID && inLessons(sub) }), nil
}

func (s *progressStub) CountRosterByStatus(ctx context.Context, lessonIDs []string) ([]models.StudentStatusCount, error) {
	inLessons := s.inLessons(lessonIDs)
	grouped := map[string]map[models.SubmissionStatus]int{}
	for _, sub := range sortedSubmissions(s.w.submissions, inLessons) {
		if grouped[sub.StudentID] == nil {
			grouped[sub.StudentID] = map[models.SubmissionStatus]int{}
		}
		grouped[sub.StudentID][sub.Status]++
	}
	out := make([]models.StudentStatusCount, 0)
	for student, byStatus := range grouped {
		for status, n := range byStatus {
			out = append(out, models.StudentStatusCount{StudentID: student, Status: status, Count: n})
		}
	}
	return out, nil
}

func (s *progressStub) inLessons(lessonIDs []string) func(models.Submission) bool {
	want := map[string]bool{}
	for _, id := range lessonIDs {
		want[id] = true
	}
	return func(sub models.Submission) bool {
		l, ok := s.w.lessonOf(sub.AssignmentID)
		return ok && want[l.ID]
	}
}

func (s *progressStub) count(keep func(models.Submission) bool) []models.StatusCount {
	byStatus := map[models.SubmissionStatus]int{}
	for _, sub := range sortedSubmissions(s.w.submissions, keep) {
		byStatus[sub.Status]++
	}
	out := make([]models.StatusCount, 0, len(byStatus))
	for _, status := range []models.SubmissionStatus{models.SubmissionPendingReview, models.SubmissionCompleted} {
		if n := byStatus[status]; n > 0 {
			out = append(out, models.StatusCount{Status: status, Count: n})
		}
	}
	return out
}

// memBackend is an object store whose deletes are logged into the world.
type memBackend struct {
	mu      sync.Mutex
	w       *memWorld
	objects map[string][]byte
	failing map[string]error
	putErr  error
}

func newMemBackend(w *memWorld) *memBackend {
	return &memBackend{w: w, objects: map[string][]byte{}, failing: map[string]error{}}
}

func (b *memBackend) Put(_ context.Context, p string, r io.Reader, _ string) error {
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[p] = data
	return nil
}

func (b *memBackend) Delete(_ context.Context, p string) error {
	b.mu.Lock()
	err := b.failing[p]
	if err == nil {
		delete(b.objects, p)
	}
	b.mu.Unlock()
	if err != nil {
		return err
	}
	if b.w != nil {
		b.w.record("storage:" + p)
	}
	return nil
}

func (b *memBackend) PublicURL(p string) string {
	return mediaURL(p)
}

func (b *memBackend) seed(paths ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		b.objects[p] = []byte("x")
	}
}

func (b *memBackend) has(p string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[p]
	return ok
}

func (b *memBackend) fail(p string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing[p] = err
}

func (b *memBackend) recover(p string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failing, p)
}

type garbageStub struct {
	items map[string]*models.StorageGarbage
	now   func() time.Time
	seq   int
}

func newGarbageStub() *garbageStub {
	return &garbageStub{items: map[string]*models.StorageGarbage{}, now: func() time.Time { return time.Now().UTC() }}
}

func (g *garbageStub) Record(ctx context.Context, paths []string, source, lastError string) error {
	for _, p := range paths {
		if item, ok := g.items[p]; ok {
			item.LastError = &lastError
			continue
		}
		g.seq++
		msg := lastError
		g.items[p] = &models.StorageGarbage{ID: fmt.Sprintf("g-%d", g.seq), Path: p, Source: source, LastError: &msg, NextAttemptAt: g.now()}
	}
	return nil
}

func (g *garbageStub) Claim(ctx context.Context, limit int, lease time.Duration) ([]models.StorageGarbage, error) {
	due := make([]*models.StorageGarbage, 0)
	for _, item := range g.items {
		if !item.NextAttemptAt.After(g.now()) {
			due = append(due, item)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Path < due[j].Path })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]models.StorageGarbage, 0, len(due))
	for _, item := range due {
		item.Attempts++
		item.NextAttemptAt = g.now().Add(lease)
		out = append(out, *item)
	}
	return out, nil
}

func (g *garbageStub) Resolve(ctx context.Context, ids []string) error {
	for _, id := range ids {
		for p, item := range g.items {
			if item.ID == id {
				delete(g.items, p)
			}
		}
	}
	return nil
}

func (g *garbageStub) Reschedule(ctx context.Context, id, lastError string, next time.Time) error {
	for _, item := range g.items {
		if item.ID == id {
			item.LastError = &lastError
			item.NextAttemptAt = next
		}
	}
	return nil
}

func (g *garbageStub) Count(ctx context.Context) (int, error) {
	return len(g.items), nil
}

// cacheRepoStub stores JSON payloads in a map.
type cacheRepoStub struct {
	entries  map[string][]byte
	patterns []string
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{entries: map[string][]byte{}}
}

type harness struct {
	w           *memWorld
	backend     *memBackend
	gateway     *storage.Gateway
	garbage     *garbageStub
	metrics     *MetricsService
	reclaimer   *MediaReclaimer
	submissions *SubmissionService
	assignments *AssignmentService
	lessons     *LessonService
	enrollments *EnrollmentService
	progress    *ProgressService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithCache(t, nil)
}

func newHarnessWithCache(t *testing.T, cache *CacheService) *harness {
	t.Helper()
	w := newMemWorld()
	backend := newMemBackend(w)
	gateway := storage.NewGateway(backend, storage.GatewayConfig{Bucket: testBucket, DeleteConcurrency: 2})
	garbage := newGarbageStub()
	metrics := NewMetricsService()
	logger := zap.NewNop()

	reclaimer := NewMediaReclaimer(gateway, garbage, metrics, logger)
	submissions := NewSubmissionService(&submissionStub{w}, &assignmentStub{w}, &lessonStub{w}, &enrollmentStub{w}, reclaimer, cache, metrics, logger)
	assignments := NewAssignmentService(&assignmentStub{w}, &lessonStub{w}, &submissionStub{w}, submissions, reclaimer, cache, metrics, nil, logger)
	lessons := NewLessonService(&lessonStub{w}, &classStub{w}, assignments, metrics, nil, logger)
	enrollments := NewEnrollmentService(EnrollmentDeps{
		Repo:        &enrollmentStub{w},
		Classes:     &classStub{w},
		Lessons:     &lessonStub{w},
		Assignments: &assignmentStub{w},
		Submissions: &submissionStub{w},
		Remover:     submissions,
		Reclaimer:   reclaimer,
		Cache:       cache,
		Metrics:     metrics,
		Logger:      logger,
	})
	progress := NewProgressService(ProgressDeps{
		Repo:        &progressStub{w},
		Classes:     &classStub{w},
		Lessons:     &lessonStub{w},
		Assignments: &assignmentStub{w},
		Finder:      &assignmentStub{w},
		Roster:      &enrollmentStub{w},
		Cache:       cache,
		Logger:      logger,
	})

	return &harness{
		w:           w,
		backend:     backend,
		gateway:     gateway,
		garbage:     garbage,
		metrics:     metrics,
		reclaimer:   reclaimer,
		submissions: submissions,
		assignments: assignments,
		lessons:     lessons,
		enrollments: enrollments,
		progress:    progress,
	}
}

var (
	teacher = models.Actor{UserID: "teacher-1", Role: models.RoleTeacher}
	admin   = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
)

func student(id string) models.Actor {
	return models.Actor{UserID: id, Role: models.RoleStudent}
}

func pngBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
}
