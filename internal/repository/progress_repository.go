package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/coursework-api/internal/models"
)

// ProgressRepository runs read-only aggregates over submissions.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// CountByStatus groups an assignment's submission rows by status.
func (r *ProgressRepository) CountByStatus(ctx context.Context, assignmentID string) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM submissions WHERE assignment_id = $1 GROUP BY status`
	counts := make([]models.StatusCount, 0)
	if err := r.db.SelectContext(ctx, &counts, query, assignmentID); err != nil {
		return nil, fmt.Errorf("count submissions by status: %w", err)
	}
	return counts, nil
}

// SubmittedStudentIDs lists students that have any submission row for the assignment.
func (r *ProgressRepository) SubmittedStudentIDs(ctx context.Context, assignmentID string) ([]string, error) {
	ids := make([]string, 0)
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT student_id FROM submissions WHERE assignment_id = $1`, assignmentID); err != nil {
		return nil, fmt.Errorf("list submitting students: %w", err)
	}
	return ids, nil
}

// CountStudentByStatus groups one student's rows across the lessons' assignments.
func (r *ProgressRepository) CountStudentByStatus(ctx context.Context, studentID string, lessonIDs []string) ([]models.StatusCount, error) {
	counts := make([]models.StatusCount, 0)
	if len(lessonIDs) == 0 {
		return counts, nil
	}
	const query = `SELECT s.status, COUNT(*) AS count FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE s.student_id = $1 AND a.lesson_id = ANY($2)
GROUP BY s.status`
	if err := r.db.SelectContext(ctx, &counts, query, studentID, pq.Array(lessonIDs)); err != nil {
		return nil, fmt.Errorf("count student submissions: %w", err)
	}
	return counts, nil
}

// CountRosterByStatus groups every student's rows across the lessons' assignments.
func (r *ProgressRepository) CountRosterByStatus(ctx context.Context, lessonIDs []string) ([]models.StudentStatusCount, error) {
	counts := make([]models.StudentStatusCount, 0)
	if len(lessonIDs) == 0 {
		return counts, nil
	}
	const query = `SELECT s.student_id, s.status, COUNT(*) AS count FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE a.lesson_id = ANY($1)
GROUP BY s.student_id, s.status`
	if err := r.db.SelectContext(ctx, &counts, query, pq.Array(lessonIDs)); err != nil {
		return nil, fmt.Errorf("count roster submissions: %w", err)
	}
	return counts, nil
}
