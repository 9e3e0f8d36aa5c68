package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/coursework-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, class_id, student_id, enrolled_at) VALUES (:id, :class_id, :student_id, :enrolled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// Exists reports whether the student is enrolled in the class.
func (r *EnrollmentRepository) Exists(ctx context.Context, classID, studentID string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, `SELECT 1 FROM enrollments WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ListByClass returns the class roster ordered by enrollment time.
func (r *EnrollmentRepository) ListByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	const query = `SELECT id, class_id, student_id, enrolled_at FROM enrollments WHERE class_id = $1 ORDER BY enrolled_at ASC, student_id ASC`
	enrollments := make([]models.Enrollment, 0)
	if err := r.db.SelectContext(ctx, &enrollments, query, classID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// ListStudentIDs returns the ids of students enrolled in the class.
func (r *EnrollmentRepository) ListStudentIDs(ctx context.Context, classID string) ([]string, error) {
	ids := make([]string, 0)
	if err := r.db.SelectContext(ctx, &ids, `SELECT student_id FROM enrollments WHERE class_id = $1 ORDER BY student_id ASC`, classID); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return ids, nil
}

// ListStudentIDsByAssignment returns the roster of the class owning the assignment.
func (r *EnrollmentRepository) ListStudentIDsByAssignment(ctx context.Context, assignmentID string) ([]string, error) {
	const query = `SELECT e.student_id FROM enrollments e
JOIN lessons l ON l.class_id = e.class_id
JOIN assignments a ON a.lesson_id = l.id
WHERE a.id = $1 ORDER BY e.student_id ASC`
	ids := make([]string, 0)
	if err := r.db.SelectContext(ctx, &ids, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list assignment roster: %w", err)
	}
	return ids, nil
}

// Delete removes the enrollment and reports whether a row existed.
func (r *EnrollmentRepository) Delete(ctx context.Context, classID, studentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enrollment rows affected: %w", err)
	}
	return affected > 0, nil
}
