package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/coursework-api/internal/models"
)

const submissionColumns = `id, assignment_id, student_id, blocks, file_url, status, submitted_at, feedback, reviewed_by, reviewed_at, created_at, updated_at`

// SubmissionRepository persists submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindByID returns a submission by id.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindByAssignmentAndStudent returns the student's submission for an assignment.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE assignment_id = $1 AND student_id = $2`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListByAssignment returns every submission row of an assignment.
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE assignment_id = $1 ORDER BY submitted_at ASC`
	submissions := make([]models.Submission, 0)
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// ListByStudentAndAssignments returns a student's submissions across the assignments.
func (r *SubmissionRepository) ListByStudentAndAssignments(ctx context.Context, studentID string, assignmentIDs []string) ([]models.Submission, error) {
	submissions := make([]models.Submission, 0)
	if len(assignmentIDs) == 0 {
		return submissions, nil
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE student_id = $1 AND assignment_id = ANY($2)`
	if err := r.db.SelectContext(ctx, &submissions, query, studentID, pq.Array(assignmentIDs)); err != nil {
		return nil, fmt.Errorf("list student submissions: %w", err)
	}
	return submissions, nil
}

// Upsert writes the student's content keyed by (assignment, student), always moving the
// row to PENDING_REVIEW with a fresh submitted_at. Feedback is left untouched. The
// previous row is returned when one existed.
func (r *SubmissionRepository) Upsert(ctx context.Context, submission *models.Submission) (prev *models.Submission, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submission transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	submission.Status = models.SubmissionPendingReview
	submission.SubmittedAt = &now
	submission.UpdatedAt = now

	var current models.Submission
	lockQuery := `SELECT ` + submissionColumns + ` FROM submissions WHERE assignment_id = $1 AND student_id = $2 FOR UPDATE`
	err = tx.GetContext(ctx, &current, lockQuery, submission.AssignmentID, submission.StudentID)
	if err == sql.ErrNoRows {
		var inserted bool
		if inserted, err = insertSubmission(ctx, tx, submission, now); err != nil {
			return nil, err
		}
		if inserted {
			if err = tx.Commit(); err != nil {
				return nil, fmt.Errorf("commit submission: %w", err)
			}
			return nil, nil
		}
		// A concurrent submit created the row first. Its content is the one being replaced.
		err = tx.GetContext(ctx, &current, lockQuery, submission.AssignmentID, submission.StudentID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock submission: %w", err)
	}

	prevCopy := current
	prev = &prevCopy
	const updateQuery = `UPDATE submissions SET blocks = $1, file_url = NULL, status = $2, submitted_at = $3, updated_at = $3 WHERE id = $4`
	if _, err = tx.ExecContext(ctx, updateQuery, submission.Blocks, submission.Status, now, current.ID); err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}
	submission.ID = current.ID
	submission.CreatedAt = current.CreatedAt
	submission.FileURL = nil
	submission.Feedback = current.Feedback
	submission.ReviewedBy = current.ReviewedBy
	submission.ReviewedAt = current.ReviewedAt

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submission: %w", err)
	}
	return prev, nil
}

// insertSubmission reports false when another transaction already holds the row.
func insertSubmission(ctx context.Context, tx *sqlx.Tx, submission *models.Submission, now time.Time) (bool, error) {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	const insertQuery = `INSERT INTO submissions (id, assignment_id, student_id, blocks, file_url, status, submitted_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULL, $5, $6, $7, $7)
ON CONFLICT (assignment_id, student_id) DO NOTHING
RETURNING id, created_at`
	row := tx.QueryRowxContext(ctx, insertQuery, submission.ID, submission.AssignmentID, submission.StudentID, submission.Blocks, submission.Status, now, now)
	err := row.Scan(&submission.ID, &submission.CreatedAt)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("insert submission: %w", err)
	}
	submission.FileURL = nil
	return true, nil
}

// UpdateReview stores feedback and the derived status.
func (r *SubmissionRepository) UpdateReview(ctx context.Context, id string, feedback *string, status models.SubmissionStatus, reviewerID string, reviewedAt time.Time) error {
	const query = `UPDATE submissions SET feedback = $1, status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4 WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query, feedback, status, reviewerID, reviewedAt, id)
	if err != nil {
		return fmt.Errorf("update submission review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("submission review rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByIDs hard-deletes submissions. Ids already gone are ignored.
func (r *SubmissionRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete submissions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("submission rows affected: %w", err)
	}
	return affected, nil
}
