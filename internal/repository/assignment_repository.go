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

const assignmentColumns = `id, lesson_id, instructor_id, blocks, file_url, created_at, updated_at`

// AssignmentRepository persists assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = assignment.CreatedAt
	const query = `INSERT INTO assignments (id, lesson_id, instructor_id, blocks, file_url, created_at, updated_at)
VALUES (:id, :lesson_id, :instructor_id, :blocks, :file_url, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// FindByID returns an assignment by id.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListByLesson returns a lesson's assignments in creation order.
func (r *AssignmentRepository) ListByLesson(ctx context.Context, lessonID string) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE lesson_id = $1 ORDER BY created_at ASC`
	assignments := make([]models.Assignment, 0)
	if err := r.db.SelectContext(ctx, &assignments, query, lessonID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// ListIDsByLessons returns assignment ids for any of the lessons.
func (r *AssignmentRepository) ListIDsByLessons(ctx context.Context, lessonIDs []string) ([]string, error) {
	ids := make([]string, 0)
	if len(lessonIDs) == 0 {
		return ids, nil
	}
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM assignments WHERE lesson_id = ANY($1)`, pq.Array(lessonIDs)); err != nil {
		return nil, fmt.Errorf("list assignment ids: %w", err)
	}
	return ids, nil
}

// CountByLessons counts assignments across the lessons.
func (r *AssignmentRepository) CountByLessons(ctx context.Context, lessonIDs []string) (int, error) {
	if len(lessonIDs) == 0 {
		return 0, nil
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM assignments WHERE lesson_id = ANY($1)`, pq.Array(lessonIDs)); err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return total, nil
}

// ReplaceBlocks swaps the block list under a row lock and returns the previous row.
func (r *AssignmentRepository) ReplaceBlocks(ctx context.Context, id string, blocks models.BlockList) (prev *models.Assignment, updated *models.Assignment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin assignment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Assignment
	if err = tx.GetContext(ctx, &current, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("lock assignment: %w", err)
	}

	next := current
	next.Blocks = blocks
	next.FileURL = nil
	next.UpdatedAt = time.Now().UTC()
	const updateQuery = `UPDATE assignments SET blocks = $1, file_url = NULL, updated_at = $2 WHERE id = $3`
	if _, err = tx.ExecContext(ctx, updateQuery, next.Blocks, next.UpdatedAt, id); err != nil {
		return nil, nil, fmt.Errorf("update assignment blocks: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit assignment update: %w", err)
	}
	return &current, &next, nil
}

// Delete removes the assignment row together with any submission rows created after
// the caller collected them. It reports whether the assignment existed.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) (deleted bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin assignment delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM submissions WHERE assignment_id = $1`, id); err != nil {
		return false, fmt.Errorf("delete late submissions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assignment rows affected: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit assignment delete: %w", err)
	}
	return affected > 0, nil
}
