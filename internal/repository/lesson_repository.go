package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/coursework-api/internal/models"
)

// LessonRepository persists lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// Create appends a lesson at the end of its class.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lessons (id, class_id, title, position, created_at)
SELECT $1, $2, $3, COALESCE(MAX(position), 0) + 1, $4 FROM lessons WHERE class_id = $2
RETURNING position`
	if err := r.db.GetContext(ctx, &lesson.Position, query, lesson.ID, lesson.ClassID, lesson.Title, lesson.CreatedAt); err != nil {
		return fmt.Errorf("insert lesson: %w", err)
	}
	return nil
}

// FindByID returns a lesson by id.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	const query = `SELECT id, class_id, title, position, created_at FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListByClass returns the lessons of a class in position order.
func (r *LessonRepository) ListByClass(ctx context.Context, classID string) ([]models.Lesson, error) {
	const query = `SELECT id, class_id, title, position, created_at FROM lessons WHERE class_id = $1 ORDER BY position ASC, created_at ASC`
	lessons := make([]models.Lesson, 0)
	if err := r.db.SelectContext(ctx, &lessons, query, classID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// ListIDsByClass returns only the lesson ids of a class.
func (r *LessonRepository) ListIDsByClass(ctx context.Context, classID string) ([]string, error) {
	ids := make([]string, 0)
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM lessons WHERE class_id = $1`, classID); err != nil {
		return nil, fmt.Errorf("list lesson ids: %w", err)
	}
	return ids, nil
}

// Delete removes the lesson row. Deleting a missing lesson is not an error.
func (r *LessonRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return nil
}
