package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/coursework-api/internal/models"
)

// StorageGarbageRepository is a relational queue of storage paths awaiting deletion.
type StorageGarbageRepository struct {
	db *sqlx.DB
}

// NewStorageGarbageRepository constructs the repository.
func NewStorageGarbageRepository(db *sqlx.DB) *StorageGarbageRepository {
	return &StorageGarbageRepository{db: db}
}

// Record enqueues paths for a later sweep. Re-recording a path refreshes its error and schedule.
func (r *StorageGarbageRepository) Record(ctx context.Context, paths []string, source, lastError string) error {
	if len(paths) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin garbage transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `INSERT INTO storage_garbage (id, path, source, attempts, last_error, next_attempt_at, created_at)
VALUES ($1, $2, $3, 0, NULLIF($4, ''), $5, $5)
ON CONFLICT (path) DO UPDATE SET last_error = EXCLUDED.last_error, next_attempt_at = EXCLUDED.next_attempt_at`
	for _, p := range paths {
		if _, err = tx.ExecContext(ctx, query, uuid.NewString(), p, source, lastError, now); err != nil {
			return fmt.Errorf("record garbage %s: %w", p, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit garbage: %w", err)
	}
	return nil
}

// Claim leases up to limit due rows. Rows locked by a concurrent sweeper are skipped, and
// claimed rows are pushed out by lease so a crashed sweeper releases them eventually.
func (r *StorageGarbageRepository) Claim(ctx context.Context, limit int, lease time.Duration) (items []models.StorageGarbage, err error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin garbage claim: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const selectQuery = `SELECT id, path, source, attempts, last_error, next_attempt_at, created_at
FROM storage_garbage WHERE next_attempt_at <= $1
ORDER BY next_attempt_at ASC LIMIT $2 FOR UPDATE SKIP LOCKED`
	items = make([]models.StorageGarbage, 0)
	if err = tx.SelectContext(ctx, &items, selectQuery, now, limit); err != nil {
		return nil, fmt.Errorf("select due garbage: %w", err)
	}
	if len(items) == 0 {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit garbage claim: %w", err)
		}
		return items, nil
	}

	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
		items[i].Attempts++
	}
	const leaseQuery = `UPDATE storage_garbage SET attempts = attempts + 1, next_attempt_at = $1 WHERE id = ANY($2)`
	if _, err = tx.ExecContext(ctx, leaseQuery, now.Add(lease), pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lease garbage: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit garbage claim: %w", err)
	}
	return items, nil
}

// Resolve removes rows whose objects are gone.
func (r *StorageGarbageRepository) Resolve(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM storage_garbage WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("resolve garbage: %w", err)
	}
	return nil
}

// Reschedule records a failed retry and the next attempt time.
func (r *StorageGarbageRepository) Reschedule(ctx context.Context, id, lastError string, next time.Time) error {
	const query = `UPDATE storage_garbage SET last_error = $1, next_attempt_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, lastError, next, id); err != nil {
		return fmt.Errorf("reschedule garbage: %w", err)
	}
	return nil
}

// Count returns the number of outstanding rows.
func (r *StorageGarbageRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM storage_garbage`); err != nil {
		return 0, fmt.Errorf("count garbage: %w", err)
	}
	return total, nil
}
