package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newGarbageRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStorageGarbageRepositoryRecord(t *testing.T) {
	db, mock, cleanup := newGarbageRepoMock(t)
	defer cleanup()
	repo := NewStorageGarbageRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO storage_garbage")).
		WithArgs(sqlmock.AnyArg(), "a.png", "assignment_delete", "timeout", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (path) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "b.png", "assignment_delete", "timeout", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Record(context.Background(), []string{"a.png", "b.png"}, "assignment_delete", "timeout"))
	require.NoError(t, repo.Record(context.Background(), nil, "assignment_delete", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageGarbageRepositoryClaimLeasesRows(t *testing.T) {
	db, mock, cleanup := newGarbageRepoMock(t)
	defer cleanup()
	repo := NewStorageGarbageRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "path", "source", "attempts", "last_error", "next_attempt_at", "created_at"}).
			AddRow("g-1", "a.png", "assignment_delete", 0, nil, time.Now(), time.Now()).
			AddRow("g-2", "b.png", "enrollment_remove", 2, "timeout", time.Now(), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE storage_garbage SET attempts = attempts + 1, next_attempt_at = $1 WHERE id = ANY($2)")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	items, err := repo.Claim(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 1, items[0].Attempts)
	require.Equal(t, 3, items[1].Attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageGarbageRepositoryClaimEmpty(t *testing.T) {
	db, mock, cleanup := newGarbageRepoMock(t)
	defer cleanup()
	repo := NewStorageGarbageRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "path", "source", "attempts", "last_error", "next_attempt_at", "created_at"}))
	mock.ExpectCommit()

	items, err := repo.Claim(context.Background(), 5, time.Minute)
	require.NoError(t, err)
	require.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageGarbageRepositoryResolveAndReschedule(t *testing.T) {
	db, mock, cleanup := newGarbageRepoMock(t)
	defer cleanup()
	repo := NewStorageGarbageRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM storage_garbage WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE storage_garbage SET last_error = $1, next_attempt_at = $2 WHERE id = $3")).
		WithArgs("denied", sqlmock.AnyArg(), "g-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Resolve(context.Background(), []string{"g-1"}))
	require.NoError(t, repo.Reschedule(context.Background(), "g-2", "denied", time.Now().Add(time.Minute)))
	require.NoError(t, mock.ExpectationsWereMet())
}
