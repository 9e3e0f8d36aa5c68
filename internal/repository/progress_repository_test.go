package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coursework-api/internal/models"
)

func newProgressRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestProgressRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM submissions WHERE assignment_id = $1 GROUP BY status")).
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow(models.SubmissionPendingReview, 1).
			AddRow(models.SubmissionCompleted, 1))

	counts, err := repo.CountByStatus(context.Background(), "a-1")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressRepositoryCountStudentByStatus(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.student_id = $1 AND a.lesson_id = ANY($2)")).
		WithArgs("stu-a", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow(models.SubmissionCompleted, 1))

	counts, err := repo.CountStudentByStatus(context.Background(), "stu-a", []string{"l-1"})
	require.NoError(t, err)
	require.Equal(t, []models.StatusCount{{Status: models.SubmissionCompleted, Count: 1}}, counts)

	counts, err = repo.CountStudentByStatus(context.Background(), "stu-a", nil)
	require.NoError(t, err)
	require.Empty(t, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressRepositoryCountRosterByStatus(t *testing.T) {
	db, mock, cleanup := newProgressRepoMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY s.student_id, s.status")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "status", "count"}).
			AddRow("stu-a", models.SubmissionCompleted, 1).
			AddRow("stu-b", models.SubmissionPendingReview, 1))

	counts, err := repo.CountRosterByStatus(context.Background(), []string{"l-1"})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}
