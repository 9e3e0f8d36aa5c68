package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coursework-api/internal/models"
)

func newSubmissionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var submissionCols = []string{"id", "assignment_id", "student_id", "blocks", "file_url", "status", "submitted_at", "feedback", "reviewed_by", "reviewed_at", "created_at", "updated_at"}

func TestSubmissionRepositoryUpsertInserts(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM submissions WHERE assignment_id = $1 AND student_id = $2 FOR UPDATE")).
		WithArgs("a-1", "stu-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO submissions")).
		WithArgs(sqlmock.AnyArg(), "a-1", "stu-1", sqlmock.AnyArg(), models.SubmissionPendingReview, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow("sub-1", time.Now()))
	mock.ExpectCommit()

	submission := &models.Submission{AssignmentID: "a-1", StudentID: "stu-1", Blocks: models.BlockList{{Kind: models.BlockText, Body: "answer"}}}
	prev, err := repo.Upsert(context.Background(), submission)
	require.NoError(t, err)
	require.Nil(t, prev)
	require.Equal(t, "sub-1", submission.ID)
	require.Equal(t, models.SubmissionPendingReview, submission.Status)
	require.NotNil(t, submission.SubmittedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpsertUpdatesAndKeepsFeedback(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	feedback := "well done"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("a-1", "stu-1").
		WillReturnRows(sqlmock.NewRows(submissionCols).
			AddRow("sub-1", "a-1", "stu-1", []byte(`[{"kind":"TEXT","body":"v1"}]`), nil, models.SubmissionCompleted, time.Now(), feedback, "t-1", time.Now(), time.Now(), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET blocks = $1, file_url = NULL, status = $2, submitted_at = $3, updated_at = $3 WHERE id = $4")).
		WithArgs(sqlmock.AnyArg(), models.SubmissionPendingReview, sqlmock.AnyArg(), "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	submission := &models.Submission{AssignmentID: "a-1", StudentID: "stu-1", Blocks: models.BlockList{{Kind: models.BlockText, Body: "v2"}}}
	prev, err := repo.Upsert(context.Background(), submission)
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.Equal(t, models.SubmissionCompleted, prev.Status)
	require.Equal(t, "sub-1", submission.ID)
	require.Equal(t, models.SubmissionPendingReview, submission.Status)
	require.NotNil(t, submission.Feedback)
	require.Equal(t, feedback, *submission.Feedback)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpsertLosesInsertRace(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	lock := regexp.QuoteMeta("FROM submissions WHERE assignment_id = $1 AND student_id = $2 FOR UPDATE")
	mock.ExpectBegin()
	mock.ExpectQuery(lock).
		WithArgs("a-1", "stu-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (assignment_id, student_id) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "a-1", "stu-1", sqlmock.AnyArg(), models.SubmissionPendingReview, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))
	mock.ExpectQuery(lock).
		WithArgs("a-1", "stu-1").
		WillReturnRows(sqlmock.NewRows(submissionCols).
			AddRow("sub-9", "a-1", "stu-1", []byte(`[{"kind":"IMAGE","body":"https://cdn.test/coursework/media/stu-1/racer.png"}]`), nil, models.SubmissionPendingReview, time.Now(), nil, nil, nil, time.Now(), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET blocks = $1")).
		WithArgs(sqlmock.AnyArg(), models.SubmissionPendingReview, sqlmock.AnyArg(), "sub-9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	submission := &models.Submission{AssignmentID: "a-1", StudentID: "stu-1", Blocks: models.BlockList{{Kind: models.BlockText, Body: "second tab"}}}
	prev, err := repo.Upsert(context.Background(), submission)
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.Len(t, prev.Blocks, 1)
	require.Equal(t, "https://cdn.test/coursework/media/stu-1/racer.png", prev.Blocks[0].Body)
	require.Equal(t, "sub-9", submission.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpdateReviewMissing(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET feedback = $1, status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateReview(context.Background(), "missing", nil, models.SubmissionPendingReview, "t-1", time.Now())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryDeleteByIDs(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submissions WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submissions WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.DeleteByIDs(context.Background(), []string{"s-1", "s-2"})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = repo.DeleteByIDs(context.Background(), []string{"s-1", "s-2"})
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = repo.DeleteByIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListByStudentAndAssignments(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND assignment_id = ANY($2)")).
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(submissionCols).
			AddRow("sub-1", "a-1", "stu-1", []byte(`[]`), "https://x/coursework/legacy.pdf", models.SubmissionPendingReview, time.Now(), nil, nil, nil, time.Now(), time.Now()))

	subs, err := repo.ListByStudentAndAssignments(context.Background(), "stu-1", []string{"a-1"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].FileURL)

	subs, err = repo.ListByStudentAndAssignments(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	require.Empty(t, subs)
	require.NoError(t, mock.ExpectationsWereMet())
}
