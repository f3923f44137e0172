package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/sis-api/internal/models"
)

func newSemesterRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func TestSemesterRepositorySetCurrent(t *testing.T) {
	db, mock, cleanup := newSemesterRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE semesters SET is_current = FALSE").
		WithArgs(sqlmock.AnyArg(), "sem-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE semesters SET is_current = TRUE").
		WithArgs("sem-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SetCurrent(context.Background(), "sem-2")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositorySetCurrentMissing(t *testing.T) {
	db, mock, cleanup := newSemesterRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE semesters SET is_current = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE semesters SET is_current = TRUE").
		WithArgs("sem-404", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.SetCurrent(context.Background(), "sem-404")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositoryCreateClearsCurrentFlag(t *testing.T) {
	db, mock, cleanup := newSemesterRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE semesters SET is_current = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO semesters").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	semester := &models.Semester{
		Name:      "Fall 2026",
		Year:      2026,
		StartDate: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC),
		IsCurrent: true,
	}
	err := repo.Create(context.Background(), semester)
	require.NoError(t, err)
	require.NotEmpty(t, semester.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositoryCreateNotCurrentSkipsClear(t *testing.T) {
	db, mock, cleanup := newSemesterRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO semesters").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	semester := &models.Semester{
		Name:      "Spring 2027",
		Year:      2027,
		StartDate: time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2027, 5, 20, 0, 0, 0, 0, time.UTC),
	}
	err := repo.Create(context.Background(), semester)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositoryCountSections(t *testing.T) {
	db, mock, cleanup := newSemesterRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM sections WHERE semester_id").
		WithArgs("sem-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountSections(context.Background(), "sem-1")
	require.NoError(t, err)
	require.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
