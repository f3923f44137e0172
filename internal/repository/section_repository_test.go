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

	"github.com/campuskit/sis-api/internal/models"
)

func newSectionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func TestSectionRepositoryCapacity(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, max_capacity FROM sections WHERE id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "max_capacity"}).AddRow("sec-1", 30))
	mock.ExpectQuery(regexp.QuoteMeta(sectionEnrolledCountSQL)).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(29))

	capacity, err := repo.Capacity(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Equal(t, 30, capacity.MaxCapacity)
	require.Equal(t, 29, capacity.EnrolledCount)
	require.True(t, capacity.HasCapacity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryCapacityFull(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, max_capacity FROM sections WHERE id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "max_capacity"}).AddRow("sec-1", 30))
	mock.ExpectQuery(regexp.QuoteMeta(sectionEnrolledCountSQL)).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))

	capacity, err := repo.Capacity(context.Background(), "sec-1")
	require.NoError(t, err)
	require.False(t, capacity.HasCapacity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryCapacityNotFound(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, max_capacity FROM sections WHERE id = $1")).
		WithArgs("sec-404").
		WillReturnRows(sqlmock.NewRows([]string{"id", "max_capacity"}))

	_, err := repo.Capacity(context.Background(), "sec-404")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectExec("UPDATE sections SET status").
		WithArgs("sec-404", models.SectionStatusClosed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "sec-404", models.SectionStatusClosed)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryCreateDefaultsStatus(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectExec("INSERT INTO sections").
		WillReturnResult(sqlmock.NewResult(0, 1))

	section := &models.Section{
		CourseID:      "course-1",
		SemesterID:    "sem-1",
		SectionNumber: "001",
		MaxCapacity:   30,
	}
	err := repo.Create(context.Background(), section)
	require.NoError(t, err)
	require.NotEmpty(t, section.ID)
	require.Equal(t, models.SectionStatusOpen, section.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryListAvailable(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "course_id", "semester_id", "faculty_id", "section_number", "schedule", "max_capacity", "status", "created_at", "updated_at",
		"course_code", "course_name", "course_credits", "semester_name", "semester_year", "faculty_name", "enrolled_count",
	}).AddRow("sec-1", "course-1", "sem-1", nil, "001", "MWF 09:00-10:00", 30, models.SectionStatusOpen, time.Now(), time.Now(),
		"CS101", "Intro to Computing", 3, "Spring 2026", 2026, nil, 12)
	mock.ExpectQuery(`WHERE s\.status = 'open' AND s\.semester_id = \$1`).
		WithArgs("sem-1").
		WillReturnRows(rows)

	sections, err := repo.ListAvailable(context.Background(), "sem-1")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Equal(t, "CS101", sections[0].CourseCode)
	require.Equal(t, 12, sections[0].EnrolledCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryListAvailableDefaultsToCurrentSemester(t *testing.T) {
	db, mock, cleanup := newSectionRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery(`WHERE s\.status = 'open' AND sem\.is_current = TRUE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	sections, err := repo.ListAvailable(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, sections)
	require.NoError(t, mock.ExpectationsWereMet())
}
