package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/sis-api/internal/models"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

type mockSemesterRepo struct {
	semesters    map[string]models.Semester
	sectionCount map[string]int
	currentSet   []string
	deleted      []string
}

func (m *mockSemesterRepo) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error) {
	return nil, 0, nil
}

func (m *mockSemesterRepo) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	if s, ok := m.semesters[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSemesterRepo) FindCurrent(ctx context.Context) (*models.Semester, error) {
	for _, s := range m.semesters {
		if s.IsCurrent {
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSemesterRepo) Create(ctx context.Context, semester *models.Semester) error {
	if semester.ID == "" {
		semester.ID = "sem-new"
	}
	if m.semesters == nil {
		m.semesters = make(map[string]models.Semester)
	}
	if semester.IsCurrent {
		m.clearCurrent("")
	}
	m.semesters[semester.ID] = *semester
	return nil
}

func (m *mockSemesterRepo) Update(ctx context.Context, semester *models.Semester) error {
	if semester.IsCurrent {
		m.clearCurrent(semester.ID)
	}
	m.semesters[semester.ID] = *semester
	return nil
}

func (m *mockSemesterRepo) SetCurrent(ctx context.Context, id string) error {
	s, ok := m.semesters[id]
	if !ok {
		return sql.ErrNoRows
	}
	m.clearCurrent(id)
	s.IsCurrent = true
	m.semesters[id] = s
	m.currentSet = append(m.currentSet, id)
	return nil
}

func (m *mockSemesterRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.semesters[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.semesters, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockSemesterRepo) CountSections(ctx context.Context, id string) (int, error) {
	return m.sectionCount[id], nil
}

func (m *mockSemesterRepo) clearCurrent(exceptID string) {
	for id, s := range m.semesters {
		if id != exceptID && s.IsCurrent {
			s.IsCurrent = false
			m.semesters[id] = s
		}
	}
}

func semesterRequest() SemesterRequest {
	return SemesterRequest{
		Name:      "Spring 2026",
		Year:      2026,
		StartDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestSemesterServiceCreate(t *testing.T) {
	repo := &mockSemesterRepo{}
	svc := NewSemesterService(repo, nil, nil)

	semester, err := svc.Create(context.Background(), semesterRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, semester.ID)
}

func TestSemesterServiceCreateEndBeforeStart(t *testing.T) {
	svc := NewSemesterService(&mockSemesterRepo{}, nil, nil)

	req := semesterRequest()
	req.EndDate = req.StartDate.AddDate(0, -1, 0)
	_, err := svc.Create(context.Background(), req)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestSemesterServiceCreateLoneRegistrationBound(t *testing.T) {
	svc := NewSemesterService(&mockSemesterRepo{}, nil, nil)

	req := semesterRequest()
	start := req.StartDate.AddDate(0, 0, -14)
	req.RegistrationStart = &start
	_, err := svc.Create(context.Background(), req)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestSemesterServiceCreateRegistrationPastEnd(t *testing.T) {
	svc := NewSemesterService(&mockSemesterRepo{}, nil, nil)

	req := semesterRequest()
	start := req.StartDate
	end := req.EndDate.AddDate(0, 1, 0)
	req.RegistrationStart = &start
	req.RegistrationEnd = &end
	_, err := svc.Create(context.Background(), req)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestSemesterServiceSetCurrentMovesFlag(t *testing.T) {
	repo := &mockSemesterRepo{semesters: map[string]models.Semester{
		"sem-1": {ID: "sem-1", Name: "Fall 2025", IsCurrent: true},
		"sem-2": {ID: "sem-2", Name: "Spring 2026"},
	}}
	svc := NewSemesterService(repo, nil, nil)

	semester, err := svc.SetCurrent(context.Background(), "sem-2")
	require.NoError(t, err)
	assert.True(t, semester.IsCurrent)
	assert.False(t, repo.semesters["sem-1"].IsCurrent)
}

func TestSemesterServiceSetCurrentNotFound(t *testing.T) {
	svc := NewSemesterService(&mockSemesterRepo{}, nil, nil)

	_, err := svc.SetCurrent(context.Background(), "sem-404")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSemesterServiceDeleteBlockedBySections(t *testing.T) {
	repo := &mockSemesterRepo{
		semesters:    map[string]models.Semester{"sem-1": {ID: "sem-1"}},
		sectionCount: map[string]int{"sem-1": 3},
	}
	svc := NewSemesterService(repo, nil, nil)

	err := svc.Delete(context.Background(), "sem-1")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, repo.deleted)
}

func TestSemesterServiceDelete(t *testing.T) {
	repo := &mockSemesterRepo{semesters: map[string]models.Semester{"sem-1": {ID: "sem-1"}}}
	svc := NewSemesterService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "sem-1"))
	assert.Equal(t, []string{"sem-1"}, repo.deleted)
}

func TestSemesterServiceCurrentMissing(t *testing.T) {
	svc := NewSemesterService(&mockSemesterRepo{}, nil, nil)

	_, err := svc.Current(context.Background())
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
