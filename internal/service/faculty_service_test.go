package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/sis-api/internal/models"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

type mockFacultyRepo struct {
	members map[string]*models.FacultyDetail
	nextID  int
}

func (m *mockFacultyRepo) List(ctx context.Context, filter models.FacultyFilter) ([]models.FacultyDetail, int, error) {
	return nil, 0, nil
}

func (m *mockFacultyRepo) FindByID(ctx context.Context, id string) (*models.FacultyDetail, error) {
	if member, ok := m.members[id]; ok {
		return member, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFacultyRepo) FindByUserID(ctx context.Context, userID string) (*models.FacultyDetail, error) {
	for _, member := range m.members {
		if member.UserID == userID {
			return member, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockFacultyRepo) Create(ctx context.Context, member *models.Faculty) error {
	if m.members == nil {
		m.members = make(map[string]*models.FacultyDetail)
	}
	m.nextID++
	member.ID = fmt.Sprintf("fac-%d", m.nextID)
	m.members[member.ID] = &models.FacultyDetail{Faculty: *member}
	return nil
}

func (m *mockFacultyRepo) Update(ctx context.Context, member *models.Faculty) error {
	existing, ok := m.members[member.ID]
	if !ok {
		return sql.ErrNoRows
	}
	existing.Faculty = *member
	return nil
}

func (m *mockFacultyRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.members[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.members, id)
	return nil
}

func TestFacultyServiceCreate(t *testing.T) {
	repo := &mockFacultyRepo{}
	users := &mockUserReader{users: map[string]*models.User{"user-1": {ID: "user-1"}}}
	svc := NewFacultyService(repo, users, nil, nil)

	member, err := svc.Create(context.Background(), FacultyRequest{
		UserID:     "user-1",
		Department: "Mathematics",
		Title:      "Professor",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", member.UserID)
	assert.Equal(t, "Professor", member.Title)
}

func TestFacultyServiceCreateUnknownUser(t *testing.T) {
	svc := NewFacultyService(&mockFacultyRepo{}, &mockUserReader{}, nil, nil)

	_, err := svc.Create(context.Background(), FacultyRequest{
		UserID:     "user-404",
		Department: "Mathematics",
		Title:      "Professor",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestFacultyServiceCreateDuplicateUser(t *testing.T) {
	repo := &mockFacultyRepo{members: map[string]*models.FacultyDetail{
		"fac-1": {Faculty: models.Faculty{ID: "fac-1", UserID: "user-1"}},
	}}
	users := &mockUserReader{users: map[string]*models.User{"user-1": {ID: "user-1"}}}
	svc := NewFacultyService(repo, users, nil, nil)

	_, err := svc.Create(context.Background(), FacultyRequest{
		UserID:     "user-1",
		Department: "Physics",
		Title:      "Lecturer",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestFacultyServiceUpdate(t *testing.T) {
	repo := &mockFacultyRepo{members: map[string]*models.FacultyDetail{
		"fac-1": {Faculty: models.Faculty{ID: "fac-1", UserID: "user-1", Department: "Mathematics", Title: "Lecturer"}},
	}}
	svc := NewFacultyService(repo, &mockUserReader{}, nil, nil)

	member, err := svc.Update(context.Background(), "fac-1", FacultyRequest{
		UserID:     "user-1",
		Department: "Mathematics",
		Title:      "Associate Professor",
	})
	require.NoError(t, err)
	assert.Equal(t, "Associate Professor", member.Title)
}

func TestFacultyServiceDeleteNotFound(t *testing.T) {
	svc := NewFacultyService(&mockFacultyRepo{}, &mockUserReader{}, nil, nil)

	err := svc.Delete(context.Background(), "fac-404")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
