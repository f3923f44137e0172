package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/sis-api/internal/models"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

type mockStudentRepo struct {
	students map[string]models.StudentDetail
	updated  *models.Student
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	for _, s := range m.students {
		if s.UserID == userID {
			student := s
			return &student, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "stu-new"
	}
	if m.students == nil {
		m.students = make(map[string]models.StudentDetail)
	}
	m.students[student.ID] = models.StudentDetail{Student: *student}
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.updated = student
	m.students[student.ID] = models.StudentDetail{Student: *student}
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, id)
	return nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func TestStudentServiceCreate(t *testing.T) {
	repo := &mockStudentRepo{}
	users := &mockUserReader{users: map[string]*models.User{"user-1": {ID: "user-1"}}}
	svc := NewStudentService(repo, users, nil, nil)

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		UserID:         "user-1",
		StudentNumber:  "S-1001",
		Major:          "Mathematics",
		EnrollmentYear: 2026,
	})
	require.NoError(t, err)
	assert.True(t, student.Active)
	assert.Zero(t, student.GPA)
}

func TestStudentServiceCreateUnknownUser(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, &mockUserReader{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		UserID:         "user-404",
		StudentNumber:  "S-1001",
		Major:          "Mathematics",
		EnrollmentYear: 2026,
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestStudentServiceCreateDuplicateUser(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", UserID: "user-1"}},
	}}
	users := &mockUserReader{users: map[string]*models.User{"user-1": {ID: "user-1"}}}
	svc := NewStudentService(repo, users, nil, nil)

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		UserID:         "user-1",
		StudentNumber:  "S-1002",
		Major:          "Physics",
		EnrollmentYear: 2026,
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestStudentServiceUpdateNeverTouchesGPA(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", UserID: "user-1", StudentNumber: "S-1001", Major: "Math", EnrollmentYear: 2025, GPA: 3.42, Active: true}},
	}}
	svc := NewStudentService(repo, &mockUserReader{}, nil, nil)

	student, err := svc.Update(context.Background(), "stu-1", UpdateStudentRequest{
		StudentNumber:  "S-1001",
		Major:          "Applied Mathematics",
		EnrollmentYear: 2025,
	})
	require.NoError(t, err)
	assert.Equal(t, "Applied Mathematics", student.Major)
	assert.Equal(t, 3.42, student.GPA)
}

func TestStudentServiceGetByUserID(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.StudentDetail{
		"stu-1": {Student: models.Student{ID: "stu-1", UserID: "user-1"}},
	}}
	svc := NewStudentService(repo, &mockUserReader{}, nil, nil)

	student, err := svc.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", student.ID)

	_, err = svc.GetByUserID(context.Background(), "user-2")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
