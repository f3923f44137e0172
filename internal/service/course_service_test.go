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

type mockCourseRepo struct {
	courses      map[string]models.Course
	sectionCount map[string]int
	deleted      []string
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	return nil, 0, nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	for _, c := range m.courses {
		if c.Code == code {
			course := c
			return &course, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-new"
	}
	if m.courses == nil {
		m.courses = make(map[string]models.Course)
	}
	m.courses[course.ID] = *course
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = *course
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.courses, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockCourseRepo) CountSections(ctx context.Context, courseID string) (int, error) {
	return m.sectionCount[courseID], nil
}

func TestCourseServiceCreateNormalizesCode(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), CourseRequest{
		Code:       " cs101 ",
		Name:       "Intro to Computing",
		Credits:    3,
		Department: "Computer Science",
	})
	require.NoError(t, err)
	assert.Equal(t, "CS101", course.Code)
}

func TestCourseServiceCreateDuplicateCode(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{
		"course-1": {ID: "course-1", Code: "CS101"},
	}}
	svc := NewCourseService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CourseRequest{
		Code:       "cs101",
		Name:       "Intro to Computing",
		Credits:    3,
		Department: "Computer Science",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCourseServiceUpdateKeepingCode(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{
		"course-1": {ID: "course-1", Code: "CS101", Name: "Intro", Credits: 3, Department: "CS"},
	}}
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Update(context.Background(), "course-1", CourseRequest{
		Code:       "CS101",
		Name:       "Intro to Computing",
		Credits:    4,
		Department: "CS",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, course.Credits)
}

func TestCourseServiceDeleteBlockedBySections(t *testing.T) {
	repo := &mockCourseRepo{
		courses:      map[string]models.Course{"course-1": {ID: "course-1", Code: "CS101"}},
		sectionCount: map[string]int{"course-1": 2},
	}
	svc := NewCourseService(repo, nil, nil)

	err := svc.Delete(context.Background(), "course-1")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, repo.deleted)
}

func TestCourseServiceCreateRequiresPositiveCredits(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), CourseRequest{
		Code:       "CS101",
		Name:       "Intro",
		Department: "CS",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
