package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/sis-api/internal/models"
	"github.com/campuskit/sis-api/internal/repository"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments map[string]models.Enrollment
	capacity    int
	admitErr    error
	deleted     []string
	statusSet   map[string]models.EnrollmentStatus
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

// Admit mirrors the serialized capacity check of the real transaction: the
// mutex plays the section row lock, so two concurrent admissions against the
// last seat cannot both succeed.
func (m *mockEnrollmentRepo) Admit(ctx context.Context, params repository.AdmissionParams) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.admitErr != nil {
		return nil, m.admitErr
	}
	enrolled := 0
	for _, e := range m.enrollments {
		if e.SectionID == params.SectionID && e.Status == models.EnrollmentStatusEnrolled {
			enrolled++
		}
	}
	if enrolled >= m.capacity {
		return nil, appErrors.ErrSectionFull
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	enrollment := models.Enrollment{
		ID:             "enr-" + params.StudentID,
		StudentID:      params.StudentID,
		SectionID:      params.SectionID,
		Status:         params.Status,
		EnrollmentDate: params.Now,
	}
	m.enrollments[enrollment.ID] = enrollment
	return &enrollment, nil
}

// BulkCreate mirrors the import semantics: bad rows are skipped, placeable
// rows are inserted, and the touched sections are reported for cache
// invalidation.
func (m *mockEnrollmentRepo) BulkCreate(ctx context.Context, params repository.BulkAdmissionParams) (*repository.BulkAdmissionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	result := &repository.BulkAdmissionResult{}
	touched := make(map[string]struct{})
	for _, row := range params.Rows {
		if row.StudentID == "" || row.SectionID == "" {
			result.Skipped++
			continue
		}
		status, ok := models.NormalizeEnrollmentStatus(row.Status)
		if !ok {
			result.Skipped++
			continue
		}
		duplicate := false
		enrolled := 0
		for _, e := range m.enrollments {
			if e.StudentID == row.StudentID && e.SectionID == row.SectionID &&
				(e.Status == models.EnrollmentStatusEnrolled || e.Status == models.EnrollmentStatusCompleted) {
				duplicate = true
			}
			if e.SectionID == row.SectionID && e.Status == models.EnrollmentStatusEnrolled {
				enrolled++
			}
		}
		if duplicate || (status == models.EnrollmentStatusEnrolled && enrolled >= m.capacity) {
			result.Skipped++
			continue
		}
		enrollment := models.Enrollment{
			ID:             "enr-" + row.StudentID,
			StudentID:      row.StudentID,
			SectionID:      row.SectionID,
			Status:         status,
			EnrollmentDate: params.Now,
		}
		m.enrollments[enrollment.ID] = enrollment
		if _, seen := touched[row.SectionID]; !seen {
			touched[row.SectionID] = struct{}{}
			result.SectionIDs = append(result.SectionIDs, row.SectionID)
		}
		result.Processed++
	}
	return result, nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	if m.statusSet == nil {
		m.statusSet = make(map[string]models.EnrollmentStatus)
	}
	m.statusSet[id] = status
	e.Status = status
	m.enrollments[id] = e
	return nil
}

func (m *mockEnrollmentRepo) ExistsActive(ctx context.Context, studentID, sectionID, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.ID == excludeID {
			continue
		}
		if e.StudentID == studentID && e.SectionID == sectionID &&
			(e.Status == models.EnrollmentStatusEnrolled || e.Status == models.EnrollmentStatusCompleted) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEnrollmentRepo) Update(ctx context.Context, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.enrollments[enrollment.ID]; !ok {
		return sql.ErrNoRows
	}
	m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.enrollments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockCapacityInvalidator struct {
	mu       sync.Mutex
	patterns []string
	err      error
}

func (m *mockCapacityInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern)
	return m.err
}

func TestEnrollmentServiceCreate(t *testing.T) {
	repo := &mockEnrollmentRepo{capacity: 30}
	cache := &mockCapacityInvalidator{}
	svc := NewEnrollmentService(repo, cache, 18, nil, nil)

	detail, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, detail.Status)
	assert.Equal(t, []string{"capacity:section:sec-1"}, cache.patterns)
}

func TestEnrollmentServiceCreateMissingStudent(t *testing.T) {
	svc := NewEnrollmentService(&mockEnrollmentRepo{capacity: 1}, nil, 18, nil, nil)

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{SectionID: "sec-1"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestEnrollmentServiceCreateInvalidStatus(t *testing.T) {
	svc := NewEnrollmentService(&mockEnrollmentRepo{capacity: 1}, nil, 18, nil, nil)

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "stu-1", SectionID: "sec-1", Status: "expelled"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestEnrollmentServiceCreateRejectionPassesThrough(t *testing.T) {
	repo := &mockEnrollmentRepo{capacity: 30, admitErr: appErrors.ErrFinanceHold}
	cache := &mockCapacityInvalidator{}
	svc := NewEnrollmentService(repo, cache, 18, nil, nil)

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.ErrorIs(t, err, appErrors.ErrFinanceHold)
	assert.Empty(t, cache.patterns)
}

func TestEnrollmentServiceCreateLastSeatRace(t *testing.T) {
	repo := &mockEnrollmentRepo{capacity: 1}
	svc := NewEnrollmentService(repo, &mockCapacityInvalidator{}, 18, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, studentID := range []string{"stu-1", "stu-2"} {
		wg.Add(1)
		go func(i int, studentID string) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: studentID, SectionID: "sec-1"})
		}(i, studentID)
	}
	wg.Wait()

	var admitted, rejected int
	for _, err := range errs {
		if err == nil {
			admitted++
		} else if appErrors.FromError(err).Code == appErrors.ErrSectionFull.Code {
			rejected++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, rejected)
}

func TestEnrollmentServiceUpdateStatusInvalidatesCache(t *testing.T) {
	repo := &mockEnrollmentRepo{
		capacity: 30,
		enrollments: map[string]models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		},
	}
	cache := &mockCapacityInvalidator{}
	svc := NewEnrollmentService(repo, cache, 18, nil, nil)

	detail, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "dropped"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, detail.Status)
	assert.Equal(t, []string{"capacity:section:sec-1"}, cache.patterns)
}

func TestEnrollmentServiceUpdateStatusUnchangedSkipsInvalidation(t *testing.T) {
	repo := &mockEnrollmentRepo{
		capacity: 30,
		enrollments: map[string]models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		},
	}
	cache := &mockCapacityInvalidator{}
	svc := NewEnrollmentService(repo, cache, 18, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "enrolled"})
	require.NoError(t, err)
	assert.Empty(t, cache.patterns)
}

func TestEnrollmentServiceUpdateStatusNotFound(t *testing.T) {
	svc := NewEnrollmentService(&mockEnrollmentRepo{capacity: 1}, nil, 18, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "enr-404", UpdateEnrollmentStatusRequest{Status: "dropped"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestEnrollmentServiceBulkCreateSkipsBadRows(t *testing.T) {
	repo := &mockEnrollmentRepo{
		capacity: 30,
		enrollments: map[string]models.Enrollment{
			"enr-0": {ID: "enr-0", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		},
	}
	cache := &mockCapacityInvalidator{}
	svc := NewEnrollmentService(repo, cache, 18, nil, nil)

	summary, err := svc.BulkCreate(context.Background(), BulkCreateEnrollmentsRequest{
		SemesterID: "sem-1",
		Enrollments: []BulkEnrollmentRow{
			{StudentID: "stu-2", SectionID: "sec-1"},
			{StudentID: "stu-1", SectionID: "sec-1"},
			{StudentID: "stu-3", SectionID: "sec-1", Status: "expelled"},
			{SectionID: "sec-1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, []string{"capacity:section:sec-1"}, cache.patterns)
}

func TestEnrollmentServiceBulkCreateEmpty(t *testing.T) {
	svc := NewEnrollmentService(&mockEnrollmentRepo{capacity: 1}, nil, 18, nil, nil)

	_, err := svc.BulkCreate(context.Background(), BulkCreateEnrollmentsRequest{SemesterID: "sem-1"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestEnrollmentServiceUpdateMovesSection(t *testing.T) {
	repo := &mockEnrollmentRepo{
		capacity: 30,
		enrollments: map[string]models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		},
	}
	cache := &mockCapacityInvalidator{}
	svc := NewEnrollmentService(repo, cache, 18, nil, nil)

	detail, err := svc.Update(context.Background(), "enr-1", UpdateEnrollmentRequest{StudentID: "stu-1", SectionID: "sec-2"})
	require.NoError(t, err)
	assert.Equal(t, "sec-2", detail.SectionID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, detail.Status)
	assert.Equal(t, []string{"capacity:section:sec-1", "capacity:section:sec-2"}, cache.patterns)
}

func TestEnrollmentServiceUpdateDuplicateActive(t *testing.T) {
	repo := &mockEnrollmentRepo{
		capacity: 30,
		enrollments: map[string]models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
			"enr-2": {ID: "enr-2", StudentID: "stu-1", SectionID: "sec-2", Status: models.EnrollmentStatusEnrolled},
		},
	}
	svc := NewEnrollmentService(repo, &mockCapacityInvalidator{}, 18, nil, nil)

	_, err := svc.Update(context.Background(), "enr-1", UpdateEnrollmentRequest{StudentID: "stu-1", SectionID: "sec-2"})
	require.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)
}

func TestEnrollmentServiceUpdateNotFound(t *testing.T) {
	svc := NewEnrollmentService(&mockEnrollmentRepo{capacity: 1}, nil, 18, nil, nil)

	_, err := svc.Update(context.Background(), "enr-404", UpdateEnrollmentRequest{StudentID: "stu-1", SectionID: "sec-1"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestEnrollmentServiceDelete(t *testing.T) {
	repo := &mockEnrollmentRepo{
		capacity: 30,
		enrollments: map[string]models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled},
		},
	}
	cache := &mockCapacityInvalidator{}
	svc := NewEnrollmentService(repo, cache, 18, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "enr-1"))
	assert.Equal(t, []string{"enr-1"}, repo.deleted)
	assert.Equal(t, []string{"capacity:section:sec-1"}, cache.patterns)
}
