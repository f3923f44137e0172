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

type mockFinanceRepo struct {
	records map[string]models.FinanceRecord
}

func (m *mockFinanceRepo) List(ctx context.Context, filter models.FinanceFilter) ([]models.FinanceRecord, int, error) {
	return nil, 0, nil
}

func (m *mockFinanceRepo) FindByID(ctx context.Context, id string) (*models.FinanceRecord, error) {
	if r, ok := m.records[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFinanceRepo) ExistsPendingHold(ctx context.Context, studentID, semesterID string) (bool, error) {
	for _, r := range m.records {
		if r.StudentID == studentID && r.SemesterID == semesterID && r.Status == models.FinanceStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockFinanceRepo) Create(ctx context.Context, record *models.FinanceRecord) error {
	if record.ID == "" {
		record.ID = "fin-new"
	}
	if m.records == nil {
		m.records = make(map[string]models.FinanceRecord)
	}
	m.records[record.ID] = *record
	return nil
}

func (m *mockFinanceRepo) Update(ctx context.Context, record *models.FinanceRecord) error {
	m.records[record.ID] = *record
	return nil
}

func (m *mockFinanceRepo) UpdateStatus(ctx context.Context, id string, status models.FinanceStatus) error {
	r, ok := m.records[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = status
	m.records[id] = r
	return nil
}

func (m *mockFinanceRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.records[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.records, id)
	return nil
}

func TestFinanceServiceCreateDefaultsPending(t *testing.T) {
	repo := &mockFinanceRepo{}
	svc := NewFinanceService(repo, nil, nil)

	record, err := svc.Create(context.Background(), CreateFinanceRecordRequest{
		StudentID:       "stu-1",
		SemesterID:      "sem-1",
		Amount:          1250.00,
		TransactionType: "tuition",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FinanceStatusPending, record.Status)
}

func TestFinanceServiceCreateRejectsNonPositiveAmount(t *testing.T) {
	svc := NewFinanceService(&mockFinanceRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateFinanceRecordRequest{
		StudentID:       "stu-1",
		SemesterID:      "sem-1",
		Amount:          -50,
		TransactionType: "tuition",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestFinanceServiceHoldLiftsOnSettlement(t *testing.T) {
	repo := &mockFinanceRepo{}
	svc := NewFinanceService(repo, nil, nil)

	record, err := svc.Create(context.Background(), CreateFinanceRecordRequest{
		StudentID:       "stu-1",
		SemesterID:      "sem-1",
		Amount:          1250.00,
		TransactionType: "tuition",
	})
	require.NoError(t, err)

	hold, err := svc.HasPendingHold(context.Background(), "stu-1", "sem-1")
	require.NoError(t, err)
	assert.True(t, hold)

	// Settling the record lifts the hold with no extra bookkeeping.
	updated, err := svc.UpdateStatus(context.Background(), record.ID, UpdateFinanceStatusRequest{Status: "paid"})
	require.NoError(t, err)
	assert.Equal(t, models.FinanceStatusPaid, updated.Status)

	hold, err = svc.HasPendingHold(context.Background(), "stu-1", "sem-1")
	require.NoError(t, err)
	assert.False(t, hold)
}

func TestFinanceServiceUpdateStatusInvalid(t *testing.T) {
	svc := NewFinanceService(&mockFinanceRepo{}, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "fin-1", UpdateFinanceStatusRequest{Status: "forgiven"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestFinanceServiceUpdateStatusNotFound(t *testing.T) {
	svc := NewFinanceService(&mockFinanceRepo{}, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "fin-404", UpdateFinanceStatusRequest{Status: "paid"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
