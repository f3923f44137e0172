package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/sis-api/internal/models"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

type financeRepository interface {
	List(ctx context.Context, filter models.FinanceFilter) ([]models.FinanceRecord, int, error)
	FindByID(ctx context.Context, id string) (*models.FinanceRecord, error)
	ExistsPendingHold(ctx context.Context, studentID, semesterID string) (bool, error)
	Create(ctx context.Context, record *models.FinanceRecord) error
	Update(ctx context.Context, record *models.FinanceRecord) error
	UpdateStatus(ctx context.Context, id string, status models.FinanceStatus) error
	Delete(ctx context.Context, id string) error
}

// CreateFinanceRecordRequest represents the finance record creation payload.
type CreateFinanceRecordRequest struct {
	StudentID       string  `json:"student_id" validate:"required"`
	SemesterID      string  `json:"semester_id" validate:"required"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	TransactionType string  `json:"transaction_type" validate:"required"`
	Description     *string `json:"description"`
	Status          string  `json:"status" validate:"omitempty,oneof=pending paid waived refunded"`
}

// UpdateFinanceStatusRequest transitions a record's settlement status.
type UpdateFinanceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid waived refunded"`
}

// FinanceService manages finance records. A pending record is an enrollment
// hold for the student in that semester; settling it lifts the hold with no
// further bookkeeping.
type FinanceService struct {
	repo      financeRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFinanceService constructs FinanceService.
func NewFinanceService(repo financeRepository, validate *validator.Validate, logger *zap.Logger) *FinanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinanceService{repo: repo, validator: validate, logger: logger}
}

// List returns finance records with pagination metadata.
func (s *FinanceService) List(ctx context.Context, filter models.FinanceFilter) ([]models.FinanceRecord, *models.Pagination, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list finance records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a finance record by ID.
func (s *FinanceService) Get(ctx context.Context, id string) (*models.FinanceRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "finance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load finance record")
	}
	return record, nil
}

// HasPendingHold reports whether the student is blocked from enrolling in
// the semester by an unsettled record.
func (s *FinanceService) HasPendingHold(ctx context.Context, studentID, semesterID string) (bool, error) {
	hold, err := s.repo.ExistsPendingHold(ctx, studentID, semesterID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check finance hold")
	}
	return hold, nil
}

// Create records a new charge or payment.
func (s *FinanceService) Create(ctx context.Context, req CreateFinanceRecordRequest) (*models.FinanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid finance payload")
	}

	status := models.FinanceStatus(req.Status)
	if status == "" {
		status = models.FinanceStatusPending
	}
	record := &models.FinanceRecord{
		StudentID:       req.StudentID,
		SemesterID:      req.SemesterID,
		Amount:          req.Amount,
		TransactionType: req.TransactionType,
		Description:     req.Description,
		Status:          status,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create finance record")
	}
	return record, nil
}

// UpdateStatus transitions a record's settlement status.
func (s *FinanceService) UpdateStatus(ctx context.Context, id string, req UpdateFinanceStatusRequest) (*models.FinanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid finance status %q", req.Status))
	}
	if err := s.repo.UpdateStatus(ctx, id, models.FinanceStatus(req.Status)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "finance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update finance status")
	}
	return s.Get(ctx, id)
}

// Delete removes a finance record.
func (s *FinanceService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "finance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete finance record")
	}
	return nil
}
