package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/sis-api/internal/models"
	"github.com/campuskit/sis-api/internal/repository"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Admit(ctx context.Context, params repository.AdmissionParams) (*models.Enrollment, error)
	BulkCreate(ctx context.Context, params repository.BulkAdmissionParams) (*repository.BulkAdmissionResult, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	ExistsActive(ctx context.Context, studentID, sectionID, excludeID string) (bool, error)
	Update(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
}

type capacityInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateEnrollmentRequest describes the enrollment creation payload.
type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	Status    string `json:"status"`
}

// UpdateEnrollmentStatusRequest describes a status transition payload.
type UpdateEnrollmentStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// BulkEnrollmentRow is one row of a bulk import payload. Either section_id
// or section_number identifies the target section.
type BulkEnrollmentRow struct {
	StudentID     string `json:"student_id"`
	SectionID     string `json:"section_id"`
	SectionNumber string `json:"section_number"`
	Status        string `json:"status"`
}

// BulkCreateEnrollmentsRequest describes a bulk enrollment import.
type BulkCreateEnrollmentsRequest struct {
	SemesterID  string              `json:"semester_id"`
	Enrollments []BulkEnrollmentRow `json:"enrollments" validate:"required,min=1"`
}

// BulkEnrollmentSummary reports the outcome of a bulk import.
type BulkEnrollmentSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// UpdateEnrollmentRequest describes a full enrollment rewrite, used by
// registrars to move a student between sections.
type UpdateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	Status    string `json:"status"`
}

// EnrollmentService orchestrates enrollment admission and lifecycle.
type EnrollmentService struct {
	repo       enrollmentRepository
	cache      capacityInvalidator
	maxCredits int
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewEnrollmentService constructs EnrollmentService. maxCredits bounds the
// total enrolled credits a student may hold within one semester.
func NewEnrollmentService(repo enrollmentRepository, cache capacityInvalidator, maxCredits int, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, cache: cache, maxCredits: maxCredits, validator: validate, logger: logger, now: time.Now}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Get returns a single enrollment with joined context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Create runs the full admission pipeline for a new enrollment. All checks
// and the insert happen in one transaction so concurrent requests against
// the same section serialize on the section row.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	status, ok := models.NormalizeEnrollmentStatus(req.Status)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid enrollment status %q", req.Status))
	}

	enrollment, err := s.repo.Admit(ctx, repository.AdmissionParams{
		StudentID:  req.StudentID,
		SectionID:  req.SectionID,
		Status:     status,
		Now:        s.now().UTC(),
		MaxCredits: s.maxCredits,
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.invalidateCapacity(ctx, enrollment.SectionID)

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// BulkCreate imports a batch of enrollments, typically a registrar loading a
// roster. Rows that cannot be placed are skipped rather than failing the
// batch; the full admission pipeline is not rerun per row, only the
// duplicate and capacity checks are applied inside the import transaction.
func (s *EnrollmentService) BulkCreate(ctx context.Context, req BulkCreateEnrollmentsRequest) (*BulkEnrollmentSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk enrollment payload")
	}

	rows := make([]repository.BulkAdmissionRow, 0, len(req.Enrollments))
	for _, row := range req.Enrollments {
		rows = append(rows, repository.BulkAdmissionRow{
			StudentID:     row.StudentID,
			SectionID:     row.SectionID,
			SectionNumber: row.SectionNumber,
			Status:        row.Status,
		})
	}

	result, err := s.repo.BulkCreate(ctx, repository.BulkAdmissionParams{
		SemesterID: req.SemesterID,
		Rows:       rows,
		Now:        s.now().UTC(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import enrollments")
	}

	for _, sectionID := range result.SectionIDs {
		s.invalidateCapacity(ctx, sectionID)
	}
	return &BulkEnrollmentSummary{Processed: result.Processed, Skipped: result.Skipped}, nil
}

// UpdateStatus transitions an enrollment to a new lifecycle status.
// Moving out of "enrolled" frees the seat; the freed capacity is visible
// immediately because occupancy is derived, never stored.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req UpdateEnrollmentStatusRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	status, ok := models.NormalizeEnrollmentStatus(req.Status)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid enrollment status %q", req.Status))
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}

	if status != enrollment.Status {
		s.invalidateCapacity(ctx, enrollment.SectionID)
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Update rewrites the student and section references of an enrollment.
// Unlike Create it does not rerun the admission pipeline; it is an
// administrative correction, guarded only against producing a second
// occupying row for the same (student, section) pair.
func (s *EnrollmentService) Update(ctx context.Context, id string, req UpdateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	status := existing.Status
	if req.Status != "" {
		normalized, ok := models.NormalizeEnrollmentStatus(req.Status)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid enrollment status %q", req.Status))
		}
		status = normalized
	}

	if status == models.EnrollmentStatusEnrolled || status == models.EnrollmentStatusCompleted {
		taken, err := s.repo.ExistsActive(ctx, req.StudentID, req.SectionID, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active enrollment")
		}
		if taken {
			return nil, appErrors.ErrDuplicateEnrollment
		}
	}

	updated := *existing
	updated.StudentID = req.StudentID
	updated.SectionID = req.SectionID
	updated.Status = status
	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}

	s.invalidateCapacity(ctx, existing.SectionID)
	if updated.SectionID != existing.SectionID {
		s.invalidateCapacity(ctx, updated.SectionID)
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Delete removes an enrollment record. Any seat it occupied is released.
// Grades referencing the enrollment stay untouched, so the student GPA is
// not recalculated here.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	s.invalidateCapacity(ctx, enrollment.SectionID)
	return nil
}

func (s *EnrollmentService) invalidateCapacity(ctx context.Context, sectionID string) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("capacity:section:%s", sectionID)
	if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("capacity cache invalidation failed", zap.String("section_id", sectionID), zap.Error(err))
	}
}
