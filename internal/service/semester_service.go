package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/sis-api/internal/models"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

type semesterRepository interface {
	List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error)
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	FindCurrent(ctx context.Context) (*models.Semester, error)
	Create(ctx context.Context, semester *models.Semester) error
	Update(ctx context.Context, semester *models.Semester) error
	SetCurrent(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	CountSections(ctx context.Context, id string) (int, error)
}

// SemesterRequest describes the create and update payload for semesters.
type SemesterRequest struct {
	Name              string     `json:"name" validate:"required"`
	Year              int        `json:"year" validate:"required,gte=2000"`
	StartDate         time.Time  `json:"start_date" validate:"required"`
	EndDate           time.Time  `json:"end_date" validate:"required"`
	RegistrationStart *time.Time `json:"registration_start"`
	RegistrationEnd   *time.Time `json:"registration_end"`
	IsCurrent         bool       `json:"is_current"`
}

// SemesterService manages academic terms and the current-semester flag.
type SemesterService struct {
	repo      semesterRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSemesterService constructs SemesterService.
func NewSemesterService(repo semesterRepository, validate *validator.Validate, logger *zap.Logger) *SemesterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterService{repo: repo, validator: validate, logger: logger}
}

// List returns semesters with pagination metadata.
func (s *SemesterService) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, *models.Pagination, error) {
	semesters, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return semesters, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a semester by ID.
func (s *SemesterService) Get(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return semester, nil
}

// Current returns the single semester holding the is_current flag.
func (s *SemesterService) Current(ctx context.Context) (*models.Semester, error) {
	semester, err := s.repo.FindCurrent(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no current semester configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current semester")
	}
	return semester, nil
}

// Create registers a new semester after validating its date windows.
func (s *SemesterService) Create(ctx context.Context, req SemesterRequest) (*models.Semester, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	semester := &models.Semester{
		Name:              req.Name,
		Year:              req.Year,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		RegistrationStart: req.RegistrationStart,
		RegistrationEnd:   req.RegistrationEnd,
		IsCurrent:         req.IsCurrent,
	}
	if err := s.repo.Create(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester")
	}
	return semester, nil
}

// Update modifies a semester after validating its date windows.
func (s *SemesterService) Update(ctx context.Context, id string, req SemesterRequest) (*models.Semester, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}

	semester.Name = req.Name
	semester.Year = req.Year
	semester.StartDate = req.StartDate
	semester.EndDate = req.EndDate
	semester.RegistrationStart = req.RegistrationStart
	semester.RegistrationEnd = req.RegistrationEnd
	semester.IsCurrent = req.IsCurrent
	if err := s.repo.Update(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update semester")
	}
	return semester, nil
}

// SetCurrent moves the is_current flag to the given semester. The clear and
// set happen in one transaction so the flag is never held by two rows.
func (s *SemesterService) SetCurrent(ctx context.Context, id string) (*models.Semester, error) {
	if err := s.repo.SetCurrent(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set current semester")
	}
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return semester, nil
}

// Delete removes a semester. Semesters with sections are protected.
func (s *SemesterService) Delete(ctx context.Context, id string) error {
	count, err := s.repo.CountSections(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check semester usage")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "semester has sections and cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete semester")
	}
	return nil
}

func (s *SemesterService) validateRequest(req SemesterRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must not precede start_date")
	}
	if req.RegistrationStart != nil && req.RegistrationEnd != nil {
		if req.RegistrationEnd.Before(*req.RegistrationStart) {
			return appErrors.Clone(appErrors.ErrValidation, "registration_end must not precede registration_start")
		}
		if req.RegistrationEnd.After(req.EndDate) {
			return appErrors.Clone(appErrors.ErrValidation, "registration_end must not exceed end_date")
		}
	}
	if (req.RegistrationStart == nil) != (req.RegistrationEnd == nil) {
		return appErrors.Clone(appErrors.ErrValidation, "registration window requires both bounds")
	}
	return nil
}
