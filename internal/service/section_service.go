package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/sis-api/internal/models"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	ListAvailable(ctx context.Context, semesterID string) ([]models.SectionDetail, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	Capacity(ctx context.Context, id string) (*models.SectionCapacity, error)
	Create(ctx context.Context, section *models.Section) error
	Update(ctx context.Context, section *models.Section) error
	UpdateStatus(ctx context.Context, id string, status models.SectionStatus) error
	Delete(ctx context.Context, id string) error
}

type capacityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateSectionRequest describes the section creation payload.
type CreateSectionRequest struct {
	CourseID      string  `json:"course_id" validate:"required"`
	SemesterID    string  `json:"semester_id" validate:"required"`
	FacultyID     *string `json:"faculty_id"`
	SectionNumber string  `json:"section_number" validate:"required"`
	Schedule      string  `json:"schedule" validate:"required"`
	MaxCapacity   int     `json:"max_capacity" validate:"required,gt=0"`
}

// UpdateSectionRequest describes the section update payload.
type UpdateSectionRequest struct {
	FacultyID     *string `json:"faculty_id"`
	SectionNumber string  `json:"section_number" validate:"required"`
	Schedule      string  `json:"schedule" validate:"required"`
	MaxCapacity   int     `json:"max_capacity" validate:"required,gt=0"`
	Status        string  `json:"status" validate:"omitempty,oneof=open closed cancelled"`
}

// SectionService manages sections and the derived capacity view.
type SectionService struct {
	repo      sectionRepository
	cache     capacityCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSectionService constructs SectionService. A zero cacheTTL disables the
// capacity cache entirely.
func NewSectionService(repo sectionRepository, cache capacityCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns sections with pagination metadata.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sections, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Available returns the sections a student could currently register into:
// open, in the requested (or current) semester, with a free seat.
func (s *SectionService) Available(ctx context.Context, semesterID string) ([]models.SectionDetail, error) {
	sections, err := s.repo.ListAvailable(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available sections")
	}
	return sections, nil
}

// Get returns a single section with joined context and live occupancy.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return detail, nil
}

// Capacity returns the capacity ledger view for a section. The value may be
// served from cache for display; admission decisions never read this path,
// they recount inside the admission transaction.
func (s *SectionService) Capacity(ctx context.Context, id string) (*models.SectionCapacity, error) {
	key := fmt.Sprintf("capacity:section:%s", id)
	if s.cache != nil && s.cacheTTL > 0 {
		var cached models.SectionCapacity
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	capacity, err := s.repo.Capacity(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section capacity")
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, key, capacity, s.cacheTTL); err != nil {
			s.logger.Warn("capacity cache write failed", zap.String("section_id", id), zap.Error(err))
		}
	}
	return capacity, nil
}

// Create registers a new section. Sections default to open.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.SectionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	section := &models.Section{
		CourseID:      req.CourseID,
		SemesterID:    req.SemesterID,
		FacultyID:     req.FacultyID,
		SectionNumber: req.SectionNumber,
		Schedule:      req.Schedule,
		MaxCapacity:   req.MaxCapacity,
		Status:        models.SectionStatusOpen,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	detail, err := s.repo.FindDetailByID(ctx, section.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section detail")
	}
	return detail, nil
}

// Update modifies a section. Lowering max_capacity below the current
// enrolled count is allowed; existing enrollments are never evicted, the
// section simply stops admitting.
func (s *SectionService) Update(ctx context.Context, id string, req UpdateSectionRequest) (*models.SectionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	section.FacultyID = req.FacultyID
	section.SectionNumber = req.SectionNumber
	section.Schedule = req.Schedule
	section.MaxCapacity = req.MaxCapacity
	if req.Status != "" {
		section.Status = models.SectionStatus(req.Status)
	}
	if err := s.repo.Update(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}
	s.invalidate(ctx, id)

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section detail")
	}
	return detail, nil
}

// UpdateStatus changes only the administrative status of a section.
func (s *SectionService) UpdateStatus(ctx context.Context, id string, status string) (*models.SectionDetail, error) {
	switch models.SectionStatus(status) {
	case models.SectionStatusOpen, models.SectionStatusClosed, models.SectionStatusCancelled:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid section status %q", status))
	}
	if err := s.repo.UpdateStatus(ctx, id, models.SectionStatus(status)); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section status")
	}
	s.invalidate(ctx, id)

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section detail")
	}
	return detail, nil
}

// Delete removes a section permanently.
func (s *SectionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete section")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *SectionService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("capacity:section:%s", id)); err != nil {
		s.logger.Warn("capacity cache invalidation failed", zap.String("section_id", id), zap.Error(err))
	}
}
