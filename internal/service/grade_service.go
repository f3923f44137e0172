package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/sis-api/internal/models"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	StudentForEnrollment(ctx context.Context, enrollmentID string) (string, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
	RecalculateStudentGPA(ctx context.Context, studentID string) (float64, error)
}

// CreateGradeRequest describes the grade posting payload. At least one of
// letter_grade or grade_points must resolve to a point value.
type CreateGradeRequest struct {
	EnrollmentID string   `json:"enrollment_id" validate:"required"`
	LetterGrade  *string  `json:"letter_grade"`
	NumericGrade *float64 `json:"numeric_grade" validate:"omitempty,gte=0,lte=100"`
	GradePoints  *float64 `json:"grade_points" validate:"omitempty,gte=0,lte=4"`
	SemesterID   *string  `json:"semester_id"`
}

// UpdateGradeRequest describes the grade correction payload.
type UpdateGradeRequest struct {
	LetterGrade  *string  `json:"letter_grade"`
	NumericGrade *float64 `json:"numeric_grade" validate:"omitempty,gte=0,lte=100"`
	GradePoints  *float64 `json:"grade_points" validate:"omitempty,gte=0,lte=4"`
	SemesterID   *string  `json:"semester_id"`
}

// GradeService posts grades and keeps student GPA consistent. Every write
// recalculates the owning student's GPA in the same request before the
// response is returned.
type GradeService struct {
	repo      gradeRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeService constructs GradeService.
func NewGradeService(repo gradeRepository, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// List returns grades with pagination metadata.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, *models.Pagination, error) {
	grades, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return grades, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a grade by ID.
func (s *GradeService) Get(ctx context.Context, id string) (*models.Grade, error) {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

// Create posts a grade and synchronously recalculates the student's GPA.
func (s *GradeService) Create(ctx context.Context, req CreateGradeRequest, postedBy string) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if err := validateGradeValue(req.LetterGrade, req.GradePoints); err != nil {
		return nil, err
	}

	studentID, err := s.repo.StudentForEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollment")
	}

	postedAt := s.now().UTC()
	grade := &models.Grade{
		EnrollmentID: req.EnrollmentID,
		LetterGrade:  req.LetterGrade,
		NumericGrade: req.NumericGrade,
		GradePoints:  req.GradePoints,
		SemesterID:   req.SemesterID,
		PostedAt:     &postedAt,
	}
	if postedBy != "" {
		grade.PostedBy = &postedBy
	}
	if err := s.repo.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
	}

	if _, err := s.repo.RecalculateStudentGPA(ctx, studentID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recalculate gpa")
	}
	return grade, nil
}

// Update corrects a grade and synchronously recalculates the student's GPA.
func (s *GradeService) Update(ctx context.Context, id string, req UpdateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if err := validateGradeValue(req.LetterGrade, req.GradePoints); err != nil {
		return nil, err
	}

	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	studentID, err := s.repo.StudentForEnrollment(ctx, grade.EnrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollment")
	}

	grade.LetterGrade = req.LetterGrade
	grade.NumericGrade = req.NumericGrade
	grade.GradePoints = req.GradePoints
	grade.SemesterID = req.SemesterID
	if err := s.repo.Update(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}

	if _, err := s.repo.RecalculateStudentGPA(ctx, studentID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recalculate gpa")
	}
	return grade, nil
}

// Delete removes a grade and synchronously recalculates the student's GPA.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	studentID, err := s.repo.StudentForEnrollment(ctx, grade.EnrollmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollment")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}

	if _, err := s.repo.RecalculateStudentGPA(ctx, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recalculate gpa")
	}
	return nil
}

// validateGradeValue requires that the payload carries a resolvable point
// value, either explicit grade_points or a known letter grade.
func validateGradeValue(letter *string, points *float64) error {
	if points != nil {
		return nil
	}
	if letter == nil {
		return appErrors.Clone(appErrors.ErrValidation, "grade requires letter_grade or grade_points")
	}
	if _, ok := models.LetterPoints[strings.ToLower(strings.TrimSpace(*letter))]; !ok {
		return appErrors.Clone(appErrors.ErrValidation, "unknown letter grade")
	}
	return nil
}
