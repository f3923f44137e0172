package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/sis-api/internal/models"
)

const gradeColumns = `g.id, g.enrollment_id, g.letter_grade, g.numeric_grade, g.grade_points, g.semester_id, g.posted_by, g.posted_at, g.created_at, g.updated_at`

// GradeRepository handles persistence of grades and the GPA projection.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grades filtered by the provided criteria.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	base := `FROM grades g
JOIN enrollments e ON e.id = g.enrollment_id
JOIN sections s ON s.id = e.section_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("g.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.FacultyID != "" {
		conditions = append(conditions, fmt.Sprintf("s.faculty_id = $%d", len(args)+1))
		args = append(args, filter.FacultyID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY g.created_at DESC, g.id DESC LIMIT %d OFFSET %d`, gradeColumns, base+clause, size, offset)

	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// FindByID returns a grade by its ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades g WHERE g.id = $1`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// StudentForEnrollment resolves the student owning an enrollment.
func (r *GradeRepository) StudentForEnrollment(ctx context.Context, enrollmentID string) (string, error) {
	var studentID string
	const query = `SELECT student_id FROM enrollments WHERE id = $1`
	if err := r.db.GetContext(ctx, &studentID, query, enrollmentID); err != nil {
		return "", err
	}
	return studentID, nil
}

// Create persists a new grade.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	now := time.Now().UTC()
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	grade.CreatedAt = now
	grade.UpdatedAt = now

	const query = `INSERT INTO grades (id, enrollment_id, letter_grade, numeric_grade, grade_points, semester_id, posted_by, posted_at, created_at, updated_at)
        VALUES (:id, :enrollment_id, :letter_grade, :numeric_grade, :grade_points, :semester_id, :posted_by, :posted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update modifies an existing grade.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET enrollment_id = :enrollment_id, letter_grade = :letter_grade, numeric_grade = :numeric_grade,
        grade_points = :grade_points, semester_id = :semester_id, posted_by = :posted_by, posted_at = :posted_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// Delete removes a grade permanently.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecalculateStudentGPA recomputes and persists the student's cached GPA
// from every grade attached to one of their enrollments. The student row is
// locked for the duration so concurrent grade writes for the same student
// cannot lose an update. Returns the persisted value.
func (r *GradeRepository) RecalculateStudentGPA(ctx context.Context, studentID string) (gpa float64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin gpa tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lockedID string
	if err = tx.GetContext(ctx, &lockedID, `SELECT id FROM students WHERE id = $1 FOR UPDATE`, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sql.ErrNoRows
		}
		return 0, fmt.Errorf("lock student: %w", err)
	}

	const sourceQuery = `SELECT g.id, g.enrollment_id, g.letter_grade, g.numeric_grade, g.grade_points, g.semester_id, g.posted_by, g.posted_at, g.created_at, g.updated_at,
        e.student_id, c.credits
        FROM grades g
        JOIN enrollments e ON e.id = g.enrollment_id
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE e.student_id = $1`
	var grades []models.GradeCredit
	if err = tx.SelectContext(ctx, &grades, sourceQuery, studentID); err != nil {
		return 0, fmt.Errorf("load grade credits: %w", err)
	}

	gpa = models.ComputeGPA(grades)
	if _, err = tx.ExecContext(ctx, `UPDATE students SET gpa = $2, updated_at = $3 WHERE id = $1`, studentID, gpa, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("persist gpa: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit gpa tx: %w", err)
	}
	return gpa, nil
}
