package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/sis-api/internal/models"
)

const sectionDetailSQL = `SELECT s.id, s.course_id, s.semester_id, s.faculty_id, s.section_number, s.schedule, s.max_capacity, s.status, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name, c.credits AS course_credits,
        sem.name AS semester_name, sem.year AS semester_year,
        (fu.first_name || ' ' || fu.last_name) AS faculty_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = s.id AND e.status = 'enrolled') AS enrolled_count
        FROM sections s
        JOIN courses c ON c.id = s.course_id
        JOIN semesters sem ON sem.id = s.semester_id
        LEFT JOIN faculty f ON f.id = s.faculty_id
        LEFT JOIN users fu ON fu.id = f.user_id`

// SectionRepository handles persistence of class sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// List returns sections filtered by the provided criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM sections s
JOIN courses c ON c.id = s.course_id
JOIN semesters sem ON sem.id = s.semester_id
LEFT JOIN faculty f ON f.id = s.faculty_id
LEFT JOIN users fu ON fu.id = f.user_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("s.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.FacultyID != "" {
		conditions = append(conditions, fmt.Sprintf("s.faculty_id = $%d", len(args)+1))
		args = append(args, filter.FacultyID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"section_number": "s.section_number",
		"course_code":    "c.code",
		"created_at":     "s.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT s.id, s.course_id, s.semester_id, s.faculty_id, s.section_number, s.schedule, s.max_capacity, s.status, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name, c.credits AS course_credits,
        sem.name AS semester_name, sem.year AS semester_year,
        (fu.first_name || ' ' || fu.last_name) AS faculty_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = s.id AND e.status = 'enrolled') AS enrolled_count
        %s ORDER BY %s %s, s.section_number ASC LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// ListAvailable returns open sections with at least one free seat, scoped to
// the given semester or to the current one when none is given. Occupancy uses
// the same status = 'enrolled' rule as the admission transaction; the result
// is advisory, admission still recounts under the section row lock.
func (r *SectionRepository) ListAvailable(ctx context.Context, semesterID string) ([]models.SectionDetail, error) {
	query := sectionDetailSQL + ` WHERE s.status = 'open'`
	var args []interface{}
	if semesterID != "" {
		query += ` AND s.semester_id = $1`
		args = append(args, semesterID)
	} else {
		query += ` AND sem.is_current = TRUE`
	}
	query += ` AND (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = s.id AND e.status = 'enrolled') < s.max_capacity
        ORDER BY c.code ASC, s.section_number ASC`

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, fmt.Errorf("list available sections: %w", err)
	}
	return sections, nil
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, course_id, semester_id, faculty_id, section_number, schedule, max_capacity, status, created_at, updated_at FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindDetailByID returns a section with contextual info and live occupancy.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	query := sectionDetailSQL + ` WHERE s.id = $1`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Capacity returns the capacity ledger view for a section. It uses the same
// counting rule as the admission transaction; the admission decision itself
// re-reads the count under the section row lock.
func (r *SectionRepository) Capacity(ctx context.Context, id string) (*models.SectionCapacity, error) {
	var capacity models.SectionCapacity
	const query = `SELECT id, max_capacity FROM sections WHERE id = $1`
	if err := r.db.GetContext(ctx, &capacity, query, id); err != nil {
		return nil, err
	}
	if err := r.db.GetContext(ctx, &capacity.EnrolledCount, sectionEnrolledCountSQL, id); err != nil {
		return nil, fmt.Errorf("count section enrollments: %w", err)
	}
	capacity.HasCapacity = capacity.EnrolledCount < capacity.MaxCapacity
	return &capacity, nil
}

// Create persists a new section.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	now := time.Now().UTC()
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	if section.Status == "" {
		section.Status = models.SectionStatusOpen
	}
	section.CreatedAt = now
	section.UpdatedAt = now

	const query = `INSERT INTO sections (id, course_id, semester_id, faculty_id, section_number, schedule, max_capacity, status, created_at, updated_at)
        VALUES (:id, :course_id, :semester_id, :faculty_id, :section_number, :schedule, :max_capacity, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update modifies an existing section.
func (r *SectionRepository) Update(ctx context.Context, section *models.Section) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sections SET course_id = :course_id, semester_id = :semester_id, faculty_id = :faculty_id, section_number = :section_number,
        schedule = :schedule, max_capacity = :max_capacity, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// UpdateStatus sets the administrative status of a section.
func (r *SectionRepository) UpdateStatus(ctx context.Context, id string, status models.SectionStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sections SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update section status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a section permanently.
func (r *SectionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
