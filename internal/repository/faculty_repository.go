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

const facultyDetailSQL = `SELECT f.id, f.user_id, f.department, f.title, f.created_at, f.updated_at,
        u.email, u.first_name, u.last_name
        FROM faculty f
        JOIN users u ON u.id = f.user_id`

// FacultyRepository handles persistence of faculty records.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository constructs the repository.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

// List returns faculty filtered by the provided criteria.
func (r *FacultyRepository) List(ctx context.Context, filter models.FacultyFilter) ([]models.FacultyDetail, int, error) {
	base := `FROM faculty f JOIN users u ON u.id = f.user_id`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.first_name || ' ' || u.last_name) LIKE $%d OR LOWER(u.email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("f.department = $%d", len(args)+1))
		args = append(args, filter.Department)
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

	query := fmt.Sprintf(`SELECT f.id, f.user_id, f.department, f.title, f.created_at, f.updated_at,
        u.email, u.first_name, u.last_name
        %s ORDER BY u.last_name ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var faculty []models.FacultyDetail
	if err := r.db.SelectContext(ctx, &faculty, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list faculty: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count faculty: %w", err)
	}
	return faculty, total, nil
}

// FindByID returns a faculty member with user context by ID.
func (r *FacultyRepository) FindByID(ctx context.Context, id string) (*models.FacultyDetail, error) {
	var member models.FacultyDetail
	if err := r.db.GetContext(ctx, &member, facultyDetailSQL+` WHERE f.id = $1`, id); err != nil {
		return nil, err
	}
	return &member, nil
}

// FindByUserID returns the faculty record owned by a user account.
func (r *FacultyRepository) FindByUserID(ctx context.Context, userID string) (*models.FacultyDetail, error) {
	var member models.FacultyDetail
	if err := r.db.GetContext(ctx, &member, facultyDetailSQL+` WHERE f.user_id = $1`, userID); err != nil {
		return nil, err
	}
	return &member, nil
}

// Create persists a new faculty record.
func (r *FacultyRepository) Create(ctx context.Context, member *models.Faculty) error {
	now := time.Now().UTC()
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	member.CreatedAt = now
	member.UpdatedAt = now

	const query = `INSERT INTO faculty (id, user_id, department, title, created_at, updated_at)
        VALUES (:id, :user_id, :department, :title, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, member); err != nil {
		return fmt.Errorf("create faculty: %w", err)
	}
	return nil
}

// Update modifies an existing faculty record.
func (r *FacultyRepository) Update(ctx context.Context, member *models.Faculty) error {
	member.UpdatedAt = time.Now().UTC()
	const query = `UPDATE faculty SET department = :department, title = :title, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, member); err != nil {
		return fmt.Errorf("update faculty: %w", err)
	}
	return nil
}

// Delete removes a faculty record permanently.
func (r *FacultyRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM faculty WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete faculty: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
