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

const semesterColumns = `id, name, year, start_date, end_date, registration_start, registration_end, is_current, created_at, updated_at`

// SemesterRepository handles persistence of semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs the repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// List returns semesters filtered by the provided criteria.
func (r *SemesterRepository) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.IsCurrent != nil {
		conditions = append(conditions, fmt.Sprintf("is_current = $%d", len(args)+1))
		args = append(args, *filter.IsCurrent)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT %s FROM semesters%s ORDER BY year %s, start_date %s LIMIT %d OFFSET %d`,
		semesterColumns, clause, order, order, size, offset)

	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list semesters: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM semesters"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count semesters: %w", err)
	}
	return semesters, total, nil
}

// FindByID returns a semester by its ID.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, `SELECT `+semesterColumns+` FROM semesters WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// FindCurrent returns the single current semester.
func (r *SemesterRepository) FindCurrent(ctx context.Context) (*models.Semester, error) {
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, `SELECT `+semesterColumns+` FROM semesters WHERE is_current = TRUE LIMIT 1`); err != nil {
		return nil, err
	}
	return &semester, nil
}

// Create persists a new semester. When the payload asks for is_current the
// existing flag holder is cleared inside the same transaction, keeping the
// at-most-one invariant.
func (r *SemesterRepository) Create(ctx context.Context, semester *models.Semester) (err error) {
	now := time.Now().UTC()
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	semester.CreatedAt = now
	semester.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create semester tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if semester.IsCurrent {
		if _, err = tx.ExecContext(ctx, `UPDATE semesters SET is_current = FALSE, updated_at = $1 WHERE is_current = TRUE`, now); err != nil {
			return fmt.Errorf("clear current semester: %w", err)
		}
	}

	const query = `INSERT INTO semesters (id, name, year, start_date, end_date, registration_start, registration_end, is_current, created_at, updated_at)
        VALUES (:id, :name, :year, :start_date, :end_date, :registration_start, :registration_end, :is_current, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create semester: %w", err)
	}
	return nil
}

// Update modifies an existing semester under the same current-flag protocol
// as Create.
func (r *SemesterRepository) Update(ctx context.Context, semester *models.Semester) (err error) {
	now := time.Now().UTC()
	semester.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update semester tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if semester.IsCurrent {
		if _, err = tx.ExecContext(ctx, `UPDATE semesters SET is_current = FALSE, updated_at = $1 WHERE is_current = TRUE AND id <> $2`, now, semester.ID); err != nil {
			return fmt.Errorf("clear current semester: %w", err)
		}
	}

	const query = `UPDATE semesters SET name = :name, year = :year, start_date = :start_date, end_date = :end_date,
        registration_start = :registration_start, registration_end = :registration_end, is_current = :is_current, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("update semester: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update semester: %w", err)
	}
	return nil
}

// SetCurrent marks the provided semester as current and clears the flag
// everywhere else in one transaction.
func (r *SemesterRepository) SetCurrent(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set current tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE semesters SET is_current = FALSE, updated_at = $1 WHERE is_current = TRUE AND id <> $2`, now, id); err != nil {
		return fmt.Errorf("clear current semester: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE semesters SET is_current = TRUE, updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("set current semester: %w", err)
	}
	if n, raErr := res.RowsAffected(); raErr == nil && n == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set current tx: %w", err)
	}
	return nil
}

// Delete removes a semester permanently.
func (r *SemesterRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM semesters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete semester: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountSections returns the number of sections referencing the semester.
func (r *SemesterRepository) CountSections(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sections WHERE semester_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count semester sections: %w", err)
	}
	return count, nil
}
