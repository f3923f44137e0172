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

const financeColumns = `id, student_id, semester_id, amount, transaction_type, description, status, transaction_date, created_at, updated_at`

// FinanceRepository handles persistence of student finance records.
type FinanceRepository struct {
	db *sqlx.DB
}

// NewFinanceRepository constructs the repository.
func NewFinanceRepository(db *sqlx.DB) *FinanceRepository {
	return &FinanceRepository{db: db}
}

// List returns finance records filtered by the provided criteria.
func (r *FinanceRepository) List(ctx context.Context, filter models.FinanceFilter) ([]models.FinanceRecord, int, error) {
	base := `FROM finance_records WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.TransactionType != "" {
		conditions = append(conditions, fmt.Sprintf("transaction_type = $%d", len(args)+1))
		args = append(args, filter.TransactionType)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY transaction_date DESC LIMIT %d OFFSET %d", financeColumns, base, size, offset)

	var records []models.FinanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list finance records: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count finance records: %w", err)
	}
	return records, total, nil
}

// FindByID returns a finance record by identifier.
func (r *FinanceRepository) FindByID(ctx context.Context, id string) (*models.FinanceRecord, error) {
	var record models.FinanceRecord
	if err := r.db.GetContext(ctx, &record, `SELECT `+financeColumns+` FROM finance_records WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ExistsPendingHold reports whether the student has any pending finance
// record in the given semester.
func (r *FinanceRepository) ExistsPendingHold(ctx context.Context, studentID, semesterID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM finance_records WHERE student_id = $1 AND semester_id = $2 AND status = 'pending')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, semesterID); err != nil {
		return false, fmt.Errorf("check finance hold: %w", err)
	}
	return exists, nil
}

// Create persists a new finance record.
func (r *FinanceRepository) Create(ctx context.Context, record *models.FinanceRecord) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.TransactionDate.IsZero() {
		record.TransactionDate = now
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	const query = `INSERT INTO finance_records (id, student_id, semester_id, amount, transaction_type, description, status, transaction_date, created_at, updated_at)
        VALUES (:id, :student_id, :semester_id, :amount, :transaction_type, :description, :status, :transaction_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create finance record: %w", err)
	}
	return nil
}

// Update modifies an existing finance record.
func (r *FinanceRepository) Update(ctx context.Context, record *models.FinanceRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE finance_records SET amount = :amount, transaction_type = :transaction_type, description = :description, status = :status, transaction_date = :transaction_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update finance record: %w", err)
	}
	return nil
}

// UpdateStatus changes only the settlement status of a record.
func (r *FinanceRepository) UpdateStatus(ctx context.Context, id string, status models.FinanceStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE finance_records SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update finance status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a finance record permanently.
func (r *FinanceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM finance_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete finance record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
