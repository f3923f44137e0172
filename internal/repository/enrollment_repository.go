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
	"github.com/lib/pq"

	"github.com/campuskit/sis-api/internal/models"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

// sectionEnrolledCountSQL is the single counting rule for live occupancy.
// Only status 'enrolled' holds a seat; completed, dropped and withdrawn do
// not. The capacity ledger and the admission check must never diverge on
// this, so both read through this fragment.
const sectionEnrolledCountSQL = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = 'enrolled'`

const enrollmentInsertSQL = `INSERT INTO enrollments (id, student_id, section_id, status, enrollment_date, created_at, updated_at)
        VALUES (:id, :student_id, :section_id, :status, :enrollment_date, :created_at, :updated_at)`

const enrollmentDetailSQL = `SELECT e.id, e.student_id, e.section_id, e.status, e.enrollment_date, e.created_at, e.updated_at,
        st.student_number, (u.first_name || ' ' || u.last_name) AS student_name,
        sec.section_number, sec.schedule, sec.max_capacity,
        (SELECT COUNT(*) FROM enrollments le WHERE le.section_id = sec.id AND le.status = 'enrolled') AS enrolled_count,
        c.id AS course_id, c.code AS course_code, c.name AS course_name, c.credits AS course_credits,
        sem.id AS semester_id, sem.name AS semester_name,
        (fu.first_name || ' ' || fu.last_name) AS faculty_name
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        JOIN users u ON u.id = st.user_id
        JOIN sections sec ON sec.id = e.section_id
        JOIN courses c ON c.id = sec.course_id
        JOIN semesters sem ON sem.id = sec.semester_id
        LEFT JOIN faculty f ON f.id = sec.faculty_id
        LEFT JOIN users fu ON fu.id = f.user_id`

// AdmissionParams carries the validated inputs of a single admission attempt.
type AdmissionParams struct {
	StudentID  string
	SectionID  string
	Status     models.EnrollmentStatus
	Now        time.Time
	MaxCredits int
}

// EnrollmentRepository handles persistence of enrollments, including the
// transactional admission protocol.
type EnrollmentRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewEnrollmentRepository constructs the repository. lockTimeout bounds the
// wait on the section row lock during admission.
func NewEnrollmentRepository(db *sqlx.DB, lockTimeout time.Duration) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, lockTimeout: lockTimeout}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students st ON st.id = e.student_id
JOIN users u ON u.id = st.user_id
JOIN sections sec ON sec.id = e.section_id
JOIN courses c ON c.id = sec.course_id
JOIN semesters sem ON sem.id = sec.semester_id
LEFT JOIN faculty f ON f.id = sec.faculty_id
LEFT JOIN users fu ON fu.id = f.user_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("sec.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.FacultyID != "" {
		conditions = append(conditions, fmt.Sprintf("sec.faculty_id = $%d", len(args)+1))
		args = append(args, filter.FacultyID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.first_name || ' ' || u.last_name) LIKE $%d OR LOWER(st.student_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrollment_date": "e.enrollment_date",
		"student_name":    "student_name",
		"course_code":     "c.code",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "enrollment_date"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.enrollment_date"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.section_id, e.status, e.enrollment_date, e.created_at, e.updated_at,
        st.student_number, (u.first_name || ' ' || u.last_name) AS student_name,
        sec.section_number, sec.schedule, sec.max_capacity,
        (SELECT COUNT(*) FROM enrollments le WHERE le.section_id = sec.id AND le.status = 'enrolled') AS enrolled_count,
        c.id AS course_id, c.code AS course_code, c.name AS course_name, c.credits AS course_credits,
        sem.id AS semester_id, sem.name AS semester_name,
        (fu.first_name || ' ' || fu.last_name) AS faculty_name
        %s ORDER BY %s %s, e.id DESC LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, enrollment_date, created_at, updated_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with full contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSQL + ` WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// admissionSection is the locked section state read at the head of the
// admission transaction.
type admissionSection struct {
	ID          string               `db:"id"`
	CourseID    string               `db:"course_id"`
	SemesterID  string               `db:"semester_id"`
	Schedule    string               `db:"schedule"`
	MaxCapacity int                  `db:"max_capacity"`
	Status      models.SectionStatus `db:"status"`
}

// Admit runs the full admission pipeline as one transaction. The section
// row is locked before any aggregate read so that the capacity check and
// the insert are atomic with respect to concurrent admissions; the student
// row is locked to serialize per-student duplicate and hold checks. Every
// rejection rolls back, leaving no partial row.
func (r *EnrollmentRepository) Admit(ctx context.Context, params AdmissionParams) (enrollment *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin admission tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if r.lockTimeout > 0 {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
			return nil, fmt.Errorf("set lock timeout: %w", err)
		}
	}

	var section admissionSection
	const lockSection = `SELECT id, course_id, semester_id, schedule, max_capacity, status FROM sections WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &section, lockSection, params.SectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, lockErr("lock section", err)
	}

	if section.Status != models.SectionStatusOpen {
		err = appErrors.ErrSectionClosed
		return nil, err
	}

	var semester models.Semester
	const semesterQuery = `SELECT id, name, year, start_date, end_date, registration_start, registration_end, is_current, created_at, updated_at FROM semesters WHERE id = $1`
	if err = tx.GetContext(ctx, &semester, semesterQuery, section.SemesterID); err != nil {
		return nil, fmt.Errorf("load semester: %w", err)
	}
	if !semester.IsCurrent {
		err = appErrors.ErrSemesterNotCurrent
		return nil, err
	}
	if !semester.RegistrationOpenAt(params.Now) {
		err = appErrors.ErrRegistrationClosed
		return nil, err
	}

	var enrolled int
	if err = tx.GetContext(ctx, &enrolled, sectionEnrolledCountSQL, section.ID); err != nil {
		return nil, fmt.Errorf("count section enrollments: %w", err)
	}
	if enrolled >= section.MaxCapacity {
		err = appErrors.ErrSectionFull
		return nil, err
	}

	var studentID string
	const lockStudent = `SELECT id FROM students WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &studentID, lockStudent, params.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, lockErr("lock student", err)
	}

	var exists int
	const holdQuery = `SELECT 1 FROM finance_records WHERE student_id = $1 AND semester_id = $2 AND status = 'pending' LIMIT 1`
	if err = tx.GetContext(ctx, &exists, holdQuery, params.StudentID, section.SemesterID); err == nil {
		err = appErrors.ErrFinanceHold
		return nil, err
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check finance hold: %w", err)
	}
	err = nil

	const duplicateSection = `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status IN ('enrolled', 'completed') LIMIT 1`
	if err = tx.GetContext(ctx, &exists, duplicateSection, params.StudentID, params.SectionID); err == nil {
		err = appErrors.ErrDuplicateEnrollment
		return nil, err
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check duplicate enrollment: %w", err)
	}
	err = nil

	const duplicateCourse = `SELECT 1 FROM enrollments e JOIN sections s ON s.id = e.section_id
WHERE e.student_id = $1 AND s.semester_id = $2 AND s.course_id = $3 AND e.status IN ('enrolled', 'completed') LIMIT 1`
	if err = tx.GetContext(ctx, &exists, duplicateCourse, params.StudentID, section.SemesterID, section.CourseID); err == nil {
		err = appErrors.ErrDuplicateCourse
		return nil, err
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check duplicate course: %w", err)
	}
	err = nil

	if schedule := strings.TrimSpace(section.Schedule); schedule != "" {
		const clashQuery = `SELECT 1 FROM enrollments e JOIN sections s ON s.id = e.section_id
WHERE e.student_id = $1 AND s.semester_id = $2 AND e.status = 'enrolled' AND LOWER(s.schedule) = LOWER($3) LIMIT 1`
		if err = tx.GetContext(ctx, &exists, clashQuery, params.StudentID, section.SemesterID, schedule); err == nil {
			err = appErrors.ErrScheduleConflict
			return nil, err
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("check schedule conflict: %w", err)
		}
		err = nil
	}

	if params.MaxCredits > 0 {
		var credits int
		const creditQuery = `SELECT COALESCE(SUM(c.credits), 0) FROM enrollments e
JOIN sections s ON s.id = e.section_id
JOIN courses c ON c.id = s.course_id
WHERE e.student_id = $1 AND s.semester_id = $2 AND e.status = 'enrolled'`
		if err = tx.GetContext(ctx, &credits, creditQuery, params.StudentID, section.SemesterID); err != nil {
			return nil, fmt.Errorf("sum enrolled credits: %w", err)
		}
		var target int
		if err = tx.GetContext(ctx, &target, `SELECT credits FROM courses WHERE id = $1`, section.CourseID); err != nil {
			return nil, fmt.Errorf("load course credits: %w", err)
		}
		if credits+target > params.MaxCredits {
			err = appErrors.Clone(appErrors.ErrCreditLimit, fmt.Sprintf("credit limit exceeded (max %d)", params.MaxCredits))
			return nil, err
		}
	}

	enrollment = &models.Enrollment{
		ID:             uuid.NewString(),
		StudentID:      params.StudentID,
		SectionID:      params.SectionID,
		Status:         params.Status,
		EnrollmentDate: params.Now,
		CreatedAt:      params.Now,
		UpdatedAt:      params.Now,
	}
	if _, err = tx.NamedExecContext(ctx, enrollmentInsertSQL, enrollment); err != nil {
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}
	return enrollment, nil
}

// BulkAdmissionRow is one row of a bulk enrollment import. A section may be
// referenced by ID or by section number within the batch semester.
type BulkAdmissionRow struct {
	StudentID     string
	SectionID     string
	SectionNumber string
	Status        string
}

// BulkAdmissionParams carries a bulk import batch.
type BulkAdmissionParams struct {
	SemesterID string
	Rows       []BulkAdmissionRow
	Now        time.Time
}

// BulkAdmissionResult reports how a batch fared. SectionIDs lists the
// sections that received at least one insert.
type BulkAdmissionResult struct {
	Processed  int
	Skipped    int
	SectionIDs []string
}

// BulkCreate imports a batch of enrollments in one transaction. Unlike Admit
// it never rejects the batch over a bad row: rows with missing references,
// unknown statuses, existing active enrollments or full sections are counted
// as skipped and the rest proceed. Infrastructure errors still roll the whole
// batch back.
func (r *EnrollmentRepository) BulkCreate(ctx context.Context, params BulkAdmissionParams) (result *BulkAdmissionResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk enrollment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result = &BulkAdmissionResult{}
	touched := make(map[string]struct{})
	for _, row := range params.Rows {
		if row.StudentID == "" {
			result.Skipped++
			continue
		}

		sectionID := row.SectionID
		if sectionID == "" && row.SectionNumber != "" {
			lookup := `SELECT id FROM sections WHERE section_number = $1`
			args := []interface{}{row.SectionNumber}
			if params.SemesterID != "" {
				lookup += ` AND semester_id = $2`
				args = append(args, params.SemesterID)
			}
			lookup += ` LIMIT 1`
			if err = tx.GetContext(ctx, &sectionID, lookup, args...); err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					return nil, fmt.Errorf("resolve section number: %w", err)
				}
				err = nil
			}
		}
		if sectionID == "" {
			result.Skipped++
			continue
		}

		status, ok := models.NormalizeEnrollmentStatus(row.Status)
		if !ok {
			result.Skipped++
			continue
		}

		var exists int
		const dupQuery = `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status IN ('enrolled', 'completed') LIMIT 1`
		if err = tx.GetContext(ctx, &exists, dupQuery, row.StudentID, sectionID); err == nil {
			result.Skipped++
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("check duplicate enrollment: %w", err)
		}
		err = nil

		var maxCapacity int
		if err = tx.GetContext(ctx, &maxCapacity, `SELECT max_capacity FROM sections WHERE id = $1`, sectionID); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("load section capacity: %w", err)
			}
			err = nil
			result.Skipped++
			continue
		}
		if status == models.EnrollmentStatusEnrolled {
			var enrolled int
			if err = tx.GetContext(ctx, &enrolled, sectionEnrolledCountSQL, sectionID); err != nil {
				return nil, fmt.Errorf("count section enrollments: %w", err)
			}
			if enrolled >= maxCapacity {
				result.Skipped++
				continue
			}
		}

		enrollment := models.Enrollment{
			ID:             uuid.NewString(),
			StudentID:      row.StudentID,
			SectionID:      sectionID,
			Status:         status,
			EnrollmentDate: params.Now,
			CreatedAt:      params.Now,
			UpdatedAt:      params.Now,
		}
		if _, err = tx.NamedExecContext(ctx, enrollmentInsertSQL, enrollment); err != nil {
			return nil, fmt.Errorf("insert enrollment: %w", err)
		}
		if _, seen := touched[sectionID]; !seen {
			touched[sectionID] = struct{}{}
			result.SectionIDs = append(result.SectionIDs, sectionID)
		}
		result.Processed++
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk enrollment: %w", err)
	}
	return result, nil
}

// UpdateStatus sets the status of an existing enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExistsActive checks for another row holding the (student, section) pair in
// an occupying status.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, sectionID, excludeID string) (bool, error) {
	query := `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status IN ('enrolled', 'completed')`
	args := []interface{}{studentID, sectionID}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// Update rewrites the student, section and status references of a row.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET student_id = :student_id, section_id = :section_id, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// Delete removes an enrollment permanently.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// lockErr maps a Postgres lock_not_available failure onto the retryable
// conflict; anything else is passed through wrapped.
func lockErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "55P03" {
		return appErrors.ErrLockTimeout
	}
	return fmt.Errorf("%s: %w", op, err)
}
