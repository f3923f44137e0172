package models

import "time"

// Semester models an academic term. At most one semester system-wide may
// hold IsCurrent; the flag is moved transactionally, never set directly.
type Semester struct {
	ID                string     `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Year              int        `db:"year" json:"year"`
	StartDate         time.Time  `db:"start_date" json:"start_date"`
	EndDate           time.Time  `db:"end_date" json:"end_date"`
	RegistrationStart *time.Time `db:"registration_start" json:"registration_start,omitempty"`
	RegistrationEnd   *time.Time `db:"registration_end" json:"registration_end,omitempty"`
	IsCurrent         bool       `db:"is_current" json:"is_current"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// RegistrationOpenAt reports whether the registration window admits new
// enrollments at the given instant. Both bounds are inclusive; a semester
// missing either bound is always closed.
func (s Semester) RegistrationOpenAt(t time.Time) bool {
	if s.RegistrationStart == nil || s.RegistrationEnd == nil {
		return false
	}
	return !t.Before(*s.RegistrationStart) && !t.After(*s.RegistrationEnd)
}

// SemesterFilter defines filters supported by list endpoints.
type SemesterFilter struct {
	Year      int
	IsCurrent *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
