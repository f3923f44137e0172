package models

import "time"

// SectionStatus represents the administrative state of a class section.
type SectionStatus string

const (
	SectionStatusOpen      SectionStatus = "open"
	SectionStatusClosed    SectionStatus = "closed"
	SectionStatusCancelled SectionStatus = "cancelled"
)

// Section is one scheduled offering of a course within a semester. Seat
// occupancy is never stored on the row; it is always derived by counting
// enrolled rows at read time.
type Section struct {
	ID            string        `db:"id" json:"id"`
	CourseID      string        `db:"course_id" json:"course_id"`
	SemesterID    string        `db:"semester_id" json:"semester_id"`
	FacultyID     *string       `db:"faculty_id" json:"faculty_id,omitempty"`
	SectionNumber string        `db:"section_number" json:"section_number"`
	Schedule      string        `db:"schedule" json:"schedule"`
	MaxCapacity   int           `db:"max_capacity" json:"max_capacity"`
	Status        SectionStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches Section with course, semester and faculty context
// plus the live enrolled count.
type SectionDetail struct {
	Section
	CourseCode    string  `db:"course_code" json:"course_code"`
	CourseName    string  `db:"course_name" json:"course_name"`
	CourseCredits int     `db:"course_credits" json:"course_credits"`
	SemesterName  string  `db:"semester_name" json:"semester_name"`
	SemesterYear  int     `db:"semester_year" json:"semester_year"`
	FacultyName   *string `db:"faculty_name" json:"faculty_name,omitempty"`
	EnrolledCount int     `db:"enrolled_count" json:"enrolled_count"`
}

// SectionCapacity is the capacity ledger view for a single section. Only
// rows with status "enrolled" occupy a seat.
type SectionCapacity struct {
	SectionID     string `db:"id" json:"section_id"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
	MaxCapacity   int    `db:"max_capacity" json:"max_capacity"`
	HasCapacity   bool   `json:"has_capacity"`
}

// SectionFilter provides filters for listing sections.
type SectionFilter struct {
	CourseID   string
	SemesterID string
	FacultyID  string
	Status     SectionStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
