package models

import (
	"strings"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Only "enrolled" occupies a capacity slot;
// "completed" still blocks re-taking the section or course.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
	EnrollmentStatusWithdrawn EnrollmentStatus = "withdrawn"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// NormalizeEnrollmentStatus lowercases the raw value and validates it
// against the allowed set. Empty input falls back to "enrolled".
func NormalizeEnrollmentStatus(raw string) (EnrollmentStatus, bool) {
	if raw == "" {
		return EnrollmentStatusEnrolled, true
	}
	status := EnrollmentStatus(strings.ToLower(raw))
	switch status {
	case EnrollmentStatusEnrolled, EnrollmentStatusDropped, EnrollmentStatusWithdrawn, EnrollmentStatusCompleted:
		return status, true
	}
	return "", false
}

// Enrollment captures a student's registration to a section.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	SectionID      string           `db:"section_id" json:"section_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student, section, course,
// semester and faculty context plus the live section occupancy.
type EnrollmentDetail struct {
	Enrollment
	StudentNumber string  `db:"student_number" json:"student_number"`
	StudentName   string  `db:"student_name" json:"student_name"`
	SectionNumber string  `db:"section_number" json:"section_number"`
	Schedule      string  `db:"schedule" json:"schedule"`
	MaxCapacity   int     `db:"max_capacity" json:"max_capacity"`
	EnrolledCount int     `db:"enrolled_count" json:"enrolled_count"`
	CourseID      string  `db:"course_id" json:"course_id"`
	CourseCode    string  `db:"course_code" json:"course_code"`
	CourseName    string  `db:"course_name" json:"course_name"`
	CourseCredits int     `db:"course_credits" json:"course_credits"`
	SemesterID    string  `db:"semester_id" json:"semester_id"`
	SemesterName  string  `db:"semester_name" json:"semester_name"`
	FacultyName   *string `db:"faculty_name" json:"faculty_name,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID  string
	SectionID  string
	SemesterID string
	FacultyID  string
	Status     EnrollmentStatus
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
