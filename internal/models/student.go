package models

import "time"

// Student represents a learner registered in the institution.
type Student struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	StudentNumber  string    `db:"student_number" json:"student_number"`
	Major          string    `db:"major" json:"major"`
	EnrollmentYear int       `db:"enrollment_year" json:"enrollment_year"`
	GPA            float64   `db:"gpa" json:"gpa"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail joins the owning user account onto the student row.
type StudentDetail struct {
	Student
	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Major     string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
