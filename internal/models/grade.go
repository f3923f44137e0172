package models

import (
	"math"
	"strings"
	"time"
)

// LetterPoints is the fixed 11-point letter scale used when a grade carries
// no explicit point value.
var LetterPoints = map[string]float64{
	"a":  4.0,
	"a-": 3.7,
	"b+": 3.3,
	"b":  3.0,
	"b-": 2.7,
	"c+": 2.3,
	"c":  2.0,
	"c-": 1.7,
	"d+": 1.3,
	"d":  1.0,
	"f":  0.0,
}

// Grade represents a posted grade for an enrollment.
type Grade struct {
	ID           string     `db:"id" json:"id"`
	EnrollmentID string     `db:"enrollment_id" json:"enrollment_id"`
	LetterGrade  *string    `db:"letter_grade" json:"letter_grade,omitempty"`
	NumericGrade *float64   `db:"numeric_grade" json:"numeric_grade,omitempty"`
	GradePoints  *float64   `db:"grade_points" json:"grade_points,omitempty"`
	SemesterID   *string    `db:"semester_id" json:"semester_id,omitempty"`
	PostedBy     *string    `db:"posted_by" json:"posted_by,omitempty"`
	PostedAt     *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ResolvePoints returns the grade point value used for GPA: the explicit
// grade_points when present, otherwise the letter scale lookup. The second
// return is false when neither resolves.
func (g Grade) ResolvePoints() (float64, bool) {
	if g.GradePoints != nil {
		return *g.GradePoints, true
	}
	if g.LetterGrade == nil {
		return 0, false
	}
	points, ok := LetterPoints[strings.ToLower(strings.TrimSpace(*g.LetterGrade))]
	return points, ok
}

// GradeCredit pairs a grade with the credit weight of its course. It is the
// unit of GPA recalculation.
type GradeCredit struct {
	Grade
	StudentID string `db:"student_id" json:"student_id"`
	Credits   int    `db:"credits" json:"credits"`
}

// ComputeGPA returns the credit-weighted average grade point value rounded
// to two decimals. Pairs with non-positive credits or unresolvable points
// are excluded from both numerator and denominator; zero total credits
// yields 0.
func ComputeGPA(grades []GradeCredit) float64 {
	var totalPoints, totalCredits float64
	for _, gc := range grades {
		if gc.Credits <= 0 {
			continue
		}
		points, ok := gc.ResolvePoints()
		if !ok {
			continue
		}
		totalPoints += points * float64(gc.Credits)
		totalCredits += float64(gc.Credits)
	}
	if totalCredits == 0 {
		return 0
	}
	return math.Round(totalPoints/totalCredits*100) / 100
}

// GradeFilter allows querying of grade entries.
type GradeFilter struct {
	StudentID    string
	EnrollmentID string
	SemesterID   string
	FacultyID    string
	Page         int
	PageSize     int
}
