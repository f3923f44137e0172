package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func gradeCredit(letter string, points *float64, credits int) GradeCredit {
	gc := GradeCredit{Credits: credits}
	if letter != "" {
		gc.LetterGrade = strPtr(letter)
	}
	gc.GradePoints = points
	return gc
}

func TestResolvePoints(t *testing.T) {
	assert.Equal(t, 4.0, mustResolve(t, gradeCredit("A", nil, 3)))
	assert.Equal(t, 3.3, mustResolve(t, gradeCredit("b+", nil, 3)))
	assert.Equal(t, 3.7, mustResolve(t, gradeCredit(" A- ", nil, 3)))

	// Explicit grade points win over the letter scale.
	assert.Equal(t, 2.5, mustResolve(t, gradeCredit("A", floatPtr(2.5), 3)))

	_, ok := Grade{}.ResolvePoints()
	assert.False(t, ok)
	_, ok = gradeCredit("Z", nil, 3).ResolvePoints()
	assert.False(t, ok)
}

func mustResolve(t *testing.T, gc GradeCredit) float64 {
	t.Helper()
	points, ok := gc.ResolvePoints()
	require.True(t, ok)
	return points
}

func TestComputeGPA(t *testing.T) {
	grades := []GradeCredit{
		gradeCredit("A", nil, 8),
		gradeCredit("B", nil, 3),
	}
	assert.Equal(t, 3.73, ComputeGPA(grades))

	// Removing the B pulls the average back to a clean 4.00.
	assert.Equal(t, 4.0, ComputeGPA(grades[:1]))
}

func TestComputeGPASkipsUnresolvable(t *testing.T) {
	grades := []GradeCredit{
		gradeCredit("A", nil, 3),
		gradeCredit("", nil, 3),
		gradeCredit("A", nil, 0),
	}
	assert.Equal(t, 4.0, ComputeGPA(grades))
}

func TestComputeGPAEmpty(t *testing.T) {
	assert.Zero(t, ComputeGPA(nil))
}

func TestNormalizeEnrollmentStatus(t *testing.T) {
	status, ok := NormalizeEnrollmentStatus("")
	require.True(t, ok)
	assert.Equal(t, EnrollmentStatusEnrolled, status)

	status, ok = NormalizeEnrollmentStatus("DROPPED")
	require.True(t, ok)
	assert.Equal(t, EnrollmentStatusDropped, status)

	_, ok = NormalizeEnrollmentStatus("expelled")
	assert.False(t, ok)
}
