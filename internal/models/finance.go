package models

import "time"

// FinanceStatus represents the settlement state of a finance record.
type FinanceStatus string

const (
	FinanceStatusPending  FinanceStatus = "pending"
	FinanceStatusPaid     FinanceStatus = "paid"
	FinanceStatusWaived   FinanceStatus = "waived"
	FinanceStatusRefunded FinanceStatus = "refunded"
)

// FinanceRecord is a charge or payment for a student in a semester. A
// pending record is a hold blocking new enrollment in that semester.
type FinanceRecord struct {
	ID              string        `db:"id" json:"id"`
	StudentID       string        `db:"student_id" json:"student_id"`
	SemesterID      string        `db:"semester_id" json:"semester_id"`
	Amount          float64       `db:"amount" json:"amount"`
	TransactionType string        `db:"transaction_type" json:"transaction_type"`
	Description     *string       `db:"description" json:"description,omitempty"`
	Status          FinanceStatus `db:"status" json:"status"`
	TransactionDate time.Time     `db:"transaction_date" json:"transaction_date"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// FinanceFilter captures list filters for finance records.
type FinanceFilter struct {
	StudentID       string
	SemesterID      string
	Status          FinanceStatus
	TransactionType string
	Page            int
	PageSize        int
}
