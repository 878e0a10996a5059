package models

import "time"

// DebtStatus is the settlement state of a bad debt.
type DebtStatus string

const (
	DebtPending DebtStatus = "pending"
	DebtPaid    DebtStatus = "paid"
	DebtWaived  DebtStatus = "waived"
)

// Terminal reports whether the debt is settled.
func (s DebtStatus) Terminal() bool {
	return s == DebtPaid || s == DebtWaived
}

// DebtType mirrors the loan closure that produced the debt.
type DebtType string

const (
	DebtLost    DebtType = "lost"
	DebtDamaged DebtType = "damaged"
)

// Valid reports whether the type is lost or damaged.
func (t DebtType) Valid() bool {
	return t == DebtLost || t == DebtDamaged
}

// BadDebt is a monetary obligation raised when a loan closes lost or damaged.
type BadDebt struct {
	ID            int64      `db:"id" json:"id"`
	TransactionID int64      `db:"transaction_id" json:"transaction_id"`
	BookID        int64      `db:"book_id" json:"book_id"`
	StudentID     int64      `db:"student_id" json:"student_id"`
	Amount        float64    `db:"amount" json:"amount"`
	Date          time.Time  `db:"charged_at" json:"date"`
	Status        DebtStatus `db:"status" json:"status"`
	Type          DebtType   `db:"type" json:"type"`
	Notes         string     `db:"notes" json:"notes,omitempty"`
	PaidDate      *time.Time `db:"paid_date" json:"paid_date,omitempty"`
}

// RiskSnapshot returns the settlement status only.
func (d *BadDebt) RiskSnapshot() *RiskSnapshot {
	if d == nil {
		return nil
	}
	return &RiskSnapshot{Status: string(d.Status)}
}

// BadDebtDetail adds display names to a debt row.
type BadDebtDetail struct {
	BadDebt
	BookTitle   string `db:"book_title" json:"book_title"`
	StudentName string `db:"student_name" json:"student_name"`
}

// BadDebtFilter narrows debt listings.
type BadDebtFilter struct {
	Status    DebtStatus
	Type      DebtType
	StudentID int64
	Page      int
	PageSize  int
}
