package models

import "time"

// TransactionAction is the ledger event kind.
type TransactionAction string

const (
	ActionBorrow  TransactionAction = "borrow"
	ActionReturn  TransactionAction = "return"
	ActionLost    TransactionAction = "lost"
	ActionDamaged TransactionAction = "damaged"
)

// TransactionStatus is the lifecycle state of a ledger row.
type TransactionStatus string

const (
	TransactionActive   TransactionStatus = "active"
	TransactionReturned TransactionStatus = "returned"
	// TransactionOverdue is derived at read time and never stored.
	TransactionOverdue TransactionStatus = "overdue"
	TransactionLost    TransactionStatus = "lost"
	TransactionDamaged TransactionStatus = "damaged"
)

// Terminal reports whether no further transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionReturned || s == TransactionLost || s == TransactionDamaged
}

// CanTransitionTo enforces active -> {returned, lost, damaged}.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s != TransactionActive {
		return false
	}
	return next.Terminal()
}

// Transaction is one circulation ledger row.
type Transaction struct {
	ID         int64             `db:"id" json:"id"`
	BookID     int64             `db:"book_id" json:"book_id"`
	StudentID  int64             `db:"student_id" json:"student_id"`
	Action     TransactionAction `db:"action" json:"action"`
	Date       time.Time         `db:"occurred_at" json:"date"`
	DueDate    *time.Time        `db:"due_date" json:"due_date,omitempty"`
	ReturnDate *time.Time        `db:"return_date" json:"return_date,omitempty"`
	Status     TransactionStatus `db:"status" json:"status"`
	Notes      string            `db:"notes" json:"notes,omitempty"`
}

// IsOverdue reports whether an active loan is past its due date.
func (t Transaction) IsOverdue(now time.Time) bool {
	return t.Status == TransactionActive && t.DueDate != nil && t.DueDate.Before(now)
}

// DisplayStatus returns the stored status, replacing active with overdue when past due.
func (t Transaction) DisplayStatus(now time.Time) TransactionStatus {
	if t.IsOverdue(now) {
		return TransactionOverdue
	}
	return t.Status
}

// RiskSnapshot exposes the fields the risk rules inspect.
func (t *Transaction) RiskSnapshot() *RiskSnapshot {
	if t == nil {
		return nil
	}
	snap := &RiskSnapshot{Status: string(t.Status)}
	if t.ReturnDate != nil {
		rd := *t.ReturnDate
		snap.ReturnDate = &rd
	}
	return snap
}

// TransactionDetail is a ledger row denormalised with display names.
type TransactionDetail struct {
	Transaction
	BookTitle     string            `db:"book_title" json:"book_title"`
	StudentName   string            `db:"student_name" json:"student_name"`
	Overdue       bool              `db:"-" json:"overdue"`
	DisplayStatus TransactionStatus `db:"-" json:"display_status"`
}

// Fallback names for rows whose book or student no longer exists.
const (
	UnknownBookTitle   = "Unknown Book"
	UnknownStudentName = "Unknown Student"
)

// TransactionFilter narrows ledger listings.
type TransactionFilter struct {
	Status    TransactionStatus
	Action    TransactionAction
	BookID    int64
	StudentID int64
	Page      int
	PageSize  int
}
