package dto

import "time"

// CreateTransactionRequest starts a borrow or return protocol. The book is resolved by
// bookId or, failing that, by bookRef (barcode or exact title). The student is resolved by
// studentId or studentCode; it is required for borrows and narrows the loan for returns.
type CreateTransactionRequest struct {
	Action      string     `json:"action" validate:"required,oneof=borrow return"`
	BookID      int64      `json:"bookId" validate:"omitempty,min=1"`
	BookRef     string     `json:"bookRef" validate:"required_without=BookID,max=255"`
	StudentID   int64      `json:"studentId" validate:"omitempty,min=1"`
	StudentCode string     `json:"studentCode" validate:"max=64"`
	DueDate     *time.Time `json:"dueDate"`
	Notes       string     `json:"notes" validate:"max=500"`
}

// UpdateTransactionRequest patches a ledger row. Status may only move an active loan to a
// terminal state.
type UpdateTransactionRequest struct {
	Status     *string    `json:"status" validate:"omitempty,oneof=returned lost damaged"`
	DueDate    *time.Time `json:"dueDate"`
	ReturnDate *time.Time `json:"returnDate"`
	Notes      *string    `json:"notes" validate:"omitempty,max=500"`
}

// LostDamagedRequest closes an active loan as lost or damaged and raises a debt.
// Amount defaults to the book price.
type LostDamagedRequest struct {
	Type   string   `json:"type" validate:"required,oneof=lost damaged"`
	Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
	Notes  string   `json:"notes" validate:"max=500"`
}
