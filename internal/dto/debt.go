package dto

// CreateBadDebtRequest raises a debt against a loan. Amount defaults to the book price.
type CreateBadDebtRequest struct {
	TransactionID int64    `json:"transactionId" validate:"required,min=1"`
	Type          string   `json:"type" validate:"required,oneof=lost damaged"`
	Amount        *float64 `json:"amount" validate:"omitempty,gt=0"`
	Notes         string   `json:"notes" validate:"max=500"`
}

// UpdateBadDebtRequest settles or edits a pending debt.
type UpdateBadDebtRequest struct {
	Status *string  `json:"status" validate:"omitempty,oneof=pending paid waived"`
	Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
	Notes  *string  `json:"notes" validate:"omitempty,max=500"`
}
