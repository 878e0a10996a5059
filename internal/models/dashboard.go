package models

import "time"

// DashboardSummary aggregates circulation figures for the librarian home screen.
type DashboardSummary struct {
	TotalTitles       int       `json:"total_titles"`
	TotalCopies       int       `json:"total_copies"`
	AvailableCopies   int       `json:"available_copies"`
	BorrowedCopies    int       `json:"borrowed_copies"`
	ActiveLoans       int       `json:"active_loans"`
	OverdueLoans      int       `json:"overdue_loans"`
	PendingDebts      int       `json:"pending_debts"`
	PendingDebtAmount float64   `json:"pending_debt_amount"`
	TopBooks          []TopBook `json:"top_books"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// TopBook ranks a title by number of borrow events.
type TopBook struct {
	BookID  int64  `db:"book_id" json:"book_id"`
	Title   string `db:"title" json:"title"`
	Borrows int    `db:"borrows" json:"borrows"`
}

// CatalogTotals are the raw sums behind the dashboard.
type CatalogTotals struct {
	Titles    int `db:"titles"`
	Copies    int `db:"copies"`
	Available int `db:"available"`
}

// DebtTotals summarise outstanding debts.
type DebtTotals struct {
	Count  int     `db:"count"`
	Amount float64 `db:"amount"`
}
