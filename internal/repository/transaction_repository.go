package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-library-api/internal/models"
)

const transactionColumns = "t.id, t.book_id, t.student_id, t.action, t.occurred_at, t.due_date, t.return_date, t.status, COALESCE(t.notes, '') AS notes"

// TransactionRepository persists the circulation ledger.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository constructs a TransactionRepository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// List returns ledger rows newest first with book titles and student names resolved.
func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionDetail, int, error) {
	q := conn(ctx, r.db)
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Status != "" {
		conditions = append(conditions, "t.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Action != "" {
		conditions = append(conditions, "t.action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.BookID > 0 {
		conditions = append(conditions, "t.book_id = ?")
		args = append(args, filter.BookID)
	}
	if filter.StudentID > 0 {
		conditions = append(conditions, "t.student_id = ?")
		args = append(args, filter.StudentID)
	}
	where := strings.Join(conditions, " AND ")
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s, COALESCE(b.title, ?) AS book_title, COALESCE(s.name, ?) AS student_name
        FROM transactions t
        LEFT JOIN books b ON b.id = t.book_id
        LEFT JOIN students s ON s.id = t.student_id
        WHERE %s ORDER BY t.occurred_at DESC, t.id DESC LIMIT %d OFFSET %d`, transactionColumns, where, size, offset)
	listArgs := append([]interface{}{models.UnknownBookTitle, models.UnknownStudentName}, args...)

	var rows []models.TransactionDetail
	if err := q.SelectContext(ctx, &rows, q.Rebind(query), listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	var total int
	if err := q.GetContext(ctx, &total, q.Rebind("SELECT COUNT(*) FROM transactions t WHERE "+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	return rows, total, nil
}

// FindByID fetches a single ledger row.
func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*models.Transaction, error) {
	q := conn(ctx, r.db)
	var txn models.Transaction
	if err := q.GetContext(ctx, &txn, q.Rebind("SELECT "+transactionColumns+" FROM transactions t WHERE t.id = ?"), id); err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindActiveLoan returns the oldest active loan for a book, optionally for one student.
func (r *TransactionRepository) FindActiveLoan(ctx context.Context, bookID, studentID int64) (*models.Transaction, error) {
	q := conn(ctx, r.db)
	query := "SELECT " + transactionColumns + " FROM transactions t WHERE t.book_id = ? AND t.status = ?"
	args := []interface{}{bookID, string(models.TransactionActive)}
	if studentID > 0 {
		query += " AND t.student_id = ?"
		args = append(args, studentID)
	}
	query += " ORDER BY t.occurred_at ASC, t.id ASC LIMIT 1"

	var txn models.Transaction
	if err := q.GetContext(ctx, &txn, q.Rebind(query), args...); err != nil {
		return nil, err
	}
	return &txn, nil
}

// Create appends a ledger row.
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	const query = `INSERT INTO transactions (book_id, student_id, action, occurred_at, due_date, return_date, status, notes)
        VALUES (:book_id, :student_id, :action, :occurred_at, :due_date, :return_date, :status, :notes) RETURNING id`
	id, err := insertReturningID(ctx, conn(ctx, r.db), query, txn)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	txn.ID = id
	return nil
}

// Update rewrites the mutable columns of a ledger row.
func (r *TransactionRepository) Update(ctx context.Context, txn *models.Transaction) error {
	const query = `UPDATE transactions SET action = :action, due_date = :due_date, return_date = :return_date,
        status = :status, notes = :notes WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, txn)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountActive returns the number of open loans and how many of them are past due at now.
func (r *TransactionRepository) CountActive(ctx context.Context, now time.Time) (int, int, error) {
	q := conn(ctx, r.db)
	var counts struct {
		Active  int `db:"active"`
		Overdue int `db:"overdue"`
	}
	query := `SELECT COUNT(*) AS active,
        COALESCE(SUM(CASE WHEN due_date IS NOT NULL AND due_date < ? THEN 1 ELSE 0 END), 0) AS overdue
        FROM transactions WHERE status = ?`
	if err := q.GetContext(ctx, &counts, q.Rebind(query), now, string(models.TransactionActive)); err != nil {
		return 0, 0, fmt.Errorf("count active loans: %w", err)
	}
	return counts.Active, counts.Overdue, nil
}

// TopBorrowed ranks books by loans opened. Return rows are excluded; closed loans keep counting.
func (r *TransactionRepository) TopBorrowed(ctx context.Context, limit int) ([]models.TopBook, error) {
	q := conn(ctx, r.db)
	query := `SELECT t.book_id, COALESCE(b.title, ?) AS title, COUNT(*) AS borrows
        FROM transactions t LEFT JOIN books b ON b.id = t.book_id
        WHERE t.action <> ?
        GROUP BY t.book_id, b.title
        ORDER BY borrows DESC, t.book_id ASC LIMIT ?`
	books := []models.TopBook{}
	if err := q.SelectContext(ctx, &books, q.Rebind(query), models.UnknownBookTitle, string(models.ActionReturn), limit); err != nil {
		return nil, fmt.Errorf("top borrowed: %w", err)
	}
	return books, nil
}
