package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-library-api/internal/models"
)

const debtColumns = "d.id, d.transaction_id, d.book_id, d.student_id, d.amount, d.charged_at, d.status, d.type, COALESCE(d.notes, '') AS notes, d.paid_date"

// BadDebtRepository persists debts raised by lost or damaged loans.
type BadDebtRepository struct {
	db *sqlx.DB
}

// NewBadDebtRepository constructs a BadDebtRepository.
func NewBadDebtRepository(db *sqlx.DB) *BadDebtRepository {
	return &BadDebtRepository{db: db}
}

// List returns debts newest first.
func (r *BadDebtRepository) List(ctx context.Context, filter models.BadDebtFilter) ([]models.BadDebtDetail, int, error) {
	q := conn(ctx, r.db)
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != "" {
		conditions = append(conditions, "d.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		conditions = append(conditions, "d.type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.StudentID > 0 {
		conditions = append(conditions, "d.student_id = ?")
		args = append(args, filter.StudentID)
	}
	where := strings.Join(conditions, " AND ")
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s, COALESCE(b.title, ?) AS book_title, COALESCE(s.name, ?) AS student_name
        FROM bad_debts d
        LEFT JOIN books b ON b.id = d.book_id
        LEFT JOIN students s ON s.id = d.student_id
        WHERE %s ORDER BY d.charged_at DESC, d.id DESC LIMIT %d OFFSET %d`, debtColumns, where, size, offset)
	listArgs := append([]interface{}{models.UnknownBookTitle, models.UnknownStudentName}, args...)

	var debts []models.BadDebtDetail
	if err := q.SelectContext(ctx, &debts, q.Rebind(query), listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list bad debts: %w", err)
	}
	var total int
	if err := q.GetContext(ctx, &total, q.Rebind("SELECT COUNT(*) FROM bad_debts d WHERE "+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count bad debts: %w", err)
	}
	return debts, total, nil
}

// FindByID fetches a debt.
func (r *BadDebtRepository) FindByID(ctx context.Context, id int64) (*models.BadDebt, error) {
	q := conn(ctx, r.db)
	var debt models.BadDebt
	if err := q.GetContext(ctx, &debt, q.Rebind("SELECT "+debtColumns+" FROM bad_debts d WHERE d.id = ?"), id); err != nil {
		return nil, err
	}
	return &debt, nil
}

// ExistsForTransaction reports whether a loan already produced a debt.
func (r *BadDebtRepository) ExistsForTransaction(ctx context.Context, transactionID int64) (bool, error) {
	q := conn(ctx, r.db)
	var exists int
	if err := q.GetContext(ctx, &exists, q.Rebind("SELECT 1 FROM bad_debts WHERE transaction_id = ? LIMIT 1"), transactionID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check debt: %w", err)
	}
	return true, nil
}

// Create inserts a debt.
func (r *BadDebtRepository) Create(ctx context.Context, debt *models.BadDebt) error {
	const query = `INSERT INTO bad_debts (transaction_id, book_id, student_id, amount, charged_at, status, type, notes, paid_date)
        VALUES (:transaction_id, :book_id, :student_id, :amount, :charged_at, :status, :type, :notes, :paid_date) RETURNING id`
	id, err := insertReturningID(ctx, conn(ctx, r.db), query, debt)
	if err != nil {
		return fmt.Errorf("create bad debt: %w", err)
	}
	debt.ID = id
	return nil
}

// Update rewrites the settlement columns.
func (r *BadDebtRepository) Update(ctx context.Context, debt *models.BadDebt) error {
	const query = `UPDATE bad_debts SET amount = :amount, status = :status, notes = :notes, paid_date = :paid_date WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, debt)
	if err != nil {
		return fmt.Errorf("update bad debt: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PendingTotals sums unpaid debts.
func (r *BadDebtRepository) PendingTotals(ctx context.Context) (models.DebtTotals, error) {
	q := conn(ctx, r.db)
	var totals models.DebtTotals
	query := "SELECT COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount FROM bad_debts WHERE status = ?"
	if err := q.GetContext(ctx, &totals, q.Rebind(query), string(models.DebtPending)); err != nil {
		return totals, fmt.Errorf("pending debt totals: %w", err)
	}
	return totals, nil
}
