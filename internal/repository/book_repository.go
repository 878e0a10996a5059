package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-library-api/internal/models"
)

const bookColumns = `b.id, b.barcode, b.title, COALESCE(b.category, '') AS category, COALESCE(b.subject, '') AS subject,
        COALESCE(b.quantity, 0) AS quantity, b.available_quantity, COALESCE(b.price, 0) AS price, COALESCE(b.status, 'active') AS status`

// BookRepository manages persistence for catalog entries and their grade index.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs a BookRepository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// List returns books matching the filter ordered by title.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	q := conn(ctx, r.db)
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Search != "" {
		conditions = append(conditions, "(LOWER(b.title) LIKE ? OR LOWER(b.barcode) LIKE ?)")
		like := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, like, like)
	}
	if filter.Category != "" {
		conditions = append(conditions, "b.category = ?")
		args = append(args, filter.Category)
	}
	if filter.Subject != "" {
		conditions = append(conditions, "b.subject = ?")
		args = append(args, filter.Subject)
	}
	if filter.Grade > 0 {
		conditions = append(conditions, "b.id IN (SELECT book_id FROM book_grades WHERE grade = ?)")
		args = append(args, filter.Grade)
	}
	if filter.Status != "" {
		conditions = append(conditions, "b.status = ?")
		args = append(args, string(filter.Status))
	}
	where := strings.Join(conditions, " AND ")
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM books b WHERE %s ORDER BY b.title ASC, b.id ASC LIMIT %d OFFSET %d", bookColumns, where, size, offset)
	var books []models.Book
	if err := q.SelectContext(ctx, &books, q.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	var total int
	if err := q.GetContext(ctx, &total, q.Rebind("SELECT COUNT(*) FROM books b WHERE "+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	if err := r.attachGrades(ctx, q, books); err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// FindByID fetches a book with its grades.
func (r *BookRepository) FindByID(ctx context.Context, id int64) (*models.Book, error) {
	q := conn(ctx, r.db)
	var book models.Book
	if err := q.GetContext(ctx, &book, q.Rebind("SELECT "+bookColumns+" FROM books b WHERE b.id = ?"), id); err != nil {
		return nil, err
	}
	grades, err := r.gradesFor(ctx, q, book.ID)
	if err != nil {
		return nil, err
	}
	book.Grades = grades
	return &book, nil
}

// FindByReference resolves a book by exact barcode, falling back to a case-insensitive title match.
func (r *BookRepository) FindByReference(ctx context.Context, ref string) (*models.Book, error) {
	q := conn(ctx, r.db)
	query := "SELECT " + bookColumns + ` FROM books b WHERE b.barcode = ? OR LOWER(b.title) = LOWER(?)
        ORDER BY CASE WHEN b.barcode = ? THEN 0 ELSE 1 END, b.id ASC LIMIT 1`
	var book models.Book
	if err := q.GetContext(ctx, &book, q.Rebind(query), ref, ref, ref); err != nil {
		return nil, err
	}
	grades, err := r.gradesFor(ctx, q, book.ID)
	if err != nil {
		return nil, err
	}
	book.Grades = grades
	return &book, nil
}

// ExistsByBarcode checks if a barcode is taken, optionally excluding a book ID.
func (r *BookRepository) ExistsByBarcode(ctx context.Context, barcode string, excludeID int64) (bool, error) {
	q := conn(ctx, r.db)
	query := "SELECT 1 FROM books WHERE barcode = ?"
	args := []interface{}{barcode}
	if excludeID > 0 {
		query += " AND id <> ?"
		args = append(args, excludeID)
	}
	var exists int
	if err := q.GetContext(ctx, &exists, q.Rebind(query+" LIMIT 1"), args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check barcode: %w", err)
	}
	return true, nil
}

// Create inserts a book and its grades.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	q := conn(ctx, r.db)
	const query = `INSERT INTO books (barcode, title, category, subject, quantity, available_quantity, price, status)
        VALUES (:barcode, :title, :category, :subject, :quantity, :available_quantity, :price, :status) RETURNING id`
	id, err := insertReturningID(ctx, q, query, book)
	if err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	book.ID = id
	return r.replaceGrades(ctx, q, book.ID, book.Grades)
}

// Update persists every mutable column and rewrites the grade set.
func (r *BookRepository) Update(ctx context.Context, book *models.Book) error {
	q := conn(ctx, r.db)
	const query = `UPDATE books SET barcode = :barcode, title = :title, category = :category, subject = :subject,
        quantity = :quantity, available_quantity = :available_quantity, price = :price, status = :status WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, q, query, book)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return r.replaceGrades(ctx, q, book.ID, book.Grades)
}

// Delete removes a book and its grade index rows. Ledger history is kept.
func (r *BookRepository) Delete(ctx context.Context, id int64) error {
	q := conn(ctx, r.db)
	if _, err := q.ExecContext(ctx, q.Rebind("DELETE FROM book_grades WHERE book_id = ?"), id); err != nil {
		return fmt.Errorf("delete book grades: %w", err)
	}
	res, err := q.ExecContext(ctx, q.Rebind("DELETE FROM books WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AdjustAvailability applies delta to the available count clamped to [0, quantity] and
// returns the stored value.
func (r *BookRepository) AdjustAvailability(ctx context.Context, id int64, delta int) (int, error) {
	q := conn(ctx, r.db)
	const query = `UPDATE books SET available_quantity = CASE
            WHEN available_quantity + ? < 0 THEN 0
            WHEN available_quantity + ? > quantity THEN quantity
            ELSE available_quantity + ?
        END
        WHERE id = ? RETURNING available_quantity`
	var available int
	if err := q.QueryRowxContext(ctx, q.Rebind(query), delta, delta, delta, id).Scan(&available); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("adjust availability: %w", err)
	}
	return available, nil
}

// Totals sums catalog copies for the dashboard.
func (r *BookRepository) Totals(ctx context.Context) (models.CatalogTotals, error) {
	q := conn(ctx, r.db)
	var totals models.CatalogTotals
	const query = `SELECT COUNT(*) AS titles, COALESCE(SUM(quantity), 0) AS copies, COALESCE(SUM(available_quantity), 0) AS available FROM books`
	if err := q.GetContext(ctx, &totals, query); err != nil {
		return totals, fmt.Errorf("catalog totals: %w", err)
	}
	return totals, nil
}

func (r *BookRepository) gradesFor(ctx context.Context, q queryer, bookID int64) ([]int, error) {
	grades := []int{}
	if err := q.SelectContext(ctx, &grades, q.Rebind("SELECT grade FROM book_grades WHERE book_id = ? ORDER BY grade"), bookID); err != nil {
		return nil, fmt.Errorf("load grades: %w", err)
	}
	return grades, nil
}

func (r *BookRepository) attachGrades(ctx context.Context, q queryer, books []models.Book) error {
	if len(books) == 0 {
		return nil
	}
	ids := make([]int64, len(books))
	for i := range books {
		ids[i] = books[i].ID
		books[i].Grades = []int{}
	}
	query, args, err := sqlx.In("SELECT book_id, grade FROM book_grades WHERE book_id IN (?) ORDER BY book_id, grade", ids)
	if err != nil {
		return fmt.Errorf("build grades query: %w", err)
	}
	var rows []struct {
		BookID int64 `db:"book_id"`
		Grade  int   `db:"grade"`
	}
	if err := q.SelectContext(ctx, &rows, q.Rebind(query), args...); err != nil {
		return fmt.Errorf("load grades: %w", err)
	}
	index := make(map[int64]int, len(books))
	for i := range books {
		index[books[i].ID] = i
	}
	for _, row := range rows {
		if i, ok := index[row.BookID]; ok {
			books[i].Grades = append(books[i].Grades, row.Grade)
		}
	}
	return nil
}

func (r *BookRepository) replaceGrades(ctx context.Context, q queryer, bookID int64, grades []int) error {
	if _, err := q.ExecContext(ctx, q.Rebind("DELETE FROM book_grades WHERE book_id = ?"), bookID); err != nil {
		return fmt.Errorf("clear grades: %w", err)
	}
	for _, grade := range normalizeGrades(grades) {
		if _, err := q.ExecContext(ctx, q.Rebind("INSERT INTO book_grades (book_id, grade) VALUES (?, ?)"), bookID, grade); err != nil {
			return fmt.Errorf("insert grade: %w", err)
		}
	}
	return nil
}

func normalizeGrades(grades []int) []int {
	seen := make(map[int]struct{}, len(grades))
	out := make([]int, 0, len(grades))
	for _, g := range grades {
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}
