package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/pkg/config"
	"github.com/noah-isme/sma-library-api/pkg/database"
)

func openSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "library.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func migratedSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	db := openSQLite(t)
	require.NoError(t, NewMigrator(db, nil).Up(context.Background()))
	return db
}

func TestMigratorUpgradesLegacyCatalog(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	migrator := NewMigrator(db, nil)

	require.NoError(t, migrator.MigrateTo(ctx, 1))
	version, err := migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	db.MustExec(`INSERT INTO books (barcode, title, category, grade, quantity_purchased, quantity_donated, available_quantity)
		VALUES ('001', 'Strange Happenings', 'English', '7th', 3, 2, 9)`)
	db.MustExec(`INSERT INTO books (barcode, title, category, grade, quantity_purchased, quantity_donated, available_quantity)
		VALUES ('002', 'Blank Grade', '', 'unknown', NULL, 4, -2)`)

	require.NoError(t, migrator.Up(ctx))
	version, err = migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestSchemaVersion, version)

	books := NewBookRepository(db)
	first, err := books.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Quantity)
	assert.Equal(t, 5, first.AvailableQuantity)
	assert.Equal(t, "English", first.Subject)
	assert.Equal(t, []int{7}, first.Grades)
	assert.Equal(t, models.BookStatusActive, first.Status)

	second, err := books.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, second.Quantity)
	assert.Equal(t, 0, second.AvailableQuantity)
	assert.Empty(t, second.Grades)

	categories, err := NewTaxonomyRepository(db).List(ctx, models.TaxonomyCategory)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "English", categories[0].Name)

	blank := &models.Book{Barcode: "003", Title: "Field Guide", Category: "English", Grades: []int{8}, Quantity: 1, AvailableQuantity: 1, Status: models.BookStatusActive}
	require.NoError(t, books.Create(ctx, blank))

	require.NoError(t, migrator.Replay(ctx))
	replayed, err := books.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, replayed)

	untouched, err := books.FindByID(ctx, blank.ID)
	require.NoError(t, err)
	assert.Empty(t, untouched.Subject)
	assert.Equal(t, 1, untouched.Quantity)

	entries, err := NewTaxonomyRepository(db).List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	var recorded int
	require.NoError(t, db.Get(&recorded, "SELECT COUNT(*) FROM schema_migrations"))
	assert.Equal(t, LatestSchemaVersion, recorded)
}

func TestMigratorRejectsUnknownTarget(t *testing.T) {
	migrator := NewMigrator(openSQLite(t), nil)
	assert.Error(t, migrator.MigrateTo(context.Background(), LatestSchemaVersion+1))
	assert.Error(t, migrator.MigrateTo(context.Background(), 0))
}

func TestParseLegacyGrade(t *testing.T) {
	assert.Equal(t, []int{7}, ParseLegacyGrade("7th"))
	assert.Equal(t, []int{10}, ParseLegacyGrade(" 10 A"))
	assert.Nil(t, ParseLegacyGrade("Form one"))
	assert.Nil(t, ParseLegacyGrade("13"))
}

func TestBookRepositoryOnSQLite(t *testing.T) {
	ctx := context.Background()
	repo := NewBookRepository(migratedSQLite(t))

	atlas := &models.Book{Barcode: "001", Title: "Atlas", Category: "Geography", Grades: []int{9, 7, 9}, Quantity: 2, AvailableQuantity: 2, Price: 12.5, Status: models.BookStatusActive}
	require.NoError(t, repo.Create(ctx, atlas))
	require.NoError(t, repo.Create(ctx, &models.Book{Barcode: "002", Title: "Biology", Grades: []int{8}, Quantity: 1, AvailableQuantity: 1, Status: models.BookStatusActive}))

	byRef, err := repo.FindByReference(ctx, "atlas")
	require.NoError(t, err)
	assert.Equal(t, atlas.ID, byRef.ID)
	assert.Equal(t, []int{7, 9}, byRef.Grades)

	_, err = repo.FindByReference(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	seventh, total, err := repo.List(ctx, models.BookFilter{Grade: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, seventh, 1)
	assert.Equal(t, "Atlas", seventh[0].Title)

	taken, err := repo.ExistsByBarcode(ctx, "001", 0)
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = repo.ExistsByBarcode(ctx, "001", atlas.ID)
	require.NoError(t, err)
	assert.False(t, taken)

	available, err := repo.AdjustAvailability(ctx, atlas.ID, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
	available, err = repo.AdjustAvailability(ctx, atlas.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
	_, err = repo.AdjustAvailability(ctx, 999, 1)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	totals, err := repo.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CatalogTotals{Titles: 2, Copies: 3, Available: 3}, totals)

	require.NoError(t, repo.Delete(ctx, atlas.ID))
	assert.ErrorIs(t, repo.Delete(ctx, atlas.ID), sql.ErrNoRows)
	assert.ErrorIs(t, repo.Update(ctx, atlas), sql.ErrNoRows)
}

func TestLedgerRoundTripOnSQLite(t *testing.T) {
	ctx := context.Background()
	db := migratedSQLite(t)
	books := NewBookRepository(db)
	students := NewStudentRepository(db)
	ledger := NewTransactionRepository(db)
	debts := NewBadDebtRepository(db)
	tx := NewTransactor(db)

	book := &models.Book{Barcode: "001", Title: "Atlas", Grades: []int{7}, Quantity: 2, AvailableQuantity: 2, Price: 300, Status: models.BookStatusActive}
	require.NoError(t, books.Create(ctx, book))
	student := &models.Student{StudentID: "REG-1", Name: "Amina"}
	require.NoError(t, students.Create(ctx, student))

	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	due := now.Add(14 * 24 * time.Hour)
	loan := &models.Transaction{BookID: book.ID, StudentID: student.ID, Action: models.ActionBorrow, Date: now, DueDate: &due, Status: models.TransactionActive}
	require.NoError(t, tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := ledger.Create(ctx, loan); err != nil {
			return err
		}
		_, err := books.AdjustAvailability(ctx, book.ID, -1)
		return err
	}))

	stored, err := books.FindByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AvailableQuantity)

	active, err := ledger.FindActiveLoan(ctx, book.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, active.ID)
	require.NotNil(t, active.DueDate)
	assert.True(t, due.Equal(*active.DueDate))

	activeCount, overdue, err := ledger.CountActive(ctx, due.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, activeCount)
	assert.Equal(t, 1, overdue)

	debt := &models.BadDebt{TransactionID: loan.ID, BookID: book.ID, StudentID: student.ID, Amount: 300, Date: now, Status: models.DebtPending, Type: models.DebtLost}
	require.NoError(t, debts.Create(ctx, debt))
	exists, err := debts.ExistsForTransaction(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Error(t, debts.Create(ctx, &models.BadDebt{TransactionID: loan.ID, BookID: book.ID, StudentID: student.ID, Amount: 1, Date: now, Status: models.DebtPending, Type: models.DebtLost}))

	pending, err := debts.PendingTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DebtTotals{Count: 1, Amount: 300}, pending)

	require.NoError(t, students.Delete(ctx, student.ID))
	rows, total, err := ledger.List(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Atlas", rows[0].BookTitle)
	assert.Equal(t, models.UnknownStudentName, rows[0].StudentName)

	top, err := ledger.TopBorrowed(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []models.TopBook{{BookID: book.ID, Title: "Atlas", Borrows: 1}}, top)

	require.NoError(t, books.Delete(ctx, book.ID))
	rows, total, err = ledger.List(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, models.UnknownBookTitle, rows[0].BookTitle)
	kept, err := debts.FindByID(ctx, debt.ID)
	require.NoError(t, err)
	assert.Equal(t, book.ID, kept.BookID)
}

func TestTransactorRollsBackOnSQLite(t *testing.T) {
	ctx := context.Background()
	db := migratedSQLite(t)
	books := NewBookRepository(db)
	ledger := NewTransactionRepository(db)
	tx := NewTransactor(db)

	book := &models.Book{Barcode: "001", Title: "Atlas", Grades: []int{7}, Quantity: 1, AvailableQuantity: 1, Status: models.BookStatusActive}
	require.NoError(t, books.Create(ctx, book))

	boom := errors.New("boom")
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		loan := &models.Transaction{BookID: book.ID, StudentID: 1, Action: models.ActionBorrow, Date: time.Now().UTC(), Status: models.TransactionActive}
		if err := ledger.Create(ctx, loan); err != nil {
			return err
		}
		if _, err := books.AdjustAvailability(ctx, book.ID, -1); err != nil {
			return err
		}
		return tx.WithinTx(ctx, func(context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	_, total, err := ledger.List(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	stored, err := books.FindByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AvailableQuantity)
}

func TestAuditAndTaxonomyOnSQLite(t *testing.T) {
	ctx := context.Background()
	db := migratedSQLite(t)
	audit := NewAuditRepository(db)
	taxonomy := NewTaxonomyRepository(db)

	base := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	for i, level := range []models.RiskLevel{models.RiskHigh, models.RiskLow} {
		require.NoError(t, audit.Create(ctx, &models.AuditLog{
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			Action:        models.AuditUpdate,
			ResourceType:  models.ResourceBook,
			ResourceID:    int64(i + 1),
			UserID:        "librarian",
			PreviousState: types.JSONText(`{"quantity":10}`),
			NewState:      types.JSONText(`{"quantity":20}`),
			RiskLevel:     level,
		}))
	}
	logs, total, err := audit.List(ctx, models.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, logs, 2)
	assert.Equal(t, models.RiskLow, logs[0].RiskLevel)
	assert.JSONEq(t, `{"quantity":10}`, string(logs[1].PreviousState))

	high, total, err := audit.List(ctx, models.AuditFilter{RiskLevel: models.RiskHigh})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, int64(1), high[0].ResourceID)

	entry := &models.TaxonomyEntry{Type: models.TaxonomySubject, Name: "Physics", CreatedAt: base}
	require.NoError(t, taxonomy.Create(ctx, entry))
	exists, err := taxonomy.Exists(ctx, models.TaxonomySubject, "Physics")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = taxonomy.Exists(ctx, models.TaxonomyCategory, "Physics")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, taxonomy.Delete(ctx, entry.ID))
	assert.ErrorIs(t, taxonomy.Delete(ctx, entry.ID), sql.ErrNoRows)
}
