package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

func intPtr(v int) *int { return &v }

func TestBookServiceCreate(t *testing.T) {
	lib := newLibrary()
	ctx := context.Background()

	book, err := lib.books.Create(ctx, dto.CreateBookRequest{
		Barcode: " 001 ", Title: "Strange Happenings", Category: "ENGLISH", Grades: []int{7, 8}, Quantity: 15, Price: 850,
	})
	require.NoError(t, err)
	assert.Equal(t, "001", book.Barcode)
	assert.Equal(t, 15, book.AvailableQuantity)
	assert.Equal(t, models.BookStatusActive, book.Status)

	_, err = lib.books.Create(ctx, dto.CreateBookRequest{Barcode: "001", Title: "Duplicate", Grades: []int{7}, Quantity: 1})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = lib.books.Create(ctx, dto.CreateBookRequest{Barcode: "002", Title: "No grades", Quantity: 1})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = lib.books.Create(ctx, dto.CreateBookRequest{Barcode: "003", Title: "Bad grade", Grades: []int{13}, Quantity: 1})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestBookServiceQuantityChangeIsHighRisk(t *testing.T) {
	lib := newLibrary()
	book := lib.store.seedBook(models.Book{Barcode: "001", Title: "Atlas", Quantity: 10, AvailableQuantity: 10, Price: 500})

	updated, err := lib.books.Update(context.Background(), book.ID, dto.UpdateBookRequest{Quantity: intPtr(20)})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Quantity)
	assert.Equal(t, 20, updated.AvailableQuantity)

	logs := lib.store.auditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.RiskHigh, logs[0].RiskLevel)
	assert.Equal(t, models.AuditUpdate, logs[0].Action)
	assert.Equal(t, book.ID, logs[0].ResourceID)
	assert.Equal(t, DefaultAuditUserID, logs[0].UserID)
	assert.Equal(t, "Large quantity change detected (100% change)", logs[0].Notes)
	assert.Contains(t, string(logs[0].PreviousState), `"quantity":10`)
	assert.Contains(t, string(logs[0].NewState), `"quantity":20`)
}

func TestBookServicePriceChangeIsHighRisk(t *testing.T) {
	lib := newLibrary()
	book := lib.store.seedBook(models.Book{Barcode: "001", Title: "Atlas", Quantity: 10, AvailableQuantity: 10, Price: 850})

	_, err := lib.books.Update(context.Background(), book.ID, dto.UpdateBookRequest{Price: float(425)})
	require.NoError(t, err)

	logs := lib.store.auditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.RiskHigh, logs[0].RiskLevel)
	assert.Equal(t, "Significant price change detected (50% change)", logs[0].Notes)
}

func TestBookServiceDeleteWithLoansIsFlaggedNotBlocked(t *testing.T) {
	lib := newLibrary()
	ctx := context.Background()
	book := lib.store.seedBook(models.Book{Barcode: "001", Title: "Atlas", Quantity: 5, AvailableQuantity: 3})

	require.NoError(t, lib.books.Delete(ctx, book.ID))

	_, err := lib.books.Get(ctx, book.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	logs := lib.store.auditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.RiskHigh, logs[0].RiskLevel)
	assert.Equal(t, models.AuditDelete, logs[0].Action)
	assert.Equal(t, "Attempting to delete book with active loans", logs[0].Notes)
	assert.Equal(t, "null", string(logs[0].NewState))

	assert.ErrorIs(t, lib.books.Delete(ctx, book.ID), appErrors.ErrNotFound)
}

func TestBookServiceUpdateShiftsAndClampsAvailability(t *testing.T) {
	lib := newLibrary()
	ctx := context.Background()
	book := lib.store.seedBook(models.Book{Barcode: "001", Title: "Atlas", Quantity: 10, AvailableQuantity: 4})

	updated, err := lib.books.Update(ctx, book.ID, dto.UpdateBookRequest{Quantity: intPtr(8)})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.AvailableQuantity)

	updated, err = lib.books.Update(ctx, book.ID, dto.UpdateBookRequest{Quantity: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AvailableQuantity)
	assert.Equal(t, 1, updated.Quantity)
}

func TestBookServiceStatusChangeIsLowRisk(t *testing.T) {
	lib := newLibrary()
	book := lib.store.seedBook(models.Book{Barcode: "001", Title: "Atlas", Quantity: 10, AvailableQuantity: 10, Price: 100})

	_, err := lib.books.Update(context.Background(), book.ID, dto.UpdateBookRequest{Status: strPtr("damaged"), Price: float(110)})
	require.NoError(t, err)

	logs := lib.store.auditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.RiskLow, logs[0].RiskLevel)
	assert.Equal(t, "Book status changed from active to damaged", logs[0].Notes)
}

func TestBookServiceUpdateValidation(t *testing.T) {
	lib := newLibrary()
	ctx := context.Background()
	first := lib.store.seedBook(models.Book{Barcode: "001", Title: "Atlas", Quantity: 1, AvailableQuantity: 1})
	lib.store.seedBook(models.Book{Barcode: "002", Title: "Globe", Quantity: 1, AvailableQuantity: 1})

	_, err := lib.books.Update(ctx, first.ID, dto.UpdateBookRequest{Barcode: strPtr("002")})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = lib.books.Update(ctx, first.ID, dto.UpdateBookRequest{Grades: []int{}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = lib.books.Update(ctx, 404, dto.UpdateBookRequest{Title: strPtr("x")})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	unchanged, err := lib.books.Update(ctx, first.ID, dto.UpdateBookRequest{Barcode: strPtr("001"), Title: strPtr("Atlas 2nd ed")})
	require.NoError(t, err)
	assert.Equal(t, "Atlas 2nd ed", unchanged.Title)
	assert.Empty(t, lib.store.auditLogs())
}

func TestBookServiceListPagination(t *testing.T) {
	lib := newLibrary()
	for i := 0; i < 3; i++ {
		lib.store.seedBook(models.Book{Barcode: string(rune('a' + i)), Title: "Book", Quantity: 1, AvailableQuantity: 1})
	}
	books, pagination, err := lib.books.List(context.Background(), models.BookFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, books, 1)
	assert.Equal(t, &models.Pagination{Page: 2, PageSize: 2, TotalCount: 3}, pagination)
}
