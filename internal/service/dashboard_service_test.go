package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
)

type mapCache struct {
	values map[string][]byte
	sets   int
}

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) bool {
	raw, ok := c.values[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) {
	raw, _ := json.Marshal(value)
	c.values[key] = raw
	c.sets++
}

func TestDashboardServiceSummary(t *testing.T) {
	lib := newLibrary()
	ctx := context.Background()
	atlas := lib.store.seedBook(models.Book{Barcode: "001", Title: "Atlas", Quantity: 3, AvailableQuantity: 3, Price: 200})
	lib.store.seedBook(models.Book{Barcode: "002", Title: "Globe", Quantity: 2, AvailableQuantity: 2})
	student := lib.store.seedStudent(models.Student{StudentID: "S1", Name: "Amina"})

	_, err := lib.circulation.Borrow(ctx, dto.CreateTransactionRequest{BookID: atlas.ID, StudentID: student.ID})
	require.NoError(t, err)
	loan, err := lib.circulation.Borrow(ctx, dto.CreateTransactionRequest{BookID: atlas.ID, StudentID: student.ID})
	require.NoError(t, err)
	_, _, err = lib.circulation.MarkLostOrDamaged(ctx, loan.ID, dto.LostDamagedRequest{Type: "lost"})
	require.NoError(t, err)

	cache := &mapCache{values: map[string][]byte{}}
	svc := NewDashboardService(DashboardServiceParams{
		Books:  memBooks{lib.store},
		Ledger: memLedger{lib.store},
		Debts:  memDebts{lib.store},
		Cache:  cache,
	})
	svc.now = func() time.Time { return lib.now.Add(30 * 24 * time.Hour) }

	summary, cached, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, summary.TotalTitles)
	assert.Equal(t, 5, summary.TotalCopies)
	assert.Equal(t, 3, summary.AvailableCopies)
	assert.Equal(t, 2, summary.BorrowedCopies)
	assert.Equal(t, 1, summary.ActiveLoans)
	assert.Equal(t, 1, summary.OverdueLoans)
	assert.Equal(t, 1, summary.PendingDebts)
	assert.Equal(t, 200.0, summary.PendingDebtAmount)
	require.Len(t, summary.TopBooks, 1)
	assert.Equal(t, models.TopBook{BookID: atlas.ID, Title: "Atlas", Borrows: 2}, summary.TopBooks[0])

	again, cached, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, summary.TotalCopies, again.TotalCopies)
	assert.Equal(t, 1, cache.sets)
}

func TestDashboardServiceWithoutCache(t *testing.T) {
	lib := newLibrary()
	svc := NewDashboardService(DashboardServiceParams{Books: memBooks{lib.store}, Ledger: memLedger{lib.store}, Debts: memDebts{lib.store}})

	summary, cached, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Zero(t, summary.TotalTitles)
	assert.NotNil(t, summary.TopBooks)
}
