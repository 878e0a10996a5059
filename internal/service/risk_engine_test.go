package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-library-api/internal/models"
)

func bookSnap(quantity, available int, price float64, status models.BookStatus) *models.RiskSnapshot {
	b := &models.Book{Quantity: quantity, AvailableQuantity: available, Price: price, Status: status}
	return b.RiskSnapshot()
}

func TestEvaluateRisk(t *testing.T) {
	returned := time.Now()

	cases := []struct {
		name     string
		action   models.AuditAction
		resource models.ResourceType
		prev     *models.RiskSnapshot
		next     *models.RiskSnapshot
		risky    bool
		level    models.RiskLevel
		notes    string
	}{
		{
			name:     "quantity doubled",
			action:   models.AuditUpdate,
			resource: models.ResourceBook,
			prev:     bookSnap(10, 10, 850, models.BookStatusActive),
			next:     bookSnap(20, 20, 850, models.BookStatusActive),
			risky:    true,
			level:    models.RiskHigh,
			notes:    "Large quantity change detected (100% change)",
		},
		{
			name:     "price halved",
			action:   models.AuditUpdate,
			resource: models.ResourceBook,
			prev:     bookSnap(10, 10, 850, models.BookStatusActive),
			next:     bookSnap(10, 10, 425, models.BookStatusActive),
			risky:    true,
			level:    models.RiskHigh,
			notes:    "Significant price change detected (50% change)",
		},
		{
			name:     "quantity rule wins over status change",
			action:   models.AuditUpdate,
			resource: models.ResourceBook,
			prev:     bookSnap(4, 4, 10, models.BookStatusActive),
			next:     bookSnap(1, 1, 10, models.BookStatusDamaged),
			risky:    true,
			level:    models.RiskHigh,
			notes:    "Large quantity change detected (75% change)",
		},
		{
			name:     "small quantity change is not risky",
			action:   models.AuditUpdate,
			resource: models.ResourceBook,
			prev:     bookSnap(10, 10, 100, models.BookStatusActive),
			next:     bookSnap(14, 14, 120, models.BookStatusActive),
		},
		{
			name:     "zero previous quantity skips percentage rule",
			action:   models.AuditUpdate,
			resource: models.ResourceBook,
			prev:     bookSnap(0, 0, 0, models.BookStatusActive),
			next:     bookSnap(50, 50, 300, models.BookStatusActive),
		},
		{
			name:     "delete with loans",
			action:   models.AuditDelete,
			resource: models.ResourceBook,
			prev:     bookSnap(5, 3, 20, models.BookStatusActive),
			risky:    true,
			level:    models.RiskHigh,
			notes:    "Attempting to delete book with active loans",
		},
		{
			name:     "delete with every copy on shelf",
			action:   models.AuditDelete,
			resource: models.ResourceBook,
			prev:     bookSnap(5, 5, 20, models.BookStatusActive),
		},
		{
			name:     "return without date",
			action:   models.AuditUpdate,
			resource: models.ResourceTransaction,
			prev:     &models.RiskSnapshot{Status: "active"},
			next:     &models.RiskSnapshot{Status: "returned"},
			risky:    true,
			level:    models.RiskMedium,
			notes:    "Transaction marked as returned without return date",
		},
		{
			name:     "return with date",
			action:   models.AuditUpdate,
			resource: models.ResourceTransaction,
			prev:     &models.RiskSnapshot{Status: "active"},
			next:     &models.RiskSnapshot{Status: "returned", ReturnDate: &returned},
		},
		{
			name:     "book status change",
			action:   models.AuditUpdate,
			resource: models.ResourceBook,
			prev:     bookSnap(5, 5, 20, models.BookStatusActive),
			next:     bookSnap(5, 5, 20, models.BookStatusLost),
			risky:    true,
			level:    models.RiskLow,
			notes:    "Book status changed from active to lost",
		},
		{
			name:     "book create",
			action:   models.AuditCreate,
			resource: models.ResourceBook,
			next:     bookSnap(500, 500, 9000, models.BookStatusActive),
		},
		{
			name:     "student update",
			action:   models.AuditUpdate,
			resource: models.ResourceStudent,
			prev:     &models.RiskSnapshot{},
			next:     &models.RiskSnapshot{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateRisk(tc.action, tc.resource, tc.prev, tc.next)
			assert.Equal(t, tc.risky, got.Risky)
			assert.Equal(t, tc.level, got.Level)
			assert.Equal(t, tc.notes, got.Notes)
		})
	}
}
