package service

import (
	"fmt"
	"math"

	"github.com/noah-isme/sma-library-api/internal/models"
)

// Risk thresholds expressed as fractions of the previous value.
const (
	quantityChangeThreshold = 0.50
	priceChangeThreshold    = 0.30
)

// RiskAssessment is the outcome of classifying one mutation.
type RiskAssessment struct {
	Risky bool
	Level models.RiskLevel
	Notes string
}

type riskRule func(action models.AuditAction, resource models.ResourceType, prev, next *models.RiskSnapshot) (RiskAssessment, bool)

// Rules are evaluated in order; the first match wins.
var riskRules = []riskRule{
	quantityChangeRule,
	priceChangeRule,
	deleteWithLoansRule,
	returnWithoutDateRule,
	bookStatusChangeRule,
}

// EvaluateRisk classifies a mutation from its before and after snapshots.
// Absent snapshots are passed as nil. It has no side effects.
func EvaluateRisk(action models.AuditAction, resource models.ResourceType, prev, next *models.RiskSnapshot) RiskAssessment {
	for _, rule := range riskRules {
		if result, ok := rule(action, resource, prev, next); ok {
			return result
		}
	}
	return RiskAssessment{}
}

func quantityChangeRule(_ models.AuditAction, resource models.ResourceType, prev, next *models.RiskSnapshot) (RiskAssessment, bool) {
	if resource != models.ResourceBook || prev == nil || next == nil || prev.Quantity == nil || next.Quantity == nil {
		return RiskAssessment{}, false
	}
	change, ok := relativeChange(float64(*prev.Quantity), float64(*next.Quantity))
	if !ok || change < quantityChangeThreshold {
		return RiskAssessment{}, false
	}
	return RiskAssessment{
		Risky: true,
		Level: models.RiskHigh,
		Notes: fmt.Sprintf("Large quantity change detected (%.0f%% change)", change*100),
	}, true
}

func priceChangeRule(_ models.AuditAction, resource models.ResourceType, prev, next *models.RiskSnapshot) (RiskAssessment, bool) {
	if resource != models.ResourceBook || prev == nil || next == nil || prev.Price == nil || next.Price == nil {
		return RiskAssessment{}, false
	}
	change, ok := relativeChange(*prev.Price, *next.Price)
	if !ok || change < priceChangeThreshold {
		return RiskAssessment{}, false
	}
	return RiskAssessment{
		Risky: true,
		Level: models.RiskHigh,
		Notes: fmt.Sprintf("Significant price change detected (%.0f%% change)", change*100),
	}, true
}

func deleteWithLoansRule(action models.AuditAction, resource models.ResourceType, prev, _ *models.RiskSnapshot) (RiskAssessment, bool) {
	if resource != models.ResourceBook || action != models.AuditDelete || prev == nil {
		return RiskAssessment{}, false
	}
	if prev.AvailableQuantity == nil || prev.Quantity == nil || *prev.AvailableQuantity == *prev.Quantity {
		return RiskAssessment{}, false
	}
	return RiskAssessment{
		Risky: true,
		Level: models.RiskHigh,
		Notes: "Attempting to delete book with active loans",
	}, true
}

func returnWithoutDateRule(action models.AuditAction, resource models.ResourceType, prev, next *models.RiskSnapshot) (RiskAssessment, bool) {
	if resource != models.ResourceTransaction || action != models.AuditUpdate || prev == nil || next == nil {
		return RiskAssessment{}, false
	}
	if prev.Status != string(models.TransactionActive) || next.Status != string(models.TransactionReturned) || next.ReturnDate != nil {
		return RiskAssessment{}, false
	}
	return RiskAssessment{
		Risky: true,
		Level: models.RiskMedium,
		Notes: "Transaction marked as returned without return date",
	}, true
}

func bookStatusChangeRule(action models.AuditAction, resource models.ResourceType, prev, next *models.RiskSnapshot) (RiskAssessment, bool) {
	if resource != models.ResourceBook || action != models.AuditUpdate || prev == nil || next == nil || prev.Status == next.Status {
		return RiskAssessment{}, false
	}
	return RiskAssessment{
		Risky: true,
		Level: models.RiskLow,
		Notes: fmt.Sprintf("Book status changed from %s to %s", prev.Status, next.Status),
	}, true
}

// relativeChange returns |next-prev|/prev; it is undefined when prev is not positive.
func relativeChange(prev, next float64) (float64, bool) {
	if prev <= 0 {
		return 0, false
	}
	return math.Abs(next-prev) / prev, true
}
