package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditAction is the kind of mutation being audited.
type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// ResourceType names the audited entity.
type ResourceType string

const (
	ResourceBook        ResourceType = "book"
	ResourceStudent     ResourceType = "student"
	ResourceTransaction ResourceType = "transaction"
	ResourceDebt        ResourceType = "debt"
)

// RiskLevel grades an audited mutation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether the level is known.
func (l RiskLevel) Valid() bool {
	return l == RiskLow || l == RiskMedium || l == RiskHigh
}

// RiskSnapshot is the subset of entity state inspected by the risk rules.
// Nil pointers mean the field is absent.
type RiskSnapshot struct {
	Quantity          *int
	AvailableQuantity *int
	Price             *float64
	Status            string
	ReturnDate        *time.Time
}

// Snapshotter is implemented by every audited entity.
type Snapshotter interface {
	RiskSnapshot() *RiskSnapshot
}

// AuditLog is an append-only record of a mutation flagged by the risk engine.
type AuditLog struct {
	ID            int64          `db:"id" json:"id"`
	Timestamp     time.Time      `db:"logged_at" json:"timestamp"`
	Action        AuditAction    `db:"action" json:"action"`
	ResourceType  ResourceType   `db:"resource_type" json:"resource_type"`
	ResourceID    int64          `db:"resource_id" json:"resource_id"`
	UserID        string         `db:"user_id" json:"user_id"`
	PreviousState types.JSONText `db:"previous_state" json:"previous_state,omitempty"`
	NewState      types.JSONText `db:"new_state" json:"new_state,omitempty"`
	RiskLevel     RiskLevel      `db:"risk_level" json:"risk_level"`
	Notes         string         `db:"notes" json:"notes"`
}

// AuditFilter narrows audit listings. Results are newest first.
type AuditFilter struct {
	RiskLevel    RiskLevel
	ResourceType ResourceType
	ResourceID   int64
	Page         int
	PageSize     int
}
