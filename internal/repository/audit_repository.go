package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-library-api/internal/models"
)

// AuditRepository stores append-only audit logs.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit log entry.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	const query = `INSERT INTO audit_logs (logged_at, action, resource_type, resource_id, user_id, previous_state, new_state, risk_level, notes)
        VALUES (:logged_at, :action, :resource_type, :resource_id, :user_id, :previous_state, :new_state, :risk_level, :notes) RETURNING id`
	id, err := insertReturningID(ctx, conn(ctx, r.db), query, log)
	if err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	log.ID = id
	return nil
}

// List returns audit entries newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	q := conn(ctx, r.db)
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.RiskLevel != "" {
		conditions = append(conditions, "risk_level = ?")
		args = append(args, string(filter.RiskLevel))
	}
	if filter.ResourceType != "" {
		conditions = append(conditions, "resource_type = ?")
		args = append(args, string(filter.ResourceType))
	}
	if filter.ResourceID > 0 {
		conditions = append(conditions, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	where := strings.Join(conditions, " AND ")
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT id, logged_at, action, resource_type, resource_id, user_id, previous_state, new_state, risk_level, COALESCE(notes, '') AS notes
        FROM audit_logs WHERE %s ORDER BY logged_at DESC, id DESC LIMIT %d OFFSET %d`, where, size, offset)
	var logs []models.AuditLog
	if err := q.SelectContext(ctx, &logs, q.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	var total int
	if err := q.GetContext(ctx, &total, q.Rebind("SELECT COUNT(*) FROM audit_logs WHERE "+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	return logs, total, nil
}
