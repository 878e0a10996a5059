package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-library-api/internal/models"
)

// TaxonomyRepository stores category and subject vocabularies.
type TaxonomyRepository struct {
	db *sqlx.DB
}

// NewTaxonomyRepository constructs a TaxonomyRepository.
func NewTaxonomyRepository(db *sqlx.DB) *TaxonomyRepository {
	return &TaxonomyRepository{db: db}
}

// List returns entries ordered by name, optionally restricted to one type.
func (r *TaxonomyRepository) List(ctx context.Context, kind models.TaxonomyType) ([]models.TaxonomyEntry, error) {
	q := conn(ctx, r.db)
	query := "SELECT id, type, name, created_at FROM taxonomy"
	args := []interface{}{}
	if kind != "" {
		query += " WHERE type = ?"
		args = append(args, string(kind))
	}
	entries := []models.TaxonomyEntry{}
	if err := q.SelectContext(ctx, &entries, q.Rebind(query+" ORDER BY name ASC, id ASC"), args...); err != nil {
		return nil, fmt.Errorf("list taxonomy: %w", err)
	}
	return entries, nil
}

// Exists reports whether a name is already registered for the type.
func (r *TaxonomyRepository) Exists(ctx context.Context, kind models.TaxonomyType, name string) (bool, error) {
	q := conn(ctx, r.db)
	var exists int
	if err := q.GetContext(ctx, &exists, q.Rebind("SELECT 1 FROM taxonomy WHERE type = ? AND name = ? LIMIT 1"), string(kind), name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check taxonomy: %w", err)
	}
	return true, nil
}

// Create inserts an entry.
func (r *TaxonomyRepository) Create(ctx context.Context, entry *models.TaxonomyEntry) error {
	const query = `INSERT INTO taxonomy (type, name, created_at) VALUES (:type, :name, :created_at) RETURNING id`
	id, err := insertReturningID(ctx, conn(ctx, r.db), query, entry)
	if err != nil {
		return fmt.Errorf("create taxonomy entry: %w", err)
	}
	entry.ID = id
	return nil
}

// Delete removes an entry by id.
func (r *TaxonomyRepository) Delete(ctx context.Context, id int64) error {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx, q.Rebind("DELETE FROM taxonomy WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete taxonomy entry: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
