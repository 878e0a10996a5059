package models

import "time"

// TaxonomyType selects the vocabulary an entry belongs to.
type TaxonomyType string

const (
	TaxonomyCategory TaxonomyType = "category"
	TaxonomySubject  TaxonomyType = "subject"
)

// Valid reports whether the type is category or subject.
func (t TaxonomyType) Valid() bool {
	return t == TaxonomyCategory || t == TaxonomySubject
}

// TaxonomyEntry is a controlled vocabulary term. Name is unique within its type.
type TaxonomyEntry struct {
	ID        int64        `db:"id" json:"id"`
	Type      TaxonomyType `db:"type" json:"type"`
	Name      string       `db:"name" json:"name"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}
