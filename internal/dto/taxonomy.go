package dto

// CreateTaxonomyRequest adds a category or subject name.
type CreateTaxonomyRequest struct {
	Type string `json:"type" validate:"required,oneof=category subject"`
	Name string `json:"name" validate:"required,max=100"`
}
