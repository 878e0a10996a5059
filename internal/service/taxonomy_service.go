package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

type taxonomyStore interface {
	List(ctx context.Context, kind models.TaxonomyType) ([]models.TaxonomyEntry, error)
	Exists(ctx context.Context, kind models.TaxonomyType, name string) (bool, error)
	Create(ctx context.Context, entry *models.TaxonomyEntry) error
	Delete(ctx context.Context, id int64) error
}

// TaxonomyService manages the category and subject vocabularies.
type TaxonomyService struct {
	repo      taxonomyStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTaxonomyService constructs the taxonomy service.
func NewTaxonomyService(repo taxonomyStore, validate *validator.Validate, logger *zap.Logger) *TaxonomyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaxonomyService{repo: repo, validator: validate, logger: logger}
}

// List returns entries of one type, or of both when kind is empty.
func (s *TaxonomyService) List(ctx context.Context, kind models.TaxonomyType) ([]models.TaxonomyEntry, error) {
	if kind != "" && !kind.Valid() {
		return nil, validationError(fmt.Errorf("unknown taxonomy type %q", kind), "invalid taxonomy type")
	}
	entries, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, internalError(err, "failed to list taxonomy")
	}
	if entries == nil {
		entries = []models.TaxonomyEntry{}
	}
	return entries, nil
}

// Create adds a name to a vocabulary. Names are unique per type.
func (s *TaxonomyService) Create(ctx context.Context, req dto.CreateTaxonomyRequest) (*models.TaxonomyEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid taxonomy payload")
	}
	entry := &models.TaxonomyEntry{Type: models.TaxonomyType(req.Type), Name: strings.TrimSpace(req.Name), CreatedAt: time.Now().UTC()}
	if entry.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name is required")
	}
	exists, err := s.repo.Exists(ctx, entry.Type, entry.Name)
	if err != nil {
		return nil, internalError(err, "failed to check taxonomy")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s %q already exists", entry.Type, entry.Name))
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, internalError(err, "failed to create taxonomy entry")
	}
	return entry, nil
}

// Delete removes an entry. Books keep their free-text category and subject.
func (s *TaxonomyService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return lookupError(err, "taxonomy entry not found", "failed to delete taxonomy entry")
	}
	return nil
}
