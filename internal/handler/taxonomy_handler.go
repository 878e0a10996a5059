package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/pkg/response"
)

type taxonomyService interface {
	List(ctx context.Context, kind models.TaxonomyType) ([]models.TaxonomyEntry, error)
	Create(ctx context.Context, req dto.CreateTaxonomyRequest) (*models.TaxonomyEntry, error)
	Delete(ctx context.Context, id int64) error
}

// TaxonomyHandler exposes the category and subject vocabularies.
type TaxonomyHandler struct {
	taxonomy taxonomyService
}

// NewTaxonomyHandler constructs TaxonomyHandler.
func NewTaxonomyHandler(taxonomy taxonomyService) *TaxonomyHandler {
	return &TaxonomyHandler{taxonomy: taxonomy}
}

// List godoc
// @Summary List taxonomy entries
// @Tags Taxonomy
// @Produce json
// @Param type query string false "category or subject"
// @Success 200 {object} response.Envelope
// @Router /taxonomy [get]
func (h *TaxonomyHandler) List(c *gin.Context) {
	entries, err := h.taxonomy.List(c.Request.Context(), models.TaxonomyType(c.Query("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Create godoc
// @Summary Add taxonomy entry
// @Tags Taxonomy
// @Accept json
// @Produce json
// @Param payload body dto.CreateTaxonomyRequest true "Taxonomy payload"
// @Success 201 {object} response.Envelope
// @Router /taxonomy [post]
func (h *TaxonomyHandler) Create(c *gin.Context) {
	var req dto.CreateTaxonomyRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.taxonomy.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Delete godoc
// @Summary Delete taxonomy entry
// @Tags Taxonomy
// @Param id path int true "Entry ID"
// @Success 204
// @Router /taxonomy/{id} [delete]
func (h *TaxonomyHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.taxonomy.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
