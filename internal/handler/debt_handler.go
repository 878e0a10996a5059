package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/pkg/response"
)

type debtService interface {
	List(ctx context.Context, filter models.BadDebtFilter) ([]models.BadDebtDetail, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.BadDebt, error)
	Add(ctx context.Context, req dto.CreateBadDebtRequest) (*models.BadDebt, error)
	Update(ctx context.Context, id int64, req dto.UpdateBadDebtRequest) (*models.BadDebt, error)
}

// DebtHandler exposes the bad-debt ledger.
type DebtHandler struct {
	debts debtService
}

// NewDebtHandler constructs DebtHandler.
func NewDebtHandler(debts debtService) *DebtHandler {
	return &DebtHandler{debts: debts}
}

// List godoc
// @Summary List bad debts
// @Tags Debts
// @Produce json
// @Param status query string false "pending, paid or waived"
// @Param type query string false "lost or damaged"
// @Param studentId query int false "Filter by student"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /debts [get]
func (h *DebtHandler) List(c *gin.Context) {
	var filter models.BadDebtFilter
	filter.Status = models.DebtStatus(c.Query("status"))
	filter.Type = models.DebtType(c.Query("type"))
	filter.StudentID = int64Query(c, "studentId")
	filter.Page, filter.PageSize = pageParams(c)

	debts, pagination, err := h.debts.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, debts, pagination)
}

// Get godoc
// @Summary Get bad debt
// @Tags Debts
// @Produce json
// @Param id path int true "Debt ID"
// @Success 200 {object} response.Envelope
// @Router /debts/{id} [get]
func (h *DebtHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	debt, err := h.debts.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, debt, nil)
}

// Create godoc
// @Summary Raise a bad debt
// @Tags Debts
// @Accept json
// @Produce json
// @Param payload body dto.CreateBadDebtRequest true "Debt payload"
// @Success 201 {object} response.Envelope
// @Router /debts [post]
func (h *DebtHandler) Create(c *gin.Context) {
	var req dto.CreateBadDebtRequest
	if !bindJSON(c, &req) {
		return
	}
	debt, err := h.debts.Add(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, debt)
}

// Update godoc
// @Summary Settle or amend a bad debt
// @Tags Debts
// @Accept json
// @Produce json
// @Param id path int true "Debt ID"
// @Param payload body dto.UpdateBadDebtRequest true "Debt payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /debts/{id} [put]
func (h *DebtHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.UpdateBadDebtRequest
	if !bindJSON(c, &req) {
		return
	}
	debt, err := h.debts.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, debt, nil)
}
