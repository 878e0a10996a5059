package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/pkg/response"
)

type circulationService interface {
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionDetail, *models.Pagination, error)
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	AddTransaction(ctx context.Context, req dto.CreateTransactionRequest) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, req dto.UpdateTransactionRequest) (*models.Transaction, error)
	MarkLostOrDamaged(ctx context.Context, id int64, req dto.LostDamagedRequest) (*models.Transaction, *models.BadDebt, error)
}

// TransactionHandler exposes the borrow/return ledger.
type TransactionHandler struct {
	circulation circulationService
}

// NewTransactionHandler constructs TransactionHandler.
func NewTransactionHandler(circulation circulationService) *TransactionHandler {
	return &TransactionHandler{circulation: circulation}
}

// List godoc
// @Summary List transactions
// @Tags Transactions
// @Produce json
// @Param status query string false "active, returned, lost or damaged"
// @Param action query string false "borrow or return"
// @Param bookId query int false "Filter by book"
// @Param studentId query int false "Filter by student"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	var filter models.TransactionFilter
	filter.Status = models.TransactionStatus(c.Query("status"))
	filter.Action = models.TransactionAction(c.Query("action"))
	filter.BookID = int64Query(c, "bookId")
	filter.StudentID = int64Query(c, "studentId")
	filter.Page, filter.PageSize = pageParams(c)

	rows, pagination, err := h.circulation.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Get godoc
// @Summary Get transaction
// @Tags Transactions
// @Produce json
// @Param id path int true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Router /transactions/{id} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	txn, err := h.circulation.GetTransaction(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txn, nil)
}

// Create godoc
// @Summary Borrow or return a book
// @Description Runs the borrow or return protocol and appends a ledger row.
// @Tags Transactions
// @Accept json
// @Produce json
// @Param payload body dto.CreateTransactionRequest true "Transaction payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transactions [post]
func (h *TransactionHandler) Create(c *gin.Context) {
	var req dto.CreateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	txn, err := h.circulation.AddTransaction(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, txn)
}

// Update godoc
// @Summary Update transaction
// @Tags Transactions
// @Accept json
// @Produce json
// @Param id path int true "Transaction ID"
// @Param payload body dto.UpdateTransactionRequest true "Transaction payload"
// @Success 200 {object} response.Envelope
// @Router /transactions/{id} [put]
func (h *TransactionHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.UpdateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	txn, err := h.circulation.UpdateTransaction(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txn, nil)
}

// MarkLoss godoc
// @Summary Close a loan as lost or damaged
// @Description Closes the active loan and raises a pending debt in one step.
// @Tags Transactions
// @Accept json
// @Produce json
// @Param id path int true "Transaction ID"
// @Param payload body dto.LostDamagedRequest true "Loss payload"
// @Success 200 {object} response.Envelope
// @Router /transactions/{id}/loss [post]
func (h *TransactionHandler) MarkLoss(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.LostDamagedRequest
	if !bindJSON(c, &req) {
		return
	}
	txn, debt, err := h.circulation.MarkLostOrDamaged(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"transaction": txn, "debt": debt}, nil)
}
