package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-library-api/internal/dto"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
	"github.com/noah-isme/sma-library-api/pkg/response"
)

type importService interface {
	ImportBooks(ctx context.Context, r io.Reader) (*dto.ImportReport, error)
	ImportStudents(ctx context.Context, r io.Reader) (*dto.ImportReport, error)
}

// ImportHandler accepts CSV uploads for bulk catalog and roster loads.
type ImportHandler struct {
	imports importService
}

// NewImportHandler constructs ImportHandler.
func NewImportHandler(imports importService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// Books godoc
// @Summary Import books from CSV
// @Tags Imports
// @Accept mpfd
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Router /imports/books [post]
func (h *ImportHandler) Books(c *gin.Context) {
	h.run(c, h.imports.ImportBooks)
}

// Students godoc
// @Summary Import students from CSV
// @Tags Imports
// @Accept mpfd
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Router /imports/students [post]
func (h *ImportHandler) Students(c *gin.Context) {
	h.run(c, h.imports.ImportStudents)
}

func (h *ImportHandler) run(c *gin.Context, load func(context.Context, io.Reader) (*dto.ImportReport, error)) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read upload"))
		return
	}
	defer file.Close()

	report, err := load(c.Request.Context(), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
