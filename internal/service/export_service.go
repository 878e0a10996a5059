package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
	"github.com/noah-isme/sma-library-api/pkg/export"
	"github.com/noah-isme/sma-library-api/pkg/storage"
)

type bookLister interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
}

type studentLister interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

type transactionLister interface {
	List(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionDetail, int, error)
}

type debtLister interface {
	List(ctx context.Context, filter models.BadDebtFilter) ([]models.BadDebtDetail, int, error)
}

type auditLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// ExportSources are the read models an export can draw from.
type ExportSources struct {
	Books        bookLister
	Students     studentLister
	Transactions transactionLister
	Debts        debtLister
	Audit        auditLister
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	MaxRows   int
}

// ExportService renders datasets to CSV or PDF, stores them and hands out signed download links.
type ExportService struct {
	sources   ExportSources
	store     storage.Store
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(sources ExportSources, store storage.Store, signer *storage.SignedURLSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		sources:   sources,
		store:     store,
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate renders the requested dataset, stores it and returns a signed download link.
func (s *ExportService) Generate(ctx context.Context, req dto.ExportRequest) (*dto.ExportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid export payload")
	}
	format := export.Format(req.Format)
	renderer, err := export.RendererFor(format)
	if err != nil {
		return nil, validationError(err, "invalid export format")
	}

	data, err := s.dataset(ctx, req.Resource)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(data)
	if err != nil {
		return nil, internalError(err, "failed to render export")
	}

	now := s.now()
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	filename := fmt.Sprintf("%s_%s.%s", req.Resource, now.Format("20060102_150405"), format)
	key := fmt.Sprintf("%s/%s/%s", now.Format("2006/01/02"), id, filename)
	if err := s.store.Save(ctx, key, payload, format.ContentType()); err != nil {
		return nil, internalError(err, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(id, key)
	if err != nil {
		return nil, internalError(err, "failed to sign export link")
	}

	s.logger.Info("export generated", zap.String("resource", req.Resource), zap.String("format", req.Format), zap.Int("rows", len(data.Rows)), zap.String("key", key))
	return &dto.ExportResult{
		Filename:  filename,
		Format:    req.Format,
		Rows:      len(data.Rows),
		URL:       fmt.Sprintf("%s/exports/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		ExpiresAt: expiresAt,
	}, nil
}

// Download is an opened export ready to stream.
type Download struct {
	Filename    string
	ContentType string
	Body        io.ReadCloser
}

// Open validates a download token and opens the stored file.
func (s *ExportService) Open(ctx context.Context, token string) (*Download, error) {
	_, key, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCapability, "download link is invalid or expired")
	}
	body, err := s.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer exists")
		}
		return nil, internalError(err, "failed to open export")
	}
	filename := key[strings.LastIndex(key, "/")+1:]
	format := export.FormatCSV
	if strings.HasSuffix(filename, ".pdf") {
		format = export.FormatPDF
	}
	return &Download{Filename: filename, ContentType: format.ContentType(), Body: body}, nil
}

func (s *ExportService) dataset(ctx context.Context, resource string) (export.Dataset, error) {
	switch resource {
	case "books":
		return s.booksDataset(ctx)
	case "students":
		return s.studentsDataset(ctx)
	case "transactions":
		return s.transactionsDataset(ctx)
	case "debts":
		return s.debtsDataset(ctx)
	case "audit":
		return s.auditDataset(ctx)
	}
	return export.Dataset{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown export resource %q", resource))
}

// collect pages through a listing until it is exhausted or MaxRows is reached.
func collect[T any](ctx context.Context, maxRows int, list func(ctx context.Context, page, size int) ([]T, error)) ([]T, error) {
	var all []T
	for page := 1; len(all) < maxRows; page++ {
		rows, err := list(ctx, page, models.MaxPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < models.MaxPageSize {
			break
		}
	}
	if len(all) > maxRows {
		all = all[:maxRows]
	}
	return all, nil
}

func (s *ExportService) booksDataset(ctx context.Context) (export.Dataset, error) {
	books, err := collect(ctx, s.cfg.MaxRows, func(ctx context.Context, page, size int) ([]models.Book, error) {
		rows, _, err := s.sources.Books.List(ctx, models.BookFilter{Page: page, PageSize: size})
		return rows, err
	})
	if err != nil {
		return export.Dataset{}, internalError(err, "failed to load books")
	}
	data := export.Dataset{Title: "Catalog", Columns: []string{"ID", "Barcode", "Title", "Category", "Subject", "Grades", "Quantity", "Available", "Price", "Status"}}
	for _, b := range books {
		data.Rows = append(data.Rows, []string{
			itoa(b.ID), b.Barcode, b.Title, b.Category, b.Subject, joinGrades(b.Grades),
			strconv.Itoa(b.Quantity), strconv.Itoa(b.AvailableQuantity), money(b.Price), string(b.Status),
		})
	}
	return data, nil
}

func (s *ExportService) studentsDataset(ctx context.Context) (export.Dataset, error) {
	students, err := collect(ctx, s.cfg.MaxRows, func(ctx context.Context, page, size int) ([]models.Student, error) {
		rows, _, err := s.sources.Students.List(ctx, models.StudentFilter{Page: page, PageSize: size})
		return rows, err
	})
	if err != nil {
		return export.Dataset{}, internalError(err, "failed to load students")
	}
	data := export.Dataset{Title: "Students", Columns: []string{"ID", "Student ID", "Name", "Class", "Contact"}}
	for _, st := range students {
		contact := ""
		if st.Contact != nil {
			contact = *st.Contact
		}
		data.Rows = append(data.Rows, []string{itoa(st.ID), st.StudentID, st.Name, st.Class, contact})
	}
	return data, nil
}

func (s *ExportService) transactionsDataset(ctx context.Context) (export.Dataset, error) {
	rows, err := collect(ctx, s.cfg.MaxRows, func(ctx context.Context, page, size int) ([]models.TransactionDetail, error) {
		rows, _, err := s.sources.Transactions.List(ctx, models.TransactionFilter{Page: page, PageSize: size})
		return rows, err
	})
	if err != nil {
		return export.Dataset{}, internalError(err, "failed to load transactions")
	}
	now := s.now()
	data := export.Dataset{Title: "Transactions", Columns: []string{"ID", "Book", "Student", "Action", "Date", "Due", "Returned", "Status"}}
	for _, t := range rows {
		data.Rows = append(data.Rows, []string{
			itoa(t.ID), t.BookTitle, t.StudentName, string(t.Action), day(&t.Date), day(t.DueDate), day(t.ReturnDate),
			string(t.Transaction.DisplayStatus(now)),
		})
	}
	return data, nil
}

func (s *ExportService) debtsDataset(ctx context.Context) (export.Dataset, error) {
	debts, err := collect(ctx, s.cfg.MaxRows, func(ctx context.Context, page, size int) ([]models.BadDebtDetail, error) {
		rows, _, err := s.sources.Debts.List(ctx, models.BadDebtFilter{Page: page, PageSize: size})
		return rows, err
	})
	if err != nil {
		return export.Dataset{}, internalError(err, "failed to load debts")
	}
	data := export.Dataset{Title: "Bad Debts", Columns: []string{"ID", "Transaction", "Book", "Student", "Type", "Amount", "Date", "Status", "Paid"}}
	for _, d := range debts {
		data.Rows = append(data.Rows, []string{
			itoa(d.ID), itoa(d.TransactionID), d.BookTitle, d.StudentName, string(d.Type), money(d.Amount),
			day(&d.Date), string(d.Status), day(d.PaidDate),
		})
	}
	return data, nil
}

func (s *ExportService) auditDataset(ctx context.Context) (export.Dataset, error) {
	logs, err := collect(ctx, s.cfg.MaxRows, func(ctx context.Context, page, size int) ([]models.AuditLog, error) {
		rows, _, err := s.sources.Audit.List(ctx, models.AuditFilter{Page: page, PageSize: size})
		return rows, err
	})
	if err != nil {
		return export.Dataset{}, internalError(err, "failed to load audit logs")
	}
	data := export.Dataset{Title: "Audit Log", Columns: []string{"ID", "Timestamp", "Action", "Resource", "Resource ID", "User", "Risk", "Notes"}}
	for _, l := range logs {
		data.Rows = append(data.Rows, []string{
			itoa(l.ID), l.Timestamp.Format(time.RFC3339), string(l.Action), string(l.ResourceType), itoa(l.ResourceID),
			l.UserID, string(l.RiskLevel), l.Notes,
		})
	}
	return data, nil
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func day(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func joinGrades(grades []int) string {
	parts := make([]string, len(grades))
	for i, g := range grades {
		parts[i] = strconv.Itoa(g)
	}
	return strings.Join(parts, " ")
}
