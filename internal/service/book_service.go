package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

type bookFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Book, error)
	FindByReference(ctx context.Context, ref string) (*models.Book, error)
}

type bookStore interface {
	bookFinder
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	ExistsByBarcode(ctx context.Context, barcode string, excludeID int64) (bool, error)
	Create(ctx context.Context, book *models.Book) error
	Update(ctx context.Context, book *models.Book) error
	Delete(ctx context.Context, id int64) error
}

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string)
}

// BookService implements the catalog store use-cases.
type BookService struct {
	repo      bookStore
	tx        transactor
	audit     auditRecorder
	cache     cacheInvalidator
	locks     *BookLocks
	validator *validator.Validate
	logger    *zap.Logger
}

// BookServiceOption configures the service.
type BookServiceOption func(*BookService)

// WithBookCache invalidates cached dashboards after catalog mutations.
func WithBookCache(cache cacheInvalidator) BookServiceOption {
	return func(s *BookService) {
		s.cache = cache
	}
}

// WithBookLocks shares the per-book lock table with the circulation service.
func WithBookLocks(locks *BookLocks) BookServiceOption {
	return func(s *BookService) {
		if locks != nil {
			s.locks = locks
		}
	}
}

// NewBookService constructs the book service.
func NewBookService(repo bookStore, tx transactor, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, opts ...BookServiceOption) *BookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &BookService{repo: repo, tx: tx, audit: audit, locks: NewBookLocks(), validator: validate, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// List returns books and pagination metadata.
func (s *BookService) List(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	books, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list books")
	}
	if books == nil {
		books = []models.Book{}
	}
	return books, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns one book.
func (s *BookService) Get(ctx context.Context, id int64) (*models.Book, error) {
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "book not found", "failed to load book")
	}
	return book, nil
}

// Create registers a new book with every copy available.
func (s *BookService) Create(ctx context.Context, req dto.CreateBookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid book payload")
	}
	book := &models.Book{
		Barcode:           strings.TrimSpace(req.Barcode),
		Title:             strings.TrimSpace(req.Title),
		Category:          strings.TrimSpace(req.Category),
		Subject:           strings.TrimSpace(req.Subject),
		Grades:            append([]int(nil), req.Grades...),
		Quantity:          req.Quantity,
		AvailableQuantity: req.Quantity,
		Price:             req.Price,
		Status:            models.BookStatus(req.Status),
	}
	if book.Status == "" {
		book.Status = models.BookStatusActive
	}
	if book.Barcode == "" || book.Title == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "barcode and title are required")
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		exists, err := s.repo.ExistsByBarcode(ctx, book.Barcode, 0)
		if err != nil {
			return internalError(err, "failed to validate barcode")
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "barcode already used")
		}
		if err := s.repo.Create(ctx, book); err != nil {
			return internalError(err, "failed to create book")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditChange{Action: models.AuditCreate, Resource: models.ResourceBook, ResourceID: book.ID, Next: book})
	s.invalidate(ctx)
	return book, nil
}

// Update patches a book. A quantity change shifts available copies by the same delta,
// clamped to [0, quantity].
func (s *BookService) Update(ctx context.Context, id int64, req dto.UpdateBookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid book payload")
	}
	if req.Grades != nil && len(req.Grades) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one grade is required")
	}

	release := s.locks.Lock(id)
	defer release()

	var before, after *models.Book
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "book not found", "failed to load book")
		}
		snapshot := *current
		snapshot.Grades = append([]int(nil), current.Grades...)
		before = &snapshot

		updated := *current
		if err := s.applyPatch(ctx, &updated, req); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, &updated); err != nil {
			return lookupError(err, "book not found", "failed to update book")
		}
		after = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditChange{Action: models.AuditUpdate, Resource: models.ResourceBook, ResourceID: id, Previous: before, Next: after})
	s.invalidate(ctx)
	return after, nil
}

// Delete removes a book. Deleting a book with copies on loan is allowed and flagged by the
// risk engine.
func (s *BookService) Delete(ctx context.Context, id int64) error {
	release := s.locks.Lock(id)
	defer release()

	var removed *models.Book
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		book, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "book not found", "failed to load book")
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return lookupError(err, "book not found", "failed to delete book")
		}
		removed = book
		return nil
	})
	if err != nil {
		return err
	}

	assessment := s.audit.Record(ctx, AuditChange{Action: models.AuditDelete, Resource: models.ResourceBook, ResourceID: id, Previous: removed})
	if assessment.Risky {
		s.logger.Warn("book deleted with copies on loan", zap.Int64("book_id", id), zap.Int("on_loan", removed.OnLoan()))
	}
	s.invalidate(ctx)
	return nil
}

func (s *BookService) applyPatch(ctx context.Context, book *models.Book, req dto.UpdateBookRequest) error {
	if req.Barcode != nil {
		barcode := strings.TrimSpace(*req.Barcode)
		if barcode == "" {
			return appErrors.Clone(appErrors.ErrValidation, "barcode cannot be blank")
		}
		if barcode != book.Barcode {
			exists, err := s.repo.ExistsByBarcode(ctx, barcode, book.ID)
			if err != nil {
				return internalError(err, "failed to validate barcode")
			}
			if exists {
				return appErrors.Clone(appErrors.ErrConflict, "barcode already used")
			}
		}
		book.Barcode = barcode
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return appErrors.Clone(appErrors.ErrValidation, "title cannot be blank")
		}
		book.Title = title
	}
	if req.Category != nil {
		book.Category = strings.TrimSpace(*req.Category)
	}
	if req.Subject != nil {
		book.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.Grades != nil {
		book.Grades = append([]int(nil), req.Grades...)
	}
	if req.Price != nil {
		book.Price = *req.Price
	}
	if req.Status != nil {
		book.Status = models.BookStatus(*req.Status)
	}
	if req.Quantity != nil {
		delta := *req.Quantity - book.Quantity
		book.Quantity = *req.Quantity
		book.AvailableQuantity = clampAvailable(book.AvailableQuantity+delta, book.Quantity)
	}
	return nil
}

func (s *BookService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, dashboardCachePattern)
	}
}

func clampAvailable(available, quantity int) int {
	if available < 0 {
		return 0
	}
	if available > quantity {
		return quantity
	}
	return available
}

// resolveBook loads a book by id or by barcode/title reference.
func resolveBook(ctx context.Context, repo bookFinder, id int64, ref string) (*models.Book, error) {
	var (
		book *models.Book
		err  error
	)
	switch {
	case id > 0:
		book, err = repo.FindByID(ctx, id)
	case strings.TrimSpace(ref) != "":
		book, err = repo.FindByReference(ctx, strings.TrimSpace(ref))
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "book id or reference is required")
	}
	if err != nil {
		return nil, lookupError(err, "book not found", "failed to load book")
	}
	return book, nil
}
