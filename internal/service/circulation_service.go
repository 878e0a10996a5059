package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

// DefaultLoanPeriod applies when a borrow carries no due date.
const DefaultLoanPeriod = 14 * 24 * time.Hour

type ledgerStore interface {
	List(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionDetail, int, error)
	FindByID(ctx context.Context, id int64) (*models.Transaction, error)
	FindActiveLoan(ctx context.Context, bookID, studentID int64) (*models.Transaction, error)
	Create(ctx context.Context, txn *models.Transaction) error
	Update(ctx context.Context, txn *models.Transaction) error
}

// circulationCatalog is the catalog surface the ledger needs, including the availability
// reconciler.
type circulationCatalog interface {
	bookFinder
	AdjustAvailability(ctx context.Context, id int64, delta int) (int, error)
}

// CirculationStores groups the persistence dependencies of the circulation service.
type CirculationStores struct {
	Books    circulationCatalog
	Students studentFinder
	Ledger   ledgerStore
	Debts    debtStore
}

// CirculationService runs the borrow, return and lost/damaged protocols. Every protocol runs
// in one database transaction under the book's lock.
type CirculationService struct {
	books      circulationCatalog
	students   studentFinder
	ledger     ledgerStore
	debts      debtStore
	tx         transactor
	audit      auditRecorder
	cache      cacheInvalidator
	metrics    *MetricsService
	locks      *BookLocks
	validator  *validator.Validate
	logger     *zap.Logger
	loanPeriod time.Duration
	now        func() time.Time
}

// CirculationOption configures the service.
type CirculationOption func(*CirculationService)

// WithLoanPeriod sets the default borrow duration.
func WithLoanPeriod(period time.Duration) CirculationOption {
	return func(s *CirculationService) {
		if period > 0 {
			s.loanPeriod = period
		}
	}
}

// WithCirculationClock overrides the time source.
func WithCirculationClock(now func() time.Time) CirculationOption {
	return func(s *CirculationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCirculationLocks shares the per-book lock table with the catalog service.
func WithCirculationLocks(locks *BookLocks) CirculationOption {
	return func(s *CirculationService) {
		if locks != nil {
			s.locks = locks
		}
	}
}

// WithCirculationCache invalidates cached dashboards after ledger mutations.
func WithCirculationCache(cache cacheInvalidator) CirculationOption {
	return func(s *CirculationService) {
		s.cache = cache
	}
}

// WithCirculationMetrics attaches metrics.
func WithCirculationMetrics(metrics *MetricsService) CirculationOption {
	return func(s *CirculationService) {
		s.metrics = metrics
	}
}

// NewCirculationService constructs the circulation service.
func NewCirculationService(stores CirculationStores, tx transactor, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, opts ...CirculationOption) *CirculationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &CirculationService{
		books:      stores.Books,
		students:   stores.Students,
		ledger:     stores.Ledger,
		debts:      stores.Debts,
		tx:         tx,
		audit:      audit,
		locks:      NewBookLocks(),
		validator:  validate,
		logger:     logger,
		loanPeriod: DefaultLoanPeriod,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ListTransactions returns ledger rows with display names and the derived overdue label.
func (s *CirculationService) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionDetail, *models.Pagination, error) {
	if filter.Status == models.TransactionOverdue {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "overdue is derived; filter by active instead")
	}
	rows, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list transactions")
	}
	if rows == nil {
		rows = []models.TransactionDetail{}
	}
	now := s.now()
	for i := range rows {
		rows[i].Overdue = rows[i].IsOverdue(now)
		rows[i].DisplayStatus = rows[i].Transaction.DisplayStatus(now)
	}
	return rows, paginate(filter.Page, filter.PageSize, total), nil
}

// GetTransaction returns one ledger row.
func (s *CirculationService) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	txn, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "transaction not found", "failed to load transaction")
	}
	return txn, nil
}

// AddTransaction dispatches to the borrow or return protocol.
func (s *CirculationService) AddTransaction(ctx context.Context, req dto.CreateTransactionRequest) (*models.Transaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid transaction payload")
	}
	switch models.TransactionAction(req.Action) {
	case models.ActionBorrow:
		return s.Borrow(ctx, req)
	case models.ActionReturn:
		return s.Return(ctx, req)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported action %q", req.Action))
	}
}

// Borrow opens a loan and takes one copy out of availability.
func (s *CirculationService) Borrow(ctx context.Context, req dto.CreateTransactionRequest) (*models.Transaction, error) {
	book, err := resolveBook(ctx, s.books, req.BookID, req.BookRef)
	if err != nil {
		return nil, s.reject(models.ActionBorrow, err)
	}
	student, err := resolveStudent(ctx, s.students, req.StudentID, req.StudentCode)
	if err != nil {
		return nil, s.reject(models.ActionBorrow, err)
	}

	now := s.now()
	due := now.Add(s.loanPeriod)
	if req.DueDate != nil {
		due = req.DueDate.UTC()
		if !due.After(now) {
			return nil, s.reject(models.ActionBorrow, appErrors.Clone(appErrors.ErrValidation, "due date must be in the future"))
		}
	}

	release := s.locks.Lock(book.ID)
	defer release()

	loan := &models.Transaction{
		BookID:    book.ID,
		StudentID: student.ID,
		Action:    models.ActionBorrow,
		Date:      now,
		DueDate:   &due,
		Status:    models.TransactionActive,
		Notes:     strings.TrimSpace(req.Notes),
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.books.FindByID(ctx, book.ID)
		if err != nil {
			return lookupError(err, "book not found", "failed to load book")
		}
		if current.AvailableQuantity <= 0 {
			return appErrors.Clone(appErrors.ErrBookUnavailable, fmt.Sprintf("no copies of %q are available", current.Title))
		}
		if err := s.ledger.Create(ctx, loan); err != nil {
			return internalError(err, "failed to record borrow")
		}
		if _, err := s.books.AdjustAvailability(ctx, book.ID, -1); err != nil {
			return lookupError(err, "book not found", "failed to update availability")
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(models.ActionBorrow, err)
	}

	s.audit.Record(ctx, AuditChange{Action: models.AuditCreate, Resource: models.ResourceTransaction, ResourceID: loan.ID, Next: loan})
	s.succeed(ctx, models.ActionBorrow)
	return loan, nil
}

// Return closes the oldest active loan of the book (optionally for one student), appends a
// return row and puts the copy back into availability. The appended row is returned.
func (s *CirculationService) Return(ctx context.Context, req dto.CreateTransactionRequest) (*models.Transaction, error) {
	book, err := resolveBook(ctx, s.books, req.BookID, req.BookRef)
	if err != nil {
		return nil, s.reject(models.ActionReturn, err)
	}
	var studentID int64
	if req.StudentID > 0 || strings.TrimSpace(req.StudentCode) != "" {
		student, err := resolveStudent(ctx, s.students, req.StudentID, req.StudentCode)
		if err != nil {
			return nil, s.reject(models.ActionReturn, err)
		}
		studentID = student.ID
	}

	release := s.locks.Lock(book.ID)
	defer release()

	now := s.now()
	var before, loan, record *models.Transaction
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		active, err := s.ledger.FindActiveLoan(ctx, book.ID, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNoActiveLoan, fmt.Sprintf("no active loan for %q", book.Title))
			}
			return internalError(err, "failed to find active loan")
		}
		snapshot := *active
		before = &snapshot

		returnedAt := now
		active.Status = models.TransactionReturned
		active.ReturnDate = &returnedAt
		if err := s.ledger.Update(ctx, active); err != nil {
			return internalError(err, "failed to close loan")
		}
		loan = active

		record = &models.Transaction{
			BookID:     active.BookID,
			StudentID:  active.StudentID,
			Action:     models.ActionReturn,
			Date:       now,
			ReturnDate: &returnedAt,
			Status:     models.TransactionReturned,
			Notes:      strings.TrimSpace(req.Notes),
		}
		if err := s.ledger.Create(ctx, record); err != nil {
			return internalError(err, "failed to record return")
		}
		if _, err := s.books.AdjustAvailability(ctx, book.ID, 1); err != nil {
			return lookupError(err, "book not found", "failed to update availability")
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(models.ActionReturn, err)
	}

	s.audit.Record(ctx, AuditChange{Action: models.AuditUpdate, Resource: models.ResourceTransaction, ResourceID: loan.ID, Previous: before, Next: loan})
	s.audit.Record(ctx, AuditChange{Action: models.AuditCreate, Resource: models.ResourceTransaction, ResourceID: record.ID, Next: record})
	s.succeed(ctx, models.ActionReturn)
	return record, nil
}

// UpdateTransaction patches a ledger row. Moving an active loan to returned puts the copy
// back into availability without appending a return row; lost and damaged delegate to
// MarkLostOrDamaged.
func (s *CirculationService) UpdateTransaction(ctx context.Context, id int64, req dto.UpdateTransactionRequest) (*models.Transaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid transaction payload")
	}
	if req.Status != nil {
		switch next := models.TransactionStatus(*req.Status); next {
		case models.TransactionLost, models.TransactionDamaged:
			if req.DueDate != nil || req.ReturnDate != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("dates cannot be changed while marking a loan %s", next))
			}
			notes := ""
			if req.Notes != nil {
				notes = *req.Notes
			}
			txn, _, err := s.MarkLostOrDamaged(ctx, id, dto.LostDamagedRequest{Type: string(next), Notes: notes})
			return txn, err
		}
	}

	existing, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "transaction not found", "failed to load transaction")
	}

	release := s.locks.Lock(existing.BookID)
	defer release()

	var before, after *models.Transaction
	reconcile := false
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.ledger.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "transaction not found", "failed to load transaction")
		}
		snapshot := *current
		before = &snapshot
		updated := *current

		if req.Status != nil {
			next := models.TransactionStatus(*req.Status)
			if !current.Status.CanTransitionTo(next) {
				return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("transaction is %s and cannot become %s", current.Status, next))
			}
			updated.Status = next
			reconcile = true
		}
		if req.DueDate != nil {
			if current.Status != models.TransactionActive || current.Action != models.ActionBorrow {
				return appErrors.Clone(appErrors.ErrInvalidTransition, "due date can only change on an active loan")
			}
			due := req.DueDate.UTC()
			updated.DueDate = &due
		}
		if req.ReturnDate != nil {
			if updated.Status != models.TransactionReturned {
				return appErrors.Clone(appErrors.ErrValidation, "return date requires a returned transaction")
			}
			returned := req.ReturnDate.UTC()
			updated.ReturnDate = &returned
		}
		if req.Notes != nil {
			updated.Notes = strings.TrimSpace(*req.Notes)
		}

		if err := s.ledger.Update(ctx, &updated); err != nil {
			return lookupError(err, "transaction not found", "failed to update transaction")
		}
		if reconcile {
			if _, err := s.books.AdjustAvailability(ctx, updated.BookID, 1); err != nil && !errors.Is(err, sql.ErrNoRows) {
				return internalError(err, "failed to update availability")
			}
		}
		after = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditChange{Action: models.AuditUpdate, Resource: models.ResourceTransaction, ResourceID: id, Previous: before, Next: after})
	if reconcile {
		s.succeed(ctx, models.ActionReturn)
	}
	return after, nil
}

// MarkLostOrDamaged closes an active loan as lost or damaged and raises its debt. The book's
// availability is left unchanged.
func (s *CirculationService) MarkLostOrDamaged(ctx context.Context, id int64, req dto.LostDamagedRequest) (*models.Transaction, *models.BadDebt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid loss payload")
	}
	kind := models.TransactionAction(req.Type)

	existing, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, nil, s.reject(kind, lookupError(err, "transaction not found", "failed to load transaction"))
	}

	release := s.locks.Lock(existing.BookID)
	defer release()

	now := s.now()
	var (
		before, loan *models.Transaction
		debt         *models.BadDebt
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.ledger.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "transaction not found", "failed to load transaction")
		}
		if current.Status != models.TransactionActive {
			return appErrors.Clone(appErrors.ErrNoActiveLoan, fmt.Sprintf("transaction %d is %s, not an active loan", id, current.Status))
		}
		snapshot := *current
		before = &snapshot

		current.Status = models.TransactionStatus(kind)
		current.Action = kind
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			current.Notes = notes
		}
		if err := s.ledger.Update(ctx, current); err != nil {
			return internalError(err, "failed to close loan")
		}
		loan = current

		debt, err = raiseDebt(ctx, debtCharge{
			repo:   s.debts,
			books:  s.books,
			loan:   current,
			kind:   models.DebtType(kind),
			amount: req.Amount,
			notes:  req.Notes,
			at:     now,
		})
		return err
	})
	if err != nil {
		return nil, nil, s.reject(kind, err)
	}

	s.audit.Record(ctx, AuditChange{Action: models.AuditUpdate, Resource: models.ResourceTransaction, ResourceID: loan.ID, Previous: before, Next: loan})
	s.audit.Record(ctx, AuditChange{Action: models.AuditCreate, Resource: models.ResourceDebt, ResourceID: debt.ID, Next: debt})
	s.succeed(ctx, kind)
	return loan, debt, nil
}

func (s *CirculationService) reject(action models.TransactionAction, err error) error {
	s.metrics.RecordCirculation(string(action), outcomeOf(err))
	return err
}

func (s *CirculationService) succeed(ctx context.Context, action models.TransactionAction) {
	s.metrics.RecordCirculation(string(action), "ok")
	if s.cache != nil {
		s.cache.Invalidate(ctx, dashboardCachePattern)
	}
}

func outcomeOf(err error) string {
	appErr := appErrors.FromError(err)
	if appErr.Status >= 500 {
		return "error"
	}
	return strings.ToLower(appErr.Code)
}
