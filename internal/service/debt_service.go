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

type debtStore interface {
	List(ctx context.Context, filter models.BadDebtFilter) ([]models.BadDebtDetail, int, error)
	FindByID(ctx context.Context, id int64) (*models.BadDebt, error)
	ExistsForTransaction(ctx context.Context, transactionID int64) (bool, error)
	Create(ctx context.Context, debt *models.BadDebt) error
	Update(ctx context.Context, debt *models.BadDebt) error
}

type transactionFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Transaction, error)
}

// DebtService manages bad debts raised against lost or damaged loans.
type DebtService struct {
	repo      debtStore
	ledger    transactionFinder
	books     bookFinder
	tx        transactor
	audit     auditRecorder
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// DebtServiceOption configures the service.
type DebtServiceOption func(*DebtService)

// WithDebtCache invalidates cached dashboards after debt mutations.
func WithDebtCache(cache cacheInvalidator) DebtServiceOption {
	return func(s *DebtService) {
		s.cache = cache
	}
}

// WithDebtClock overrides the time source.
func WithDebtClock(now func() time.Time) DebtServiceOption {
	return func(s *DebtService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDebtService constructs the debt service.
func NewDebtService(repo debtStore, ledger transactionFinder, books bookFinder, tx transactor, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, opts ...DebtServiceOption) *DebtService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &DebtService{
		repo:      repo,
		ledger:    ledger,
		books:     books,
		tx:        tx,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// List returns debts with display names.
func (s *DebtService) List(ctx context.Context, filter models.BadDebtFilter) ([]models.BadDebtDetail, *models.Pagination, error) {
	if filter.Status != "" && filter.Status != models.DebtPending && !filter.Status.Terminal() {
		return nil, nil, validationError(fmt.Errorf("unknown debt status %q", filter.Status), "invalid debt status")
	}
	debts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list debts")
	}
	if debts == nil {
		debts = []models.BadDebtDetail{}
	}
	return debts, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a debt by id.
func (s *DebtService) Get(ctx context.Context, id int64) (*models.BadDebt, error) {
	debt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "debt not found", "failed to load debt")
	}
	return debt, nil
}

// Add raises the pending debt of a loan already closed as lost or damaged. The amount
// defaults to the book price.
func (s *DebtService) Add(ctx context.Context, req dto.CreateBadDebtRequest) (*models.BadDebt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid debt payload")
	}

	var debt *models.BadDebt
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		loan, err := s.ledger.FindByID(ctx, req.TransactionID)
		if err != nil {
			return lookupError(err, "transaction not found", "failed to load transaction")
		}
		if err := chargeable(loan, models.DebtType(req.Type)); err != nil {
			return err
		}
		debt, err = raiseDebt(ctx, debtCharge{
			repo:   s.repo,
			books:  s.books,
			loan:   loan,
			kind:   models.DebtType(req.Type),
			amount: req.Amount,
			notes:  req.Notes,
			at:     s.now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditChange{Action: models.AuditCreate, Resource: models.ResourceDebt, ResourceID: debt.ID, Next: debt})
	s.invalidate(ctx)
	return debt, nil
}

// Update settles or edits a pending debt. Paid and waived debts are final.
func (s *DebtService) Update(ctx context.Context, id int64, req dto.UpdateBadDebtRequest) (*models.BadDebt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid debt payload")
	}

	var before, after *models.BadDebt
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "debt not found", "failed to load debt")
		}
		snapshot := *current
		before = &snapshot

		updated := *current
		if req.Status != nil {
			if err := transitionDebt(&updated, models.DebtStatus(*req.Status), s.now()); err != nil {
				return err
			}
		}
		if req.Amount != nil {
			if current.Status.Terminal() {
				return appErrors.Clone(appErrors.ErrInvalidTransition, "settled debts cannot change amount")
			}
			updated.Amount = *req.Amount
		}
		if req.Notes != nil {
			updated.Notes = strings.TrimSpace(*req.Notes)
		}
		if err := s.repo.Update(ctx, &updated); err != nil {
			return lookupError(err, "debt not found", "failed to update debt")
		}
		after = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditChange{Action: models.AuditUpdate, Resource: models.ResourceDebt, ResourceID: id, Previous: before, Next: after})
	s.invalidate(ctx)
	return after, nil
}

func (s *DebtService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, dashboardCachePattern)
	}
}

// transitionDebt allows pending -> paid and pending -> waived. Re-asserting the current
// status of a pending debt is a no-op.
func transitionDebt(debt *models.BadDebt, next models.DebtStatus, at time.Time) error {
	if next == debt.Status && !next.Terminal() {
		return nil
	}
	if debt.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("debt is already %s", debt.Status))
	}
	switch next {
	case models.DebtPaid:
		paid := at
		debt.PaidDate = &paid
	case models.DebtWaived:
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot move debt to %s", next))
	}
	debt.Status = next
	return nil
}

// chargeable accepts only loans already closed as lost or damaged, with a matching type.
// Active loans must go through MarkLostOrDamaged so the closure and its debt stay paired.
func chargeable(loan *models.Transaction, kind models.DebtType) error {
	switch loan.Status {
	case models.TransactionLost, models.TransactionDamaged:
	case models.TransactionActive:
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("transaction %d is still active; mark it lost or damaged instead", loan.ID))
	default:
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("transaction %d is %s and cannot carry a debt", loan.ID, loan.Status))
	}
	if kind.Valid() && string(kind) != string(loan.Status) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("transaction %d was closed as %s, not %s", loan.ID, loan.Status, kind))
	}
	return nil
}

// debtCharge carries everything needed to raise one debt for a loan.
type debtCharge struct {
	repo   debtStore
	books  bookFinder
	loan   *models.Transaction
	kind   models.DebtType
	amount *float64
	notes  string
	at     time.Time
}

// raiseDebt inserts the single pending debt of a loan. Must run inside the caller's
// transaction.
func raiseDebt(ctx context.Context, charge debtCharge) (*models.BadDebt, error) {
	if !charge.kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "debt type must be lost or damaged")
	}
	exists, err := charge.repo.ExistsForTransaction(ctx, charge.loan.ID)
	if err != nil {
		return nil, internalError(err, "failed to check existing debt")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "transaction already has a debt")
	}

	amount, err := chargeAmount(ctx, charge)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}

	debt := &models.BadDebt{
		TransactionID: charge.loan.ID,
		BookID:        charge.loan.BookID,
		StudentID:     charge.loan.StudentID,
		Amount:        amount,
		Date:          charge.at,
		Status:        models.DebtPending,
		Type:          charge.kind,
		Notes:         strings.TrimSpace(charge.notes),
	}
	if err := charge.repo.Create(ctx, debt); err != nil {
		return nil, internalError(err, "failed to create debt")
	}
	return debt, nil
}

func chargeAmount(ctx context.Context, charge debtCharge) (float64, error) {
	if charge.amount != nil {
		return *charge.amount, nil
	}
	book, err := charge.books.FindByID(ctx, charge.loan.BookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrValidation, "amount is required when the book no longer exists")
		}
		return 0, internalError(err, "failed to load book price")
	}
	return book.Price, nil
}
