package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/models"
)

type catalogTotaller interface {
	Totals(ctx context.Context) (models.CatalogTotals, error)
}

type loanCounter interface {
	CountActive(ctx context.Context, now time.Time) (int, int, error)
	TopBorrowed(ctx context.Context, limit int) ([]models.TopBook, error)
}

type debtTotaller interface {
	PendingTotals(ctx context.Context) (models.DebtTotals, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL    time.Duration
	TopBooksMax int
}

// DashboardServiceParams groups dependencies for the dashboard service.
type DashboardServiceParams struct {
	Books  catalogTotaller
	Ledger loanCounter
	Debts  debtTotaller
	Cache  dashboardCache
	Config DashboardServiceConfig
	Logger *zap.Logger
}

// DashboardService composes the librarian summary from catalog, ledger and debt totals.
type DashboardService struct {
	books  catalogTotaller
	ledger loanCounter
	debts  debtTotaller
	cache  dashboardCache
	logger *zap.Logger
	now    func() time.Time
	cfg    DashboardServiceConfig
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.TopBooksMax <= 0 {
		cfg.TopBooksMax = 5
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		books:  params.Books,
		ledger: params.Ledger,
		debts:  params.Debts,
		cache:  params.Cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		cfg:    cfg,
	}
}

// Summary returns the dashboard and whether it was served from cache.
func (s *DashboardService) Summary(ctx context.Context) (*models.DashboardSummary, bool, error) {
	if s.cache != nil {
		var cached models.DashboardSummary
		if s.cache.Get(ctx, dashboardCacheKey, &cached) {
			return &cached, true, nil
		}
	}

	summary, err := s.compose(ctx)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, dashboardCacheKey, summary, s.cfg.CacheTTL)
	}
	return summary, false, nil
}

func (s *DashboardService) compose(ctx context.Context) (*models.DashboardSummary, error) {
	now := s.now()
	catalog, err := s.books.Totals(ctx)
	if err != nil {
		return nil, internalError(err, "failed to load catalog totals")
	}
	active, overdue, err := s.ledger.CountActive(ctx, now)
	if err != nil {
		return nil, internalError(err, "failed to count loans")
	}
	top, err := s.ledger.TopBorrowed(ctx, s.cfg.TopBooksMax)
	if err != nil {
		return nil, internalError(err, "failed to rank books")
	}
	debts, err := s.debts.PendingTotals(ctx)
	if err != nil {
		return nil, internalError(err, "failed to load debt totals")
	}
	if top == nil {
		top = []models.TopBook{}
	}

	return &models.DashboardSummary{
		TotalTitles:       catalog.Titles,
		TotalCopies:       catalog.Copies,
		AvailableCopies:   catalog.Available,
		BorrowedCopies:    catalog.Copies - catalog.Available,
		ActiveLoans:       active,
		OverdueLoans:      overdue,
		PendingDebts:      debts.Count,
		PendingDebtAmount: debts.Amount,
		TopBooks:          top,
		GeneratedAt:       now,
	}, nil
}
