package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-library-api/api/swagger"
	"github.com/noah-isme/sma-library-api/internal/handler"
	"github.com/noah-isme/sma-library-api/internal/middleware"
	"github.com/noah-isme/sma-library-api/internal/repository"
	"github.com/noah-isme/sma-library-api/internal/service"
	"github.com/noah-isme/sma-library-api/pkg/cache"
	"github.com/noah-isme/sma-library-api/pkg/config"
	"github.com/noah-isme/sma-library-api/pkg/database"
	"github.com/noah-isme/sma-library-api/pkg/jobs"
	"github.com/noah-isme/sma-library-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-library-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-library-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-library-api/pkg/storage"
)

// Services exposes the wired use-cases so commands other than serve can drive them.
type Services struct {
	Books       *service.BookService
	Students    *service.StudentService
	Taxonomy    *service.TaxonomyService
	Circulation *service.CirculationService
	Debts       *service.DebtService
	Audit       *service.AuditService
	Dashboard   *service.DashboardService
	Imports     *service.ImportService
	Exports     *service.ExportService
	Metrics     *service.MetricsService
}

// App owns the process-wide resources: database, optional redis, the audit queue and
// the services built on top of them.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sqlx.DB
	Services Services

	redis      *redis.Client
	auditQueue *jobs.Queue
	pin        *service.PINChecker
}

// New opens the database, brings the schema up to date and wires every service.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repository.NewMigrator(db, log).Up(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{Config: cfg, Logger: log, DB: db, pin: service.NewPINChecker(cfg.Boundary.PINHash)}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	validate := validator.New()
	metrics := service.NewMetricsService()

	books := repository.NewBookRepository(a.DB)
	students := repository.NewStudentRepository(a.DB)
	ledger := repository.NewTransactionRepository(a.DB)
	debts := repository.NewBadDebtRepository(a.DB)
	audits := repository.NewAuditRepository(a.DB)
	taxonomy := repository.NewTaxonomyRepository(a.DB)
	tx := repository.NewTransactor(a.DB)

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			a.Logger.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
		} else {
			a.redis = client
			cacheRepo = repository.NewCacheRepository(client)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, a.Logger, cacheRepo != nil)

	auditOpts := []service.AuditServiceOption{
		service.WithAuditUserID(cfg.Audit.UserID),
		service.WithAuditMetrics(metrics),
	}
	var auditSvc *service.AuditService
	if cfg.Audit.Async {
		a.auditQueue = jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
			return auditSvc.HandleJob(ctx, job)
		}, jobs.QueueConfig{
			Workers:    cfg.Audit.Workers,
			BufferSize: cfg.Audit.Buffer,
			MaxRetries: cfg.Audit.Retries,
			Logger:     a.Logger.Named("audit-queue"),
			OnGiveUp: func(job jobs.Job, err error) {
				auditSvc.GiveUp(job, err)
			},
		})
		auditOpts = append(auditOpts, service.WithAuditQueue(a.auditQueue))
	}
	auditSvc = service.NewAuditService(audits, a.Logger.Named("audit"), auditOpts...)
	if a.auditQueue != nil {
		a.auditQueue.Start(context.Background())
	}

	locks := service.NewBookLocks()
	bookSvc := service.NewBookService(books, tx, auditSvc, validate, a.Logger.Named("books"),
		service.WithBookLocks(locks), service.WithBookCache(cacheSvc))
	studentSvc := service.NewStudentService(students, auditSvc, validate, a.Logger.Named("students"))
	circulationSvc := service.NewCirculationService(service.CirculationStores{
		Books:    books,
		Students: students,
		Ledger:   ledger,
		Debts:    debts,
	}, tx, auditSvc, validate, a.Logger.Named("circulation"),
		service.WithLoanPeriod(cfg.Circulation.LoanPeriod),
		service.WithCirculationLocks(locks),
		service.WithCirculationCache(cacheSvc),
		service.WithCirculationMetrics(metrics))
	debtSvc := service.NewDebtService(debts, ledger, books, tx, auditSvc, validate, a.Logger.Named("debts"),
		service.WithDebtCache(cacheSvc))

	a.Services = Services{
		Books:       bookSvc,
		Students:    studentSvc,
		Taxonomy:    service.NewTaxonomyService(taxonomy, validate, a.Logger.Named("taxonomy")),
		Circulation: circulationSvc,
		Debts:       debtSvc,
		Audit:       auditSvc,
		Dashboard: service.NewDashboardService(service.DashboardServiceParams{
			Books:  books,
			Ledger: ledger,
			Debts:  debts,
			Cache:  cacheSvc,
			Config: service.DashboardServiceConfig{CacheTTL: cfg.Cache.TTL},
			Logger: a.Logger.Named("dashboard"),
		}),
		Imports: service.NewImportService(bookSvc, studentSvc, metrics, a.Logger.Named("imports")),
		Metrics: metrics,
	}

	if cfg.Exports.Enabled {
		store, err := newExportStore(ctx, cfg.Exports)
		if err != nil {
			return fmt.Errorf("export storage: %w", err)
		}
		a.Services.Exports = service.NewExportService(service.ExportSources{
			Books:        books,
			Students:     students,
			Transactions: ledger,
			Debts:        debts,
			Audit:        audits,
		}, store, storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
			service.ExportConfig{APIPrefix: cfg.APIPrefix}, validate, a.Logger.Named("exports"))
	}
	return nil
}

func newExportStore(ctx context.Context, cfg config.ExportsConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "", config.StorageFilesystem:
		return storage.NewLocalStorage(cfg.StorageDir)
	case config.StorageS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	}
	return nil, fmt.Errorf("unsupported export driver %q", cfg.Driver)
}

// Router builds the gin engine with the shared middleware chain and every route.
func (a *App) Router() *gin.Engine {
	if a.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(a.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Services.Metrics))

	svc := a.Services
	h := handler.Handlers{
		Books:        handler.NewBookHandler(svc.Books),
		Students:     handler.NewStudentHandler(svc.Students),
		Transactions: handler.NewTransactionHandler(svc.Circulation),
		Debts:        handler.NewDebtHandler(svc.Debts),
		Audit:        handler.NewAuditHandler(svc.Audit),
		Taxonomy:     handler.NewTaxonomyHandler(svc.Taxonomy),
		Imports:      handler.NewImportHandler(svc.Imports),
		Dashboard:    handler.NewDashboardHandler(svc.Dashboard),
		System:       handler.NewSystemHandler(svc.Metrics, a.DB),
	}
	if svc.Exports != nil {
		h.Exports = handler.NewExportHandler(svc.Exports)
	}
	handler.RegisterRoutes(r, a.Config.APIPrefix, h, a.pin)

	if a.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	return r
}

// Close drains the audit queue before releasing connections.
func (a *App) Close() {
	if a.auditQueue != nil {
		a.auditQueue.Stop()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

// ShutdownTimeout bounds how long serve waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second
