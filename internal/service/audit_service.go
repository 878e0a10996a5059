package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/pkg/jobs"
)

const auditJobType = "audit.persist"

// DefaultAuditUserID is recorded when no operator identity is configured.
const DefaultAuditUserID = "librarian"

type auditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

type auditQueue interface {
	Enqueue(job jobs.Job) error
}

// auditRecorder is what mutating services depend on.
type auditRecorder interface {
	Record(ctx context.Context, change AuditChange) RiskAssessment
}

// AuditChange describes one committed mutation. Previous is nil for creates, Next is nil for deletes.
type AuditChange struct {
	Action     models.AuditAction
	Resource   models.ResourceType
	ResourceID int64
	Previous   models.Snapshotter
	Next       models.Snapshotter
}

// AuditService classifies mutations and persists the risky ones. Persistence never fails the
// caller: errors are logged and counted.
type AuditService struct {
	repo    auditStore
	queue   auditQueue
	logger  *zap.Logger
	metrics *MetricsService
	userID  string
	now     func() time.Time
}

// AuditServiceOption configures the service.
type AuditServiceOption func(*AuditService)

// WithAuditQueue persists entries asynchronously through the queue.
func WithAuditQueue(queue auditQueue) AuditServiceOption {
	return func(s *AuditService) {
		s.queue = queue
	}
}

// WithAuditUserID overrides the recorded operator identity.
func WithAuditUserID(userID string) AuditServiceOption {
	return func(s *AuditService) {
		if userID != "" {
			s.userID = userID
		}
	}
}

// WithAuditMetrics attaches metrics.
func WithAuditMetrics(metrics *MetricsService) AuditServiceOption {
	return func(s *AuditService) {
		s.metrics = metrics
	}
}

// WithAuditClock overrides the timestamp source.
func WithAuditClock(now func() time.Time) AuditServiceOption {
	return func(s *AuditService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAuditService constructs the audit service.
func NewAuditService(repo auditStore, logger *zap.Logger, opts ...AuditServiceOption) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AuditService{
		repo:   repo,
		logger: logger,
		userID: DefaultAuditUserID,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Record evaluates the change and, when risky, hands an audit entry to persistence.
func (s *AuditService) Record(ctx context.Context, change AuditChange) RiskAssessment {
	assessment := EvaluateRisk(change.Action, change.Resource, snapshotOf(change.Previous), snapshotOf(change.Next))
	if !assessment.Risky {
		return assessment
	}

	entry := &models.AuditLog{
		Timestamp:     s.now(),
		Action:        change.Action,
		ResourceType:  change.Resource,
		ResourceID:    change.ResourceID,
		UserID:        s.userID,
		PreviousState: stateJSON(change.Previous),
		NewState:      stateJSON(change.Next),
		RiskLevel:     assessment.Level,
		Notes:         assessment.Notes,
	}
	s.metrics.RecordRiskFlag(string(assessment.Level), string(change.Resource))
	s.logger.Info("risky mutation",
		zap.String("resource", string(change.Resource)),
		zap.Int64("resource_id", change.ResourceID),
		zap.String("action", string(change.Action)),
		zap.String("risk_level", string(assessment.Level)),
		zap.String("notes", assessment.Notes),
	)

	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: auditJobType, Payload: entry})
		if err == nil {
			return assessment
		}
		s.logger.Warn("audit queue unavailable, writing inline", zap.Error(err))
	}
	s.persist(context.WithoutCancel(ctx), entry)
	return assessment
}

// HandleJob is the queue handler persisting one audit entry.
func (s *AuditService) HandleJob(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return s.repo.Create(ctx, entry)
}

// GiveUp is the queue callback for entries that could not be persisted.
func (s *AuditService) GiveUp(job jobs.Job, err error) {
	s.metrics.RecordAuditFailure()
	s.logger.Warn("audit entry dropped", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err))
}

// List returns audit entries newest first.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error) {
	if filter.RiskLevel != "" && !filter.RiskLevel.Valid() {
		return nil, nil, validationError(fmt.Errorf("unknown risk level %q", filter.RiskLevel), "invalid risk level")
	}
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list audit logs")
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, paginate(filter.Page, filter.PageSize, total), nil
}

func (s *AuditService) persist(ctx context.Context, entry *models.AuditLog) {
	if err := s.repo.Create(ctx, entry); err != nil {
		s.metrics.RecordAuditFailure()
		s.logger.Warn("failed to persist audit log", zap.String("resource", string(entry.ResourceType)), zap.Int64("resource_id", entry.ResourceID), zap.Error(err))
	}
}

func snapshotOf(entity models.Snapshotter) *models.RiskSnapshot {
	if entity == nil {
		return nil
	}
	return entity.RiskSnapshot()
}

func stateJSON(entity models.Snapshotter) types.JSONText {
	if snapshotOf(entity) == nil {
		return types.JSONText("null")
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return types.JSONText("null")
	}
	return types.JSONText(raw)
}
