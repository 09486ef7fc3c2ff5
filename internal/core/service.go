package core

import (
	"context"
	"time"

	blobcore "raffleledger/internal/blob/core"
	"raffleledger/internal/infra/persistence/memory"
	"raffleledger/pkg/domain"
)

// Logger is the structured logging surface used by the service. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock supplies the current time for ledger timestamps and audit entries.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface. A nil ClockFunc reports time.Now in UTC.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span around a service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

// AuditStatus reports whether an audited operation succeeded.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one audited mutating operation.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Status    AuditStatus
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries for mutating operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the service clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder installs an audit recorder.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithRulesEngine replaces the default business-policy rules. A nil engine disables rule evaluation.
func WithRulesEngine(engine *RulesEngine) Option {
	return func(s *Service) {
		s.engine = engine
	}
}

// WithArchiveStore sets the blob store that receives ledger archives.
func WithArchiveStore(store blobcore.Store) Option {
	return func(s *Service) {
		s.archives = store
	}
}

// Service exposes the raffle ledger operations. Every forward mutation and its
// history entry are written in one transaction; undo applies the compensating
// write and flips the entry's undone flag in one transaction.
type Service struct {
	store    domain.PersistentStore
	engine   *RulesEngine
	archives blobcore.Store
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
}

// NewService constructs a service backed by the supplied store with the default rules engine.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		engine:  NewDefaultRulesEngine(),
		logger:  noopLogger{},
		clock:   ClockFunc(nil),
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store using engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(), append([]Option{WithRulesEngine(engine)}, opts...)...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// RulesEngine returns the engine evaluated on forward mutations.
func (s *Service) RulesEngine() *RulesEngine {
	return s.engine
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) now() time.Time {
	// SQL backends keep millisecond precision; truncating keeps memory and disk identical.
	return s.clock.Now().Truncate(time.Millisecond)
}

// run wraps an operation with tracing, metrics, logging and auditing. fn
// returns the identifier of the entity it touched, if known.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	entityID, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logger.Error("raffle ledger operation failed", "operation", op, "entity_id", entityID, "error", err)
		s.recordAudit(ctx, op, entityID, AuditStatusError, duration)
		return err
	}
	s.logger.Debug("raffle ledger operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	s.recordAudit(ctx, op, entityID, AuditStatusSuccess, duration)
	return nil
}

type operationMeta struct {
	entity EntityType
	action Action
}

// Operation names reported to tracers, metrics and audit recorders.
const (
	opCreateRaffle          = "create_raffle"
	opUpdateRaffle          = "update_raffle"
	opSetFinalized          = "set_finalized"
	opDeleteRaffle          = "delete_raffle"
	opAddSale               = "add_sale"
	opUpdateSale            = "update_sale"
	opDeleteSale            = "delete_sale"
	opAddCost               = "add_cost"
	opUpdateCost            = "update_cost"
	opDeleteCost            = "delete_cost"
	opRecordReimbursement   = "record_reimbursement"
	opClearReimbursement    = "clear_reimbursement"
	opUndo                  = "undo"
	opListRaffles           = "list_raffles"
	opGetRaffle             = "get_raffle"
	opListHistory           = "list_history"
	opGetHistory            = "get_history"
	opPendingReimbursements = "pending_reimbursements"
	opExportArchive         = "export_archive"
)

var auditedOperations = map[string]operationMeta{
	opCreateRaffle:        {entity: EntityRaffle, action: ActionCreate},
	opUpdateRaffle:        {entity: EntityRaffle, action: ActionUpdate},
	opSetFinalized:        {entity: EntityRaffle, action: ActionUpdate},
	opDeleteRaffle:        {entity: EntityRaffle, action: ActionDelete},
	opAddSale:             {entity: EntitySale, action: ActionCreate},
	opUpdateSale:          {entity: EntitySale, action: ActionUpdate},
	opDeleteSale:          {entity: EntitySale, action: ActionDelete},
	opAddCost:             {entity: EntityCost, action: ActionCreate},
	opUpdateCost:          {entity: EntityCost, action: ActionUpdate},
	opDeleteCost:          {entity: EntityCost, action: ActionDelete},
	opRecordReimbursement: {entity: EntityCost, action: ActionUpdate},
	opClearReimbursement:  {entity: EntityCost, action: ActionUpdate},
	opUndo:                {entity: EntityHistory, action: ActionUpdate},
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, status AuditStatus, duration time.Duration) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    status,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, AuditStatusSuccess, duration)
}

// ledgerRecord is what a forward mutation reports so the matching history entry can be written.
type ledgerRecord struct {
	action      ActionType
	raffleID    string
	raffleTitle string
	entityID    string
	before      *Snapshot
	after       *Snapshot
}

func (r ledgerRecord) historyLog(ts time.Time) HistoryLog {
	return HistoryLog{
		Timestamp:   ts,
		ActionType:  r.action,
		Description: domain.DescribeAction(r.action, r.raffleTitle, r.before, r.after),
		RaffleID:    r.raffleID,
		RaffleTitle: r.raffleTitle,
		EntityID:    r.entityID,
		BeforeState: r.before,
		AfterState:  r.after,
	}
}

// mutate runs fn and the history append in one transaction. Rules are
// evaluated against the unit's changes before the entry is written.
func (s *Service) mutate(ctx context.Context, op string, fn func(Transaction) (ledgerRecord, error)) (HistoryLog, error) {
	var written HistoryLog
	err := s.run(ctx, op, func(ctx context.Context) (string, error) {
		var entityID string
		err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			rec, err := fn(tx)
			if err != nil {
				return err
			}
			entityID = rec.entityID
			if entityID == "" {
				entityID = rec.raffleID
			}
			if err := s.evaluateRules(ctx, tx); err != nil {
				return err
			}
			written, err = tx.AppendHistory(rec.historyLog(s.now()))
			return err
		})
		return entityID, err
	})
	if err != nil {
		return HistoryLog{}, err
	}
	return written, nil
}

func (s *Service) evaluateRules(ctx context.Context, tx Transaction) error {
	res, err := s.engine.Evaluate(ctx, tx, tx.Changes())
	if err != nil {
		return err
	}
	for _, v := range res.Violations {
		switch v.Severity {
		case SeverityWarn:
			s.logger.Warn("rule warning", "rule", v.Rule, "entity", v.Entity, "entity_id", v.EntityID, "message", v.Message)
		case SeverityLog:
			s.logger.Info("rule notice", "rule", v.Rule, "entity", v.Entity, "entity_id", v.EntityID, "message", v.Message)
		}
	}
	if res.HasBlocking() {
		return RuleViolationError{Result: res}
	}
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}
