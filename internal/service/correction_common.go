package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-correction-api/internal/models"
	"github.com/noah-isme/attendance-correction-api/internal/repository"
	"github.com/noah-isme/attendance-correction-api/pkg/config"
	appErrors "github.com/noah-isme/attendance-correction-api/pkg/errors"
)

// Cache keys for the administrator pending queue.
const (
	pendingCountCachePrefix  = "corrections:pending:"
	pendingCountCachePattern = pendingCountCachePrefix + "*"
	// Outside the pattern above so invalidation never resets it.
	pendingCountVersionKey   = "corrections:pending-version"
)

// Decision actions reported to metrics.
const (
	DecisionActionApprove = "approve"
	DecisionActionReject  = "reject"
	DecisionActionCancel  = "cancel"
)

// CorrectionStore persists correction requests. Mutate serialises decisions per id.
type CorrectionStore interface {
	Now() time.Time
	Create(ctx context.Context, req *models.CorrectionRequest) error
	Save(ctx context.Context, req *models.CorrectionRequest) error
	FindByID(ctx context.Context, id string) (*models.CorrectionRequest, error)
	FindAll(ctx context.Context) ([]models.CorrectionRequest, error)
	FindPending(ctx context.Context, attendanceRecordID, employeeID string) (*models.CorrectionRequest, error)
	List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRequest, error)
	Count(ctx context.Context, filter models.CorrectionFilter) (int, error)
	Mutate(ctx context.Context, id string, fn repository.MutateFunc) (*models.CorrectionRequest, error)
}

// AttendanceGateway reads and writes the attendance record a request targets.
type AttendanceGateway interface {
	ReadSnapshot(ctx context.Context, attendanceRecordID string) (models.AttendanceSnapshot, error)
	WriteApprovedValues(ctx context.Context, attendanceRecordID string, values models.AttendanceSnapshot) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type cacheInvalidator interface {
	BumpVersion(ctx context.Context, key string) error
	Invalidate(ctx context.Context, pattern string) error
}

type decisionRecorder interface {
	RecordCorrectionDecision(action, outcome string)
}

// CorrectionPolicy carries the business limits of the workflow.
type CorrectionPolicy struct {
	MaxBatchSize    int
	ReasonMinLength int
	ReasonMaxLength int
	NoteMaxLength   int
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultCorrectionPolicy returns the limits used when nothing is configured.
func DefaultCorrectionPolicy() CorrectionPolicy {
	return CorrectionPolicy{
		MaxBatchSize:    50,
		ReasonMinLength: 10,
		ReasonMaxLength: 500,
		NoteMaxLength:   500,
		DefaultPageSize: 20,
		MaxPageSize:     100,
	}
}

// NewCorrectionPolicy maps configuration onto a policy, keeping defaults for unset values.
func NewCorrectionPolicy(cfg config.CorrectionsConfig) CorrectionPolicy {
	return CorrectionPolicy{
		MaxBatchSize:    cfg.MaxBatchSize,
		ReasonMinLength: cfg.ReasonMinLength,
		ReasonMaxLength: cfg.ReasonMaxLength,
		NoteMaxLength:   cfg.NoteMaxLength,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	}.withDefaults()
}

func (p CorrectionPolicy) withDefaults() CorrectionPolicy {
	d := DefaultCorrectionPolicy()
	if p.MaxBatchSize <= 0 {
		p.MaxBatchSize = d.MaxBatchSize
	}
	if p.ReasonMinLength <= 0 {
		p.ReasonMinLength = d.ReasonMinLength
	}
	if p.ReasonMaxLength <= 0 {
		p.ReasonMaxLength = d.ReasonMaxLength
	}
	if p.ReasonMaxLength < p.ReasonMinLength {
		p.ReasonMaxLength = p.ReasonMinLength
	}
	if p.NoteMaxLength <= 0 {
		p.NoteMaxLength = d.NoteMaxLength
	}
	if p.DefaultPageSize <= 0 {
		p.DefaultPageSize = d.DefaultPageSize
	}
	if p.MaxPageSize <= 0 {
		p.MaxPageSize = d.MaxPageSize
	}
	if p.DefaultPageSize > p.MaxPageSize {
		p.DefaultPageSize = p.MaxPageSize
	}
	return p
}

func (p CorrectionPolicy) validateReason(field, value string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(value))
	if length < p.ReasonMinLength || length > p.ReasonMaxLength {
		return appErrors.Clonef(appErrors.ErrValidation, "%s must be between %d and %d characters", field, p.ReasonMinLength, p.ReasonMaxLength)
	}
	return nil
}

func (p CorrectionPolicy) validateNote(value string) error {
	if utf8.RuneCountInString(strings.TrimSpace(value)) > p.NoteMaxLength {
		return appErrors.Clonef(appErrors.ErrValidation, "note must be at most %d characters", p.NoteMaxLength)
	}
	return nil
}

func (p CorrectionPolicy) page(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = p.DefaultPageSize
	}
	if size > p.MaxPageSize {
		size = p.MaxPageSize
	}
	return page, size
}

func requireActor(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return appErrors.Clone(appErrors.ErrValidation, field+" is required")
	}
	return nil
}

// errAttendanceChanged is raised inside an approval when the punch moved since submission.
var errAttendanceChanged = appErrors.Clone(appErrors.ErrConflict, "attendance record has already changed")

var errAlreadyProcessed = appErrors.Clone(appErrors.ErrConflict, "correction request already processed")

// mapStoreError converts repository sentinels into typed API errors.
func mapStoreError(err error, action string) error {
	var typed *appErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &typed):
		return typed
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "correction request not found")
	case errors.Is(err, models.ErrTransitionNotAllowed), errors.Is(err, repository.ErrRequestFinalized):
		return errAlreadyProcessed
	case errors.Is(err, repository.ErrDuplicatePending):
		return appErrors.Clone(appErrors.ErrConflict, "duplicate pending request")
	default:
		return appErrors.Internal(err, "failed to "+action)
	}
}

// decisionOutcome classifies an error for the decision counter.
func decisionOutcome(err error) string {
	if err == nil {
		return DecisionOutcomeSuccess
	}
	typed := appErrors.FromError(err)
	switch typed.Code {
	case appErrors.ErrConflict.Code:
		return DecisionOutcomeConflict
	case appErrors.ErrNotFound.Code:
		return DecisionOutcomeNotFound
	case appErrors.ErrValidation.Code, appErrors.ErrForbidden.Code:
		return DecisionOutcomeInvalid
	}
	return DecisionOutcomeError
}

// correctionEffects bundles the side channels every mutating service reports to.
type correctionEffects struct {
	audit     auditLogger
	cache     cacheInvalidator
	decisions decisionRecorder
	logger    *zap.Logger
	source    string
}

func (e *correctionEffects) emitAudit(ctx context.Context, actorID, action string, before, after *models.CorrectionRequest) {
	if e.audit == nil {
		return
	}
	entry := models.NewCorrectionAudit(action, actorID, before, after)
	entry.IPAddress = "system"
	entry.UserAgent = e.source
	if err := e.audit.CreateAuditLog(ctx, entry); err != nil {
		e.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func (e *correctionEffects) invalidatePending(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.BumpVersion(ctx, pendingCountVersionKey); err != nil {
		e.logger.Warn("failed to advance pending queue cache version", zap.Error(err))
	}
	if err := e.cache.Invalidate(ctx, pendingCountCachePattern); err != nil {
		e.logger.Warn("failed to invalidate pending queue cache", zap.Error(err))
	}
}

func (e *correctionEffects) recordDecision(action string, err error) {
	if e.decisions == nil {
		return
	}
	e.decisions.RecordCorrectionDecision(action, decisionOutcome(err))
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

// CorrectionServiceOption configures the side channels of a correction service.
type CorrectionServiceOption func(*correctionEffects)

// WithCorrectionAudit records audit entries for each state change.
func WithCorrectionAudit(audit auditLogger) CorrectionServiceOption {
	return func(e *correctionEffects) {
		e.audit = audit
	}
}

// WithCorrectionCache invalidates the pending queue cache after each state change.
func WithCorrectionCache(cache cacheInvalidator) CorrectionServiceOption {
	return func(e *correctionEffects) {
		e.cache = cache
	}
}

// WithDecisionMetrics counts decisions by action and outcome.
func WithDecisionMetrics(recorder decisionRecorder) CorrectionServiceOption {
	return func(e *correctionEffects) {
		e.decisions = recorder
	}
}

func newCorrectionEffects(logger *zap.Logger, source string, opts []CorrectionServiceOption) correctionEffects {
	if logger == nil {
		logger = zap.NewNop()
	}
	effects := correctionEffects{logger: logger, source: source}
	for _, opt := range opts {
		if opt != nil {
			opt(&effects)
		}
	}
	return effects
}
