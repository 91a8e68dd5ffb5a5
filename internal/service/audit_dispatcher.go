package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-correction-api/internal/models"
	"github.com/noah-isme/attendance-correction-api/pkg/jobs"
	"github.com/noah-isme/attendance-correction-api/pkg/middleware/requestid"
)

const auditJobType = "audit_log"

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditDispatcherConfig tunes the background writer.
type AuditDispatcherConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// AuditDispatcher hands audit entries to a worker queue so request paths never wait on
// the audit table.
type AuditDispatcher struct {
	queue  *jobs.Queue
	writer auditWriter
	logger *zap.Logger
}

// NewAuditDispatcher wires a queue that persists entries through writer.
func NewAuditDispatcher(writer auditWriter, cfg AuditDispatcherConfig, logger *zap.Logger) *AuditDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &AuditDispatcher{writer: writer, logger: logger}
	d.queue = jobs.NewQueue("audit", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return d
}

// Start launches the workers.
func (d *AuditDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop flushes accepted entries and stops the workers.
func (d *AuditDispatcher) Stop() {
	d.queue.Stop()
}

// CreateAuditLog enqueues entry. The request id of ctx is attached when missing.
func (d *AuditDispatcher) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry == nil {
		return nil
	}
	copied := *entry
	if copied.RequestID == "" {
		copied.RequestID = requestid.FromContext(ctx)
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	if err := d.queue.Enqueue(jobs.Job{Type: auditJobType, Payload: &copied}); err != nil {
		return fmt.Errorf("dispatch audit log: %w", err)
	}
	return nil
}

func (d *AuditDispatcher) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		d.logger.Error("unexpected audit payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return d.writer.CreateAuditLog(ctx, entry)
}
