package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-correction-api/internal/models"
	"github.com/noah-isme/attendance-correction-api/pkg/jobs"
	"github.com/noah-isme/attendance-correction-api/pkg/middleware/requestid"
)

func TestAuditDispatcherPersistsAsynchronously(t *testing.T) {
	writer := &auditRecorder{}
	dispatcher := NewAuditDispatcher(writer, AuditDispatcherConfig{Workers: 2, RetryDelay: 10 * time.Millisecond}, zap.NewNop())
	dispatcher.Start(context.Background())

	ctx := requestid.WithContext(context.Background(), "req-123")
	entry := &models.AuditLog{Action: models.AuditActionCorrectionApprove, Resource: models.AuditResourceCorrection}
	require.NoError(t, dispatcher.CreateAuditLog(ctx, entry))
	assert.Empty(t, entry.RequestID)

	dispatcher.Stop()

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.entries, 1)
	assert.Equal(t, "req-123", writer.entries[0].RequestID)
	assert.False(t, writer.entries[0].CreatedAt.IsZero())
}

func TestAuditDispatcherRefusesAfterStop(t *testing.T) {
	dispatcher := NewAuditDispatcher(&auditRecorder{}, AuditDispatcherConfig{}, nil)
	dispatcher.Start(context.Background())
	dispatcher.Stop()

	err := dispatcher.CreateAuditLog(context.Background(), &models.AuditLog{Action: models.AuditActionCorrectionCreate})
	require.ErrorIs(t, err, jobs.ErrQueueClosed)
}

func TestCorrectionsSurviveQueuedAuditFailure(t *testing.T) {
	dispatcher := NewAuditDispatcher(&auditRecorder{}, AuditDispatcherConfig{}, nil)
	f := newCorrectionFixture(t)
	registration := NewCorrectionRegistrationService(f.store, f.attendance, nil, DefaultCorrectionPolicy(), nil, WithCorrectionAudit(dispatcher))

	created, err := registration.CreateRequest(context.Background(), validCreate("1"), "100")
	require.NoError(t, err)
	assert.Equal(t, models.CorrectionStatusPending, created.Status)
}
