package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-correction-api/internal/dto"
	"github.com/noah-isme/attendance-correction-api/internal/models"
	"github.com/noah-isme/attendance-correction-api/internal/repository"
	appErrors "github.com/noah-isme/attendance-correction-api/pkg/errors"
)

var correctionNow = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

func at(hour, minute int) *time.Time {
	t := time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
	return &t
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []models.AuditLog
	err     error
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, *log)
	return nil
}

func (a *auditRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, entry := range a.entries {
		out[i] = entry.Action
	}
	return out
}

type invalidationRecorder struct {
	mu       sync.Mutex
	patterns []string
	bumps    int
}

func (r *invalidationRecorder) BumpVersion(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumps++
	return nil
}

func (r *invalidationRecorder) Invalidate(ctx context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
	return nil
}

type correctionFixture struct {
	store        *repository.MemoryCorrectionStore
	attendance   *repository.MemoryAttendanceStore
	audit        *auditRecorder
	cache        *invalidationRecorder
	metrics      *MetricsService
	registration *CorrectionRegistrationService
	approval     *CorrectionApprovalService
	cancellation *CorrectionCancellationService
	bulk         *CorrectionBulkService
	query        *CorrectionQueryService
}

func newCorrectionFixture(t *testing.T, records ...models.AttendanceRecord) *correctionFixture {
	t.Helper()
	clock := func() time.Time { return correctionNow }
	if len(records) == 0 {
		records = []models.AttendanceRecord{
			{ID: "1", EmployeeID: "100", WorkDate: *at(0, 0), InTime: at(9, 30), OutTime: at(17, 0)},
			{ID: "2", EmployeeID: "100", WorkDate: *at(0, 0), InTime: at(10, 0)},
			{ID: "3", EmployeeID: "101", WorkDate: *at(0, 0), InTime: at(8, 45), OutTime: at(16, 0)},
		}
	}
	f := &correctionFixture{
		store:      repository.NewMemoryCorrectionStore(clock),
		attendance: repository.NewMemoryAttendanceStore(clock, records...),
		audit:      &auditRecorder{},
		cache:      &invalidationRecorder{},
		metrics:    NewMetricsService(),
	}
	policy := DefaultCorrectionPolicy()
	logger := zap.NewNop()
	opts := []CorrectionServiceOption{
		WithCorrectionAudit(f.audit),
		WithCorrectionCache(f.cache),
		WithDecisionMetrics(f.metrics),
	}
	f.registration = NewCorrectionRegistrationService(f.store, f.attendance, nil, policy, logger, opts...)
	f.approval = NewCorrectionApprovalService(f.store, f.attendance, policy, logger, opts...)
	f.cancellation = NewCorrectionCancellationService(f.store, policy, logger, opts...)
	f.bulk = NewCorrectionBulkService(f.approval, policy, logger)
	f.query = NewCorrectionQueryService(f.store, policy, logger)
	return f
}

func validCreate(attendanceID string) dto.CreateCorrectionRequest {
	return dto.CreateCorrectionRequest{
		AttendanceRecordID: attendanceID,
		RequestedInTime:    at(9, 0),
		RequestedOutTime:   at(18, 0),
		Reason:             "family emergency, need correction",
		EmployeeName:       "Budi Santoso",
	}
}

func (f *correctionFixture) submit(t *testing.T, employeeID, attendanceID string) *models.CorrectionRequest {
	t.Helper()
	created, err := f.registration.CreateRequest(context.Background(), validCreate(attendanceID), employeeID)
	require.NoError(t, err)
	return created
}

func requireAppError(t *testing.T, err error, kind *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	typed := appErrors.FromError(err)
	require.Equal(t, kind.Code, typed.Code, "unexpected error: %v", err)
	require.Equal(t, kind.Status, typed.Status)
}
