package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-correction-api/internal/dto"
	"github.com/noah-isme/attendance-correction-api/internal/models"
	"github.com/noah-isme/attendance-correction-api/internal/repository"
)

func TestSeededMemoryStoresSupportTheWorkflow(t *testing.T) {
	records, err := repository.LoadAttendanceSeed(filepath.Join("..", "..", "configs", "attendance-seed.yaml"))
	require.NoError(t, err)

	store := repository.NewMemoryCorrectionStore(nil)
	attendance := repository.NewMemoryAttendanceStore(nil, records...)
	policy := DefaultCorrectionPolicy()
	registration := NewCorrectionRegistrationService(store, attendance, nil, policy, nil)
	approval := NewCorrectionApprovalService(store, attendance, policy, nil)

	in := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	out := time.Date(2024, 5, 1, 17, 0, 0, 0, time.UTC)
	created, err := registration.CreateRequest(context.Background(), dto.CreateCorrectionRequest{
		AttendanceRecordID: "att-100-0501",
		RequestedInTime:    &in,
		RequestedOutTime:   &out,
		Reason:             "badge reader was offline at the gate",
	}, "100")
	require.NoError(t, err)
	assert.Equal(t, models.CorrectionStatusPending, created.Status)

	approved, err := approval.ApproveRequest(context.Background(), created.ID, "200", "")
	require.NoError(t, err)
	assert.Equal(t, models.CorrectionStatusApproved, approved.Status)

	record, err := attendance.Get(context.Background(), "att-100-0501")
	require.NoError(t, err)
	assert.True(t, record.InTime.Equal(in))
}
