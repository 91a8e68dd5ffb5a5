package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-correction-api/internal/dto"
	"github.com/noah-isme/attendance-correction-api/internal/models"
	appErrors "github.com/noah-isme/attendance-correction-api/pkg/errors"
)

func strPtr(s string) *string { return &s }

func TestBulkApproveCollectsFailures(t *testing.T) {
	records := make([]models.AttendanceRecord, 0, 5)
	for i := 1; i <= 5; i++ {
		records = append(records, models.AttendanceRecord{ID: fmt.Sprint(i), EmployeeID: "100", InTime: at(9, 30), OutTime: at(17, 0)})
	}
	f := newCorrectionFixture(t, records...)
	ctx := context.Background()

	var ids []string
	for i := 1; i <= 5; i++ {
		ids = append(ids, f.submit(t, "100", fmt.Sprint(i)).ID)
	}
	_, err := f.approval.RejectRequest(ctx, ids[1], "200", "no supporting evidence")
	require.NoError(t, err)
	_, err = f.cancellation.CancelRequest(ctx, ids[3], "100", "submitted by mistake")
	require.NoError(t, err)

	result, err := f.bulk.BulkApprove(ctx, dto.BulkApproveRequest{
		IDs:  []*string{strPtr(ids[0]), strPtr(ids[1]), nil, strPtr(ids[2]), strPtr("missing"), strPtr(ids[3]), strPtr(ids[4])},
		Note: "batch confirmed",
	}, "200")
	require.NoError(t, err)

	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 3, result.FailureCount)
	assert.ElementsMatch(t, []string{ids[1], "missing", ids[3]}, result.FailedIDs)

	for _, id := range []string{ids[0], ids[2], ids[4]} {
		stored, err := f.store.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.CorrectionStatusApproved, stored.Status)
	}
	rejected, err := f.store.FindByID(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.CorrectionStatusRejected, rejected.Status)
}

func TestBulkRejectContinuesPastConflicts(t *testing.T) {
	f := newCorrectionFixture(t)
	ctx := context.Background()
	first := f.submit(t, "100", "1")
	second := f.submit(t, "100", "2")
	_, err := f.approval.ApproveRequest(ctx, first.ID, "200", "")
	require.NoError(t, err)

	result, err := f.bulk.BulkReject(ctx, dto.BulkRejectRequest{
		IDs:    []*string{strPtr(first.ID), strPtr(second.ID)},
		Reason: "no supporting evidence",
	}, "200")
	require.NoError(t, err)
	assert.Equal(t, &dto.BulkResult{SuccessCount: 1, FailureCount: 1, FailedIDs: []string{first.ID}}, result)
}

func TestBulkValidatesWholeCallUpFront(t *testing.T) {
	f := newCorrectionFixture(t)
	ctx := context.Background()
	created := f.submit(t, "100", "1")

	tooMany := make([]*string, 51)
	for i := range tooMany {
		tooMany[i] = strPtr(fmt.Sprintf("id-%d", i))
	}

	cases := []struct {
		name string
		run  func() error
	}{
		{"empty batch", func() error {
			_, err := f.bulk.BulkApprove(ctx, dto.BulkApproveRequest{}, "200")
			return err
		}},
		{"only null ids", func() error {
			_, err := f.bulk.BulkApprove(ctx, dto.BulkApproveRequest{IDs: []*string{nil, nil}}, "200")
			return err
		}},
		{"batch above limit", func() error {
			_, err := f.bulk.BulkApprove(ctx, dto.BulkApproveRequest{IDs: tooMany}, "200")
			return err
		}},
		{"missing approver", func() error {
			_, err := f.bulk.BulkApprove(ctx, dto.BulkApproveRequest{IDs: []*string{strPtr(created.ID)}}, "")
			return err
		}},
		{"short rejection reason", func() error {
			_, err := f.bulk.BulkReject(ctx, dto.BulkRejectRequest{IDs: []*string{strPtr(created.ID)}, Reason: "nope"}, "200")
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requireAppError(t, tc.run(), appErrors.ErrValidation)
		})
	}

	stored, err := f.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CorrectionStatusPending, stored.Status)
}

func TestBulkRespectsConfiguredLimit(t *testing.T) {
	f := newCorrectionFixture(t)
	policy := DefaultCorrectionPolicy()
	policy.MaxBatchSize = 2
	bulk := NewCorrectionBulkService(f.approval, policy, nil)

	_, err := bulk.BulkApprove(context.Background(), dto.BulkApproveRequest{IDs: []*string{strPtr("a"), strPtr("b"), strPtr("c")}}, "200")
	requireAppError(t, err, appErrors.ErrValidation)

	result, err := bulk.BulkApprove(context.Background(), dto.BulkApproveRequest{IDs: []*string{strPtr("a"), strPtr("b")}}, "200")
	require.NoError(t, err)
	assert.Equal(t, 2, result.FailureCount)
}
