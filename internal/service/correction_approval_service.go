package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-correction-api/internal/models"
	appErrors "github.com/noah-isme/attendance-correction-api/pkg/errors"
)

// CorrectionApprovalService applies administrator decisions to single requests.
type CorrectionApprovalService struct {
	store      CorrectionStore
	attendance AttendanceGateway
	policy     CorrectionPolicy
	effects    correctionEffects
}

// NewCorrectionApprovalService constructs the service.
func NewCorrectionApprovalService(store CorrectionStore, attendance AttendanceGateway, policy CorrectionPolicy, logger *zap.Logger, opts ...CorrectionServiceOption) *CorrectionApprovalService {
	return &CorrectionApprovalService{
		store:      store,
		attendance: attendance,
		policy:     policy.withDefaults(),
		effects:    newCorrectionEffects(logger, "correction-approval", opts),
	}
}

// ApproveRequest approves a PENDING request and writes the requested values through to
// the attendance record. The request is refused when the record no longer matches the
// values captured at submission.
func (s *CorrectionApprovalService) ApproveRequest(ctx context.Context, id, approverID, note string) (result *models.CorrectionRequest, err error) {
	defer func() { s.effects.recordDecision(DecisionActionApprove, err) }()

	if err = requireActor("approver id", approverID); err != nil {
		return nil, err
	}
	if err = s.policy.validateNote(note); err != nil {
		return nil, err
	}

	var before *models.CorrectionRequest
	updated, err := s.store.Mutate(ctx, id, func(ctx context.Context, req *models.CorrectionRequest) error {
		if req.Status.IsTerminal() {
			return errAlreadyProcessed
		}
		current, readErr := s.attendance.ReadSnapshot(ctx, req.AttendanceRecordID)
		if readErr != nil {
			if errors.Is(readErr, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
			}
			return appErrors.Internal(readErr, "failed to read attendance record")
		}
		if !current.Matches(req.Original()) {
			return errAttendanceChanged
		}
		before = req.Clone()
		if err := req.Approve(strings.TrimSpace(approverID), optionalString(note), s.store.Now()); err != nil {
			return err
		}
		if err := s.attendance.WriteApprovedValues(ctx, req.AttendanceRecordID, req.Requested()); err != nil {
			return appErrors.Internal(err, "failed to update attendance record")
		}
		return nil
	})
	if err != nil {
		err = mapStoreError(err, "approve correction request")
		return nil, err
	}

	s.effects.emitAudit(ctx, approverID, models.AuditActionCorrectionApprove, before, updated)
	s.effects.invalidatePending(ctx)
	return updated, nil
}

// RejectRequest rejects a PENDING request. The attendance record is left untouched.
func (s *CorrectionApprovalService) RejectRequest(ctx context.Context, id, rejecterID, reason string) (result *models.CorrectionRequest, err error) {
	defer func() { s.effects.recordDecision(DecisionActionReject, err) }()

	if err = requireActor("rejecter id", rejecterID); err != nil {
		return nil, err
	}

	var before *models.CorrectionRequest
	updated, err := s.store.Mutate(ctx, id, func(ctx context.Context, req *models.CorrectionRequest) error {
		if req.Status.IsTerminal() {
			return errAlreadyProcessed
		}
		if err := s.policy.validateReason("rejection reason", reason); err != nil {
			return err
		}
		before = req.Clone()
		return req.Reject(strings.TrimSpace(rejecterID), strings.TrimSpace(reason), s.store.Now())
	})
	if err != nil {
		err = mapStoreError(err, "reject correction request")
		return nil, err
	}

	s.effects.emitAudit(ctx, rejecterID, models.AuditActionCorrectionReject, before, updated)
	s.effects.invalidatePending(ctx)
	return updated, nil
}
