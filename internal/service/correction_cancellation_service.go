package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-correction-api/internal/models"
	appErrors "github.com/noah-isme/attendance-correction-api/pkg/errors"
)

// CorrectionCancellationService lets employees withdraw their own pending requests.
type CorrectionCancellationService struct {
	store   CorrectionStore
	policy  CorrectionPolicy
	effects correctionEffects
}

// NewCorrectionCancellationService constructs the service.
func NewCorrectionCancellationService(store CorrectionStore, policy CorrectionPolicy, logger *zap.Logger, opts ...CorrectionServiceOption) *CorrectionCancellationService {
	return &CorrectionCancellationService{
		store:   store,
		policy:  policy.withDefaults(),
		effects: newCorrectionEffects(logger, "correction-cancellation", opts),
	}
}

// CancelRequest withdraws a PENDING request owned by employeeID. Existence, ownership
// and status are checked before the reason.
func (s *CorrectionCancellationService) CancelRequest(ctx context.Context, id, employeeID, reason string) (result *models.CorrectionRequest, err error) {
	defer func() { s.effects.recordDecision(DecisionActionCancel, err) }()

	if err = requireActor("employee id", employeeID); err != nil {
		return nil, err
	}
	var before *models.CorrectionRequest
	updated, err := s.store.Mutate(ctx, id, func(ctx context.Context, req *models.CorrectionRequest) error {
		if req.EmployeeID != employeeID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the submitter can cancel this request")
		}
		if req.Status.IsTerminal() {
			return errAlreadyProcessed
		}
		if err := s.policy.validateReason("cancellation reason", reason); err != nil {
			return err
		}
		before = req.Clone()
		return req.Cancel(strings.TrimSpace(reason), s.store.Now())
	})
	if err != nil {
		err = mapStoreError(err, "cancel correction request")
		return nil, err
	}

	s.effects.emitAudit(ctx, employeeID, models.AuditActionCorrectionCancel, before, updated)
	s.effects.invalidatePending(ctx)
	return updated, nil
}
