package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-correction-api/internal/dto"
	"github.com/noah-isme/attendance-correction-api/internal/models"
	appErrors "github.com/noah-isme/attendance-correction-api/pkg/errors"
)

type correctionDecider interface {
	ApproveRequest(ctx context.Context, id, approverID, note string) (*models.CorrectionRequest, error)
	RejectRequest(ctx context.Context, id, rejecterID, reason string) (*models.CorrectionRequest, error)
}

// CorrectionBulkService runs a decision over a batch of requests. Each id is decided in
// its own atomic unit; failures are collected, never rolled back.
type CorrectionBulkService struct {
	decider correctionDecider
	policy  CorrectionPolicy
	logger  *zap.Logger
}

// NewCorrectionBulkService constructs the service.
func NewCorrectionBulkService(decider correctionDecider, policy CorrectionPolicy, logger *zap.Logger) *CorrectionBulkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorrectionBulkService{decider: decider, policy: policy.withDefaults(), logger: logger}
}

// BulkApprove approves each id with the shared note.
func (s *CorrectionBulkService) BulkApprove(ctx context.Context, req dto.BulkApproveRequest, approverID string) (*dto.BulkResult, error) {
	ids, err := s.batch(req.IDs)
	if err != nil {
		return nil, err
	}
	if err := requireActor("approver id", approverID); err != nil {
		return nil, err
	}
	if err := s.policy.validateNote(req.Note); err != nil {
		return nil, err
	}
	return s.run("approve", ids, func(id string) error {
		_, err := s.decider.ApproveRequest(ctx, id, approverID, req.Note)
		return err
	}), nil
}

// BulkReject rejects each id with the shared reason.
func (s *CorrectionBulkService) BulkReject(ctx context.Context, req dto.BulkRejectRequest, rejecterID string) (*dto.BulkResult, error) {
	ids, err := s.batch(req.IDs)
	if err != nil {
		return nil, err
	}
	if err := requireActor("rejecter id", rejecterID); err != nil {
		return nil, err
	}
	if err := s.policy.validateReason("rejection reason", req.Reason); err != nil {
		return nil, err
	}
	return s.run("reject", ids, func(id string) error {
		_, err := s.decider.RejectRequest(ctx, id, rejecterID, req.Reason)
		return err
	}), nil
}

// batch drops null and blank entries then enforces the size limits.
func (s *CorrectionBulkService) batch(raw []*string) ([]string, error) {
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		if id == nil {
			continue
		}
		if trimmed := strings.TrimSpace(*id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ids must not be empty")
	}
	if len(ids) > s.policy.MaxBatchSize {
		return nil, appErrors.Clonef(appErrors.ErrValidation, "at most %d ids per batch", s.policy.MaxBatchSize)
	}
	return ids, nil
}

func (s *CorrectionBulkService) run(action string, ids []string, decide func(id string) error) *dto.BulkResult {
	result := &dto.BulkResult{FailedIDs: []string{}}
	for _, id := range ids {
		if err := decide(id); err != nil {
			result.FailureCount++
			result.FailedIDs = append(result.FailedIDs, id)
			s.logger.Debug("bulk correction item failed",
				zap.String("action", action),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		result.SuccessCount++
	}
	s.logger.Info("bulk correction finished",
		zap.String("action", action),
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailureCount))
	return result
}
