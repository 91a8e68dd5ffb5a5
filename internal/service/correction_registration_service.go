package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-correction-api/internal/dto"
	"github.com/noah-isme/attendance-correction-api/internal/models"
	appErrors "github.com/noah-isme/attendance-correction-api/pkg/errors"
)

// CorrectionRegistrationService accepts new correction requests from employees.
type CorrectionRegistrationService struct {
	store      CorrectionStore
	attendance AttendanceGateway
	validator  *validator.Validate
	policy     CorrectionPolicy
	effects    correctionEffects
}

// NewCorrectionRegistrationService constructs the service.
func NewCorrectionRegistrationService(store CorrectionStore, attendance AttendanceGateway, validate *validator.Validate, policy CorrectionPolicy, logger *zap.Logger, opts ...CorrectionServiceOption) *CorrectionRegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	return &CorrectionRegistrationService{
		store:      store,
		attendance: attendance,
		validator:  validate,
		policy:     policy.withDefaults(),
		effects:    newCorrectionEffects(logger, "correction-registration", opts),
	}
}

// CreateRequest validates and stores a new PENDING request for employeeID.
func (s *CorrectionRegistrationService) CreateRequest(ctx context.Context, req dto.CreateCorrectionRequest, employeeID string) (*models.CorrectionRequest, error) {
	if err := requireActor("employee id", employeeID); err != nil {
		return nil, err
	}
	if err := s.policy.validateReason("reason", req.Reason); err != nil {
		return nil, err
	}
	now := s.store.Now()
	if err := validateRequestedTimes(req, now); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "attendanceRecordId is required")
	}

	if _, err := s.store.FindPending(ctx, req.AttendanceRecordID, employeeID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate pending request")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapStoreError(err, "check pending correction requests")
	}

	original, err := s.attendance.ReadSnapshot(ctx, req.AttendanceRecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Internal(err, "failed to read attendance record")
	}
	if original.EmployeeID != "" && original.EmployeeID != employeeID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attendance record belongs to another employee")
	}

	correction := &models.CorrectionRequest{
		EmployeeID:          employeeID,
		EmployeeName:        strings.TrimSpace(req.EmployeeName),
		AttendanceRecordID:  req.AttendanceRecordID,
		StampDate:           stampDate(req.RequestedInTime, now),
		OriginalInTime:      original.InTime,
		OriginalOutTime:     original.OutTime,
		OriginalBreakStart:  original.BreakStart,
		OriginalBreakEnd:    original.BreakEnd,
		OriginalNightShift:  original.NightShift,
		RequestedInTime:     *req.RequestedInTime,
		RequestedOutTime:    req.RequestedOutTime,
		RequestedBreakStart: req.RequestedBreakStart,
		RequestedBreakEnd:   req.RequestedBreakEnd,
		RequestedNightShift: req.RequestedNightShift,
		Reason:              strings.TrimSpace(req.Reason),
		Status:              models.CorrectionStatusPending,
	}
	if err := s.store.Create(ctx, correction); err != nil {
		return nil, mapStoreError(err, "create correction request")
	}

	s.effects.emitAudit(ctx, employeeID, models.AuditActionCorrectionCreate, nil, correction)
	s.effects.invalidatePending(ctx)
	return correction, nil
}

func validateRequestedTimes(req dto.CreateCorrectionRequest, now time.Time) error {
	if req.RequestedInTime == nil || req.RequestedInTime.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "requestedInTime is required")
	}
	in := *req.RequestedInTime
	if in.After(now) {
		return appErrors.Clone(appErrors.ErrValidation, "requestedInTime cannot be in the future")
	}
	out := req.RequestedOutTime
	if out != nil && !out.After(in) {
		return appErrors.Clone(appErrors.ErrValidation, "requestedOutTime must be after requestedInTime")
	}
	start, end := req.RequestedBreakStart, req.RequestedBreakEnd
	if start == nil || end == nil {
		return nil
	}
	if !end.After(*start) {
		return appErrors.Clone(appErrors.ErrValidation, "requestedBreakEnd must be after requestedBreakStart")
	}
	if start.Before(in) || (out != nil && end.After(*out)) {
		return appErrors.Clone(appErrors.ErrValidation, "break must fall within the working period")
	}
	return nil
}

// stampDate is midnight UTC of the calendar date the employee clocked in on.
func stampDate(in *time.Time, now time.Time) time.Time {
	ref := now
	if in != nil && !in.IsZero() {
		ref = *in
	}
	y, m, d := ref.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
