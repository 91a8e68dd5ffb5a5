package models

import (
	"errors"
	"strings"
	"time"
)

// CorrectionStatus captures workflow states for attendance correction requests.
type CorrectionStatus string

const (
	CorrectionStatusPending   CorrectionStatus = "PENDING"
	CorrectionStatusApproved  CorrectionStatus = "APPROVED"
	CorrectionStatusRejected  CorrectionStatus = "REJECTED"
	CorrectionStatusCancelled CorrectionStatus = "CANCELLED"
)

// ErrTransitionNotAllowed is returned when a transition is attempted on a request
// that already left PENDING.
var ErrTransitionNotAllowed = errors.New("correction request is not pending")

// Valid reports whether s is one of the known statuses.
func (s CorrectionStatus) Valid() bool {
	switch s {
	case CorrectionStatusPending, CorrectionStatusApproved, CorrectionStatusRejected, CorrectionStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s CorrectionStatus) IsTerminal() bool {
	return s != CorrectionStatusPending
}

// ParseCorrectionStatus normalises a user supplied status. ALL (and blank) yields no
// filter, NEW is the UI alias for PENDING. ok is false for unknown values.
func ParseCorrectionStatus(raw string) (status CorrectionStatus, filter bool, ok bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	switch value {
	case "", "ALL":
		return "", false, true
	case "NEW":
		return CorrectionStatusPending, true, true
	}
	status = CorrectionStatus(value)
	if !status.Valid() {
		return "", false, false
	}
	return status, true, true
}

// CorrectionRequest is a proposed amendment to a recorded attendance punch. The
// Original* fields hold the punch as it was at submission and never change.
type CorrectionRequest struct {
	ID                 string    `db:"id" json:"id"`
	EmployeeID         string    `db:"employee_id" json:"employeeId"`
	EmployeeName       string    `db:"employee_name" json:"employeeName"`
	AttendanceRecordID string    `db:"attendance_record_id" json:"attendanceRecordId"`
	StampDate          time.Time `db:"stamp_date" json:"stampDate"`

	OriginalInTime     *time.Time `db:"original_in_time" json:"originalInTime,omitempty"`
	OriginalOutTime    *time.Time `db:"original_out_time" json:"originalOutTime,omitempty"`
	OriginalBreakStart *time.Time `db:"original_break_start" json:"originalBreakStart,omitempty"`
	OriginalBreakEnd   *time.Time `db:"original_break_end" json:"originalBreakEnd,omitempty"`
	OriginalNightShift bool       `db:"original_night_shift" json:"originalNightShift"`

	RequestedInTime     time.Time  `db:"requested_in_time" json:"requestedInTime"`
	RequestedOutTime    *time.Time `db:"requested_out_time" json:"requestedOutTime,omitempty"`
	RequestedBreakStart *time.Time `db:"requested_break_start" json:"requestedBreakStart,omitempty"`
	RequestedBreakEnd   *time.Time `db:"requested_break_end" json:"requestedBreakEnd,omitempty"`
	RequestedNightShift bool       `db:"requested_night_shift" json:"requestedNightShift"`
	Reason              string     `db:"reason" json:"reason"`

	Status CorrectionStatus `db:"status" json:"status"`

	ApproverID   *string    `db:"approver_id" json:"approverId,omitempty"`
	ApprovalNote *string    `db:"approval_note" json:"approvalNote,omitempty"`
	ApprovedAt   *time.Time `db:"approved_at" json:"approvedAt,omitempty"`

	RejecterID      *string    `db:"rejecter_id" json:"rejecterId,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejectionReason,omitempty"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejectedAt,omitempty"`

	CancellationReason *string    `db:"cancellation_reason" json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Original returns the attendance values captured when the request was submitted.
func (r *CorrectionRequest) Original() AttendanceSnapshot {
	return AttendanceSnapshot{
		EmployeeID: r.EmployeeID,
		InTime:     r.OriginalInTime,
		OutTime:    r.OriginalOutTime,
		BreakStart: r.OriginalBreakStart,
		BreakEnd:   r.OriginalBreakEnd,
		NightShift: r.OriginalNightShift,
	}
}

// Requested returns the values the employee asked to record.
func (r *CorrectionRequest) Requested() AttendanceSnapshot {
	in := r.RequestedInTime
	return AttendanceSnapshot{
		EmployeeID: r.EmployeeID,
		InTime:     &in,
		OutTime:    r.RequestedOutTime,
		BreakStart: r.RequestedBreakStart,
		BreakEnd:   r.RequestedBreakEnd,
		NightShift: r.RequestedNightShift,
	}
}

// Approve moves a pending request to APPROVED.
func (r *CorrectionRequest) Approve(approverID string, note *string, at time.Time) error {
	if r.Status.IsTerminal() {
		return ErrTransitionNotAllowed
	}
	r.Status = CorrectionStatusApproved
	r.ApproverID = &approverID
	r.ApprovalNote = note
	r.ApprovedAt = &at
	r.UpdatedAt = at
	return nil
}

// Reject moves a pending request to REJECTED.
func (r *CorrectionRequest) Reject(rejecterID, reason string, at time.Time) error {
	if r.Status.IsTerminal() {
		return ErrTransitionNotAllowed
	}
	r.Status = CorrectionStatusRejected
	r.RejecterID = &rejecterID
	r.RejectionReason = &reason
	r.RejectedAt = &at
	r.UpdatedAt = at
	return nil
}

// Cancel moves a pending request to CANCELLED.
func (r *CorrectionRequest) Cancel(reason string, at time.Time) error {
	if r.Status.IsTerminal() {
		return ErrTransitionNotAllowed
	}
	r.Status = CorrectionStatusCancelled
	r.CancellationReason = &reason
	r.CancelledAt = &at
	r.UpdatedAt = at
	return nil
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (r *CorrectionRequest) Clone() *CorrectionRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.OriginalInTime = cloneTime(r.OriginalInTime)
	c.OriginalOutTime = cloneTime(r.OriginalOutTime)
	c.OriginalBreakStart = cloneTime(r.OriginalBreakStart)
	c.OriginalBreakEnd = cloneTime(r.OriginalBreakEnd)
	c.RequestedOutTime = cloneTime(r.RequestedOutTime)
	c.RequestedBreakStart = cloneTime(r.RequestedBreakStart)
	c.RequestedBreakEnd = cloneTime(r.RequestedBreakEnd)
	c.ApproverID = cloneString(r.ApproverID)
	c.ApprovalNote = cloneString(r.ApprovalNote)
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	c.RejecterID = cloneString(r.RejecterID)
	c.RejectionReason = cloneString(r.RejectionReason)
	c.RejectedAt = cloneTime(r.RejectedAt)
	c.CancellationReason = cloneString(r.CancellationReason)
	c.CancelledAt = cloneTime(r.CancelledAt)
	return &c
}

// CorrectionFilter constrains listing queries. Page is 1-based.
type CorrectionFilter struct {
	EmployeeID string
	Statuses   []CorrectionStatus
	Search     string
	SortBy     string
	SortOrder  string
	Page       int
	PageSize   int
}

// Offset returns the row offset for the filter's page.
func (f CorrectionFilter) Offset() int {
	if f.Page <= 1 || f.PageSize <= 0 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
