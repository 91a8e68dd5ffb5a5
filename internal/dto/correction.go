package dto

import "time"

// CreateCorrectionRequest payload for submitting an attendance correction.
type CreateCorrectionRequest struct {
	AttendanceRecordID  string     `json:"attendanceRecordId" validate:"required"`
	RequestedInTime     *time.Time `json:"requestedInTime"`
	RequestedOutTime    *time.Time `json:"requestedOutTime"`
	RequestedBreakStart *time.Time `json:"requestedBreakStart"`
	RequestedBreakEnd   *time.Time `json:"requestedBreakEnd"`
	RequestedNightShift bool       `json:"requestedNightShift"`
	Reason              string     `json:"reason"`
	// EmployeeName is filled from the caller identity, never from the body.
	EmployeeName string `json:"-"`
}

// ApproveCorrectionRequest carries an optional approval note.
type ApproveCorrectionRequest struct {
	Note string `json:"note"`
}

// RejectCorrectionRequest carries the mandatory rejection reason.
type RejectCorrectionRequest struct {
	Reason string `json:"reason"`
}

// CancelCorrectionRequest carries the mandatory cancellation reason.
type CancelCorrectionRequest struct {
	Reason string `json:"reason"`
}

// BulkApproveRequest approves several requests with one shared note. Null ids are skipped.
type BulkApproveRequest struct {
	IDs  []*string `json:"ids"`
	Note string    `json:"note"`
}

// BulkRejectRequest rejects several requests with one shared reason.
type BulkRejectRequest struct {
	IDs    []*string `json:"ids"`
	Reason string    `json:"reason"`
}

// BulkResult aggregates the per-id outcome of a bulk decision.
type BulkResult struct {
	SuccessCount int      `json:"successCount" yaml:"successCount"`
	FailureCount int      `json:"failureCount" yaml:"failureCount"`
	FailedIDs    []string `json:"failedIds" yaml:"failedIds"`
}

// EmployeeCorrectionQuery mirrors the "my requests" filters.
type EmployeeCorrectionQuery struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"size"`
}

// PendingCorrectionQuery mirrors the administrator queue filters.
type PendingCorrectionQuery struct {
	Status   string `form:"status"`
	Search   string `form:"search"`
	Sort     string `form:"sort"`
	Page     int    `form:"page"`
	PageSize int    `form:"size"`
}

// CorrectionCount is returned by count endpoints and cached.
type CorrectionCount struct {
	Total int `json:"total"`
}
