package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Audit actions recorded for correction requests.
const (
	AuditActionCorrectionCreate  = "CORRECTION_CREATE"
	AuditActionCorrectionApprove = "CORRECTION_APPROVE"
	AuditActionCorrectionReject  = "CORRECTION_REJECT"
	AuditActionCorrectionCancel  = "CORRECTION_CANCEL"
)

// AuditResourceCorrection names correction requests in the audit trail.
const AuditResourceCorrection = "correction_request"

// AuditLog is one row of the append-only audit trail. OldValues and NewValues hold
// JSON snapshots of the resource around the change.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	RequestID  string    `db:"request_id" json:"request_id,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// NewCorrectionAudit describes a change to a correction request made by actorID.
// before is nil on creation.
func NewCorrectionAudit(action, actorID string, before, after *CorrectionRequest) *AuditLog {
	entry := &AuditLog{Action: action, Resource: AuditResourceCorrection}
	if actor := strings.TrimSpace(actorID); actor != "" {
		entry.UserID = &actor
	}
	subject := after
	if subject == nil {
		subject = before
	}
	if subject != nil && subject.ID != "" {
		id := subject.ID
		entry.ResourceID = &id
	}
	entry.OldValues = snapshot(before)
	entry.NewValues = snapshot(after)
	return entry
}

func snapshot(req *CorrectionRequest) []byte {
	if req == nil {
		return nil
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil
	}
	return payload
}
