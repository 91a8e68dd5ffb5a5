package models

import "time"

// AttendanceRecord is the punch owned by the attendance subsystem.
type AttendanceRecord struct {
	ID         string     `db:"id" json:"id"`
	EmployeeID string     `db:"employee_id" json:"employeeId"`
	WorkDate   time.Time  `db:"work_date" json:"workDate"`
	InTime     *time.Time `db:"in_time" json:"inTime,omitempty"`
	OutTime    *time.Time `db:"out_time" json:"outTime,omitempty"`
	BreakStart *time.Time `db:"break_start" json:"breakStart,omitempty"`
	BreakEnd   *time.Time `db:"break_end" json:"breakEnd,omitempty"`
	NightShift bool       `db:"night_shift" json:"nightShift"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

// Snapshot projects the comparable attendance values.
func (r *AttendanceRecord) Snapshot() AttendanceSnapshot {
	return AttendanceSnapshot{
		EmployeeID: r.EmployeeID,
		InTime:     cloneTime(r.InTime),
		OutTime:    cloneTime(r.OutTime),
		BreakStart: cloneTime(r.BreakStart),
		BreakEnd:   cloneTime(r.BreakEnd),
		NightShift: r.NightShift,
	}
}

// AttendanceSnapshot is the set of punch values a correction reads and writes.
type AttendanceSnapshot struct {
	EmployeeID string     `db:"employee_id" json:"employeeId,omitempty"`
	InTime     *time.Time `db:"in_time" json:"inTime,omitempty"`
	OutTime    *time.Time `db:"out_time" json:"outTime,omitempty"`
	BreakStart *time.Time `db:"break_start" json:"breakStart,omitempty"`
	BreakEnd   *time.Time `db:"break_end" json:"breakEnd,omitempty"`
	NightShift bool       `db:"night_shift" json:"nightShift"`
}

// Matches compares the punch values field by field. The owner is not compared.
func (s AttendanceSnapshot) Matches(other AttendanceSnapshot) bool {
	return sameInstant(s.InTime, other.InTime) &&
		sameInstant(s.OutTime, other.OutTime) &&
		sameInstant(s.BreakStart, other.BreakStart) &&
		sameInstant(s.BreakEnd, other.BreakEnd) &&
		s.NightShift == other.NightShift
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
