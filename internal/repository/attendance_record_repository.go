package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-correction-api/internal/models"
)

// AttendanceRecordRepository reads and amends attendance punches owned by the attendance
// subsystem. Inside a correction transaction it locks the row it reads.
type AttendanceRecordRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAttendanceRecordRepository constructs the repository.
func NewAttendanceRecordRepository(db *sqlx.DB) *AttendanceRecordRepository {
	return &AttendanceRecordRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// ReadSnapshot returns the current punch values. Missing rows yield sql.ErrNoRows.
func (r *AttendanceRecordRepository) ReadSnapshot(ctx context.Context, attendanceRecordID string) (models.AttendanceSnapshot, error) {
	query := `SELECT employee_id, in_time, out_time, break_start, break_end, night_shift FROM attendance_records WHERE id = $1`
	if _, ok := txFromContext(ctx); ok {
		query += ` FOR UPDATE`
	}
	var snapshot models.AttendanceSnapshot
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &snapshot, query, attendanceRecordID); err != nil {
		return models.AttendanceSnapshot{}, err
	}
	return snapshot, nil
}

// WriteApprovedValues overwrites the punch with approved correction values.
func (r *AttendanceRecordRepository) WriteApprovedValues(ctx context.Context, attendanceRecordID string, values models.AttendanceSnapshot) error {
	const query = `UPDATE attendance_records
	SET in_time = $1, out_time = $2, break_start = $3, break_end = $4, night_shift = $5, updated_at = $6
	WHERE id = $7`
	res, err := executor(ctx, r.db).ExecContext(ctx, query,
		values.InTime, values.OutTime, values.BreakStart, values.BreakEnd, values.NightShift, r.now(), attendanceRecordID)
	if err != nil {
		return fmt.Errorf("write approved attendance values: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write approved attendance rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("write approved attendance values: record %s not found", attendanceRecordID)
	}
	return nil
}
