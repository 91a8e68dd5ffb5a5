package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/attendance-correction-api/internal/models"
)

// MemoryAttendanceStore is an in-process attendance collaborator.
type MemoryAttendanceStore struct {
	mu      sync.RWMutex
	records map[string]models.AttendanceRecord
	now     func() time.Time
}

// NewMemoryAttendanceStore seeds the store with records.
func NewMemoryAttendanceStore(now func() time.Time, records ...models.AttendanceRecord) *MemoryAttendanceStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	s := &MemoryAttendanceStore{records: make(map[string]models.AttendanceRecord, len(records)), now: now}
	for _, record := range records {
		s.records[record.ID] = record
	}
	return s
}

// Put inserts or replaces a record, standing in for the punch recording path.
func (s *MemoryAttendanceStore) Put(record models.AttendanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.UpdatedAt = s.now()
	s.records[record.ID] = record
}

// Get returns the record or sql.ErrNoRows.
func (s *MemoryAttendanceStore) Get(ctx context.Context, attendanceRecordID string) (models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[attendanceRecordID]
	if !ok {
		return models.AttendanceRecord{}, sql.ErrNoRows
	}
	return record, nil
}

// ReadSnapshot returns the current punch values or sql.ErrNoRows.
func (s *MemoryAttendanceStore) ReadSnapshot(ctx context.Context, attendanceRecordID string) (models.AttendanceSnapshot, error) {
	record, err := s.Get(ctx, attendanceRecordID)
	if err != nil {
		return models.AttendanceSnapshot{}, err
	}
	return record.Snapshot(), nil
}

// WriteApprovedValues overwrites the punch values of an existing record.
func (s *MemoryAttendanceStore) WriteApprovedValues(ctx context.Context, attendanceRecordID string, values models.AttendanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[attendanceRecordID]
	if !ok {
		return sql.ErrNoRows
	}
	record.InTime = cloneTimePtr(values.InTime)
	record.OutTime = cloneTimePtr(values.OutTime)
	record.BreakStart = cloneTimePtr(values.BreakStart)
	record.BreakEnd = cloneTimePtr(values.BreakEnd)
	record.NightShift = values.NightShift
	record.UpdatedAt = s.now()
	s.records[attendanceRecordID] = record
	return nil
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
