package repository

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/attendance-correction-api/internal/models"
)

type attendanceSeed struct {
	Records []struct {
		ID         string     `yaml:"id"`
		EmployeeID string     `yaml:"employeeId"`
		WorkDate   time.Time  `yaml:"workDate"`
		InTime     *time.Time `yaml:"inTime"`
		OutTime    *time.Time `yaml:"outTime"`
		BreakStart *time.Time `yaml:"breakStart"`
		BreakEnd   *time.Time `yaml:"breakEnd"`
		NightShift bool       `yaml:"nightShift"`
	} `yaml:"records"`
}

// LoadAttendanceSeed reads the attendance records a memory-backed deployment starts
// with. Every record needs an id and an employee id; ids must be unique.
func LoadAttendanceSeed(path string) ([]models.AttendanceRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attendance seed: %w", err)
	}
	var seed attendanceSeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse attendance seed %s: %w", path, err)
	}

	records := make([]models.AttendanceRecord, 0, len(seed.Records))
	seen := make(map[string]struct{}, len(seed.Records))
	for i, r := range seed.Records {
		id, employeeID := strings.TrimSpace(r.ID), strings.TrimSpace(r.EmployeeID)
		if id == "" || employeeID == "" {
			return nil, fmt.Errorf("attendance seed %s: record %d needs id and employeeId", path, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("attendance seed %s: duplicate record id %q", path, id)
		}
		seen[id] = struct{}{}
		records = append(records, models.AttendanceRecord{
			ID:         id,
			EmployeeID: employeeID,
			WorkDate:   r.WorkDate.UTC(),
			InTime:     utcPtr(r.InTime),
			OutTime:    utcPtr(r.OutTime),
			BreakStart: utcPtr(r.BreakStart),
			BreakEnd:   utcPtr(r.BreakEnd),
			NightShift: r.NightShift,
		})
	}
	return records, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
