package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/noah-isme/attendance-correction-api/internal/models"
)

// MemoryCorrectionStore keeps correction requests in process memory. A single mutex
// serialises every read-modify-write, which gives Mutate the same per-identity
// guarantee as a row lock.
type MemoryCorrectionStore struct {
	mu    sync.Mutex
	items map[string]*models.CorrectionRequest
	order []string
	now   func() time.Time
	fold  cases.Caser
}

// NewMemoryCorrectionStore builds an empty store. A nil clock uses time.Now in UTC.
func NewMemoryCorrectionStore(now func() time.Time) *MemoryCorrectionStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryCorrectionStore{
		items: make(map[string]*models.CorrectionRequest),
		now:   now,
		fold:  cases.Fold(),
	}
}

// Now exposes the store clock.
func (s *MemoryCorrectionStore) Now() time.Time {
	return s.now()
}

// Create assigns identity and timestamps then stores a copy.
func (s *MemoryCorrectionStore) Create(ctx context.Context, req *models.CorrectionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Status == "" {
		req.Status = models.CorrectionStatusPending
	}
	if req.Status == models.CorrectionStatusPending && s.pendingLocked(req.AttendanceRecordID, req.EmployeeID) != nil {
		return ErrDuplicatePending
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := s.now()
	req.CreatedAt = now
	req.UpdatedAt = now
	s.putLocked(req)
	return nil
}

// Save upserts by identity, refusing to overwrite a finalized request.
func (s *MemoryCorrectionStore) Save(ctx context.Context, req *models.CorrectionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(req)
}

func (s *MemoryCorrectionStore) saveLocked(req *models.CorrectionRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if existing, ok := s.items[req.ID]; ok {
		if existing.Status.IsTerminal() {
			return ErrRequestFinalized
		}
	} else if req.Status == models.CorrectionStatusPending {
		if s.pendingLocked(req.AttendanceRecordID, req.EmployeeID) != nil {
			return ErrDuplicatePending
		}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	s.putLocked(req)
	return nil
}

// FindByID returns a copy of the request or sql.ErrNoRows.
func (s *MemoryCorrectionStore) FindByID(ctx context.Context, id string) (*models.CorrectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return item.Clone(), nil
}

// FindAll returns copies of every request in creation order.
func (s *MemoryCorrectionStore) FindAll(ctx context.Context) ([]models.CorrectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allLocked(), nil
}

// FindPending returns the PENDING request for the pair or sql.ErrNoRows.
func (s *MemoryCorrectionStore) FindPending(ctx context.Context, attendanceRecordID, employeeID string) (*models.CorrectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item := s.pendingLocked(attendanceRecordID, employeeID); item != nil {
		return item.Clone(), nil
	}
	return nil, sql.ErrNoRows
}

// Mutate applies fn to a copy of the request while holding the store lock and stores
// the copy only when fn succeeds.
func (s *MemoryCorrectionStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*models.CorrectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	working := item.Clone()
	if err := fn(ctx, working); err != nil {
		return nil, err
	}
	if err := s.saveLocked(working); err != nil {
		return nil, err
	}
	return working.Clone(), nil
}

// List filters, sorts and pages inside the store.
func (s *MemoryCorrectionStore) List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRequest, error) {
	s.mu.Lock()
	matched := s.matchLocked(filter)
	s.mu.Unlock()

	sortCorrections(matched, filter.SortBy, filter.SortOrder)

	if filter.PageSize <= 0 {
		return matched, nil
	}
	start := filter.Offset()
	if start >= len(matched) {
		return []models.CorrectionRequest{}, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// Count returns the number of requests matching the filter.
func (s *MemoryCorrectionStore) Count(ctx context.Context, filter models.CorrectionFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matchLocked(filter)), nil
}

func (s *MemoryCorrectionStore) putLocked(req *models.CorrectionRequest) {
	if _, exists := s.items[req.ID]; !exists {
		s.order = append(s.order, req.ID)
	}
	s.items[req.ID] = req.Clone()
}

func (s *MemoryCorrectionStore) pendingLocked(attendanceRecordID, employeeID string) *models.CorrectionRequest {
	for _, id := range s.order {
		item := s.items[id]
		if item.Status == models.CorrectionStatusPending &&
			item.AttendanceRecordID == attendanceRecordID &&
			item.EmployeeID == employeeID {
			return item
		}
	}
	return nil
}

func (s *MemoryCorrectionStore) allLocked() []models.CorrectionRequest {
	items := make([]models.CorrectionRequest, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, *s.items[id].Clone())
	}
	return items
}

func (s *MemoryCorrectionStore) matchLocked(filter models.CorrectionFilter) []models.CorrectionRequest {
	statuses := make(map[models.CorrectionStatus]struct{}, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses[status] = struct{}{}
	}
	search := s.fold.String(strings.TrimSpace(filter.Search))

	matched := make([]models.CorrectionRequest, 0)
	for _, id := range s.order {
		item := s.items[id]
		if filter.EmployeeID != "" && item.EmployeeID != filter.EmployeeID {
			continue
		}
		if len(statuses) > 0 {
			if _, ok := statuses[item.Status]; !ok {
				continue
			}
		}
		if search != "" &&
			!strings.Contains(s.fold.String(item.EmployeeName), search) &&
			!strings.Contains(s.fold.String(item.Reason), search) &&
			!strings.Contains(s.fold.String(item.ID), search) {
			continue
		}
		matched = append(matched, *item.Clone())
	}
	return matched
}

func sortCorrections(items []models.CorrectionRequest, sortBy, sortOrder string) {
	column, order := correctionSort(sortBy, sortOrder)
	compare := func(a, b *models.CorrectionRequest) int {
		switch column {
		case "updated_at":
			return compareTime(a.UpdatedAt, b.UpdatedAt)
		case "stamp_date":
			return compareTime(a.StampDate, b.StampDate)
		case "requested_in_time":
			return compareTime(a.RequestedInTime, b.RequestedInTime)
		case "status":
			return strings.Compare(string(a.Status), string(b.Status))
		case "employee_name":
			return strings.Compare(a.EmployeeName, b.EmployeeName)
		default:
			return compareTime(a.CreatedAt, b.CreatedAt)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		cmp := compare(&items[i], &items[j])
		if cmp == 0 {
			cmp = strings.Compare(items[i].ID, items[j].ID)
		}
		if order == "ASC" {
			return cmp < 0
		}
		return cmp > 0
	})
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
