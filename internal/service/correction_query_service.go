package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-correction-api/internal/dto"
	"github.com/noah-isme/attendance-correction-api/internal/models"
	appErrors "github.com/noah-isme/attendance-correction-api/pkg/errors"
)

type countCache interface {
	Version(ctx context.Context, key string) int64
	Remember(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func(context.Context) (interface{}, error)) (interface{}, error)
}

// CorrectionQueryService serves read models for employees and administrators.
type CorrectionQueryService struct {
	store    CorrectionStore
	policy   CorrectionPolicy
	cache    countCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// CorrectionQueryOption configures the query service.
type CorrectionQueryOption func(*CorrectionQueryService)

// WithPendingCountCache caches pending queue counts for ttl.
func WithPendingCountCache(cache countCache, ttl time.Duration) CorrectionQueryOption {
	return func(s *CorrectionQueryService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// NewCorrectionQueryService constructs the service.
func NewCorrectionQueryService(store CorrectionStore, policy CorrectionPolicy, logger *zap.Logger, opts ...CorrectionQueryOption) *CorrectionQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &CorrectionQueryService{store: store, policy: policy.withDefaults(), logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// GetForEmployee returns one page of the employee's requests, newest first.
func (s *CorrectionQueryService) GetForEmployee(ctx context.Context, employeeID, status string, page, size int) ([]models.CorrectionRequest, *models.Pagination, error) {
	filter, err := s.employeeFilter(employeeID, status)
	if err != nil {
		return nil, nil, err
	}
	filter.Page, filter.PageSize = s.policy.page(page, size)
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list correction requests")
	}
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to count correction requests")
	}
	return nonNil(items), models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// CountForEmployee counts the employee's requests in the given status.
func (s *CorrectionQueryService) CountForEmployee(ctx context.Context, employeeID, status string) (int, error) {
	filter, err := s.employeeFilter(employeeID, status)
	if err != nil {
		return 0, err
	}
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count correction requests")
	}
	return total, nil
}

// GetPending returns one page of the administrator queue. A blank status means PENDING.
func (s *CorrectionQueryService) GetPending(ctx context.Context, query dto.PendingCorrectionQuery) ([]models.CorrectionRequest, *models.Pagination, error) {
	filter, err := pendingFilter(query)
	if err != nil {
		return nil, nil, err
	}
	filter.Page, filter.PageSize = s.policy.page(query.Page, query.PageSize)
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list pending corrections")
	}
	total, err := s.countPending(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	return nonNil(items), models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// CountPending counts the administrator queue, consulting the cache first.
func (s *CorrectionQueryService) CountPending(ctx context.Context, query dto.PendingCorrectionQuery) (int, error) {
	filter, err := pendingFilter(query)
	if err != nil {
		return 0, err
	}
	return s.countPending(ctx, filter)
}

// GetByID returns a request visible to the actor: its submitter or an administrator.
func (s *CorrectionQueryService) GetByID(ctx context.Context, id string, actor *models.JWTClaims) (*models.CorrectionRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "correction request not found")
		}
		return nil, appErrors.Internal(err, "failed to load correction request")
	}
	if !actor.Role.Privileged() && req.EmployeeID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return req, nil
}

func (s *CorrectionQueryService) countPending(ctx context.Context, filter models.CorrectionFilter) (int, error) {
	load := func(ctx context.Context) (interface{}, error) {
		total, err := s.store.Count(ctx, filter)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to count pending corrections")
		}
		return &dto.CorrectionCount{Total: total}, nil
	}
	if s.cache == nil {
		value, err := load(ctx)
		if err != nil {
			return 0, err
		}
		return value.(*dto.CorrectionCount).Total, nil
	}
	key := pendingCountKey(s.cache.Version(ctx, pendingCountVersionKey), filter)
	value, err := s.cache.Remember(ctx, key, &dto.CorrectionCount{}, s.cacheTTL, load)
	if err != nil {
		return 0, err
	}
	return value.(*dto.CorrectionCount).Total, nil
}

func (s *CorrectionQueryService) employeeFilter(employeeID, status string) (models.CorrectionFilter, error) {
	if err := requireActor("employee id", employeeID); err != nil {
		return models.CorrectionFilter{}, err
	}
	statuses, err := statusFilter(status, "")
	if err != nil {
		return models.CorrectionFilter{}, err
	}
	return models.CorrectionFilter{EmployeeID: employeeID, Statuses: statuses}, nil
}

func pendingFilter(query dto.PendingCorrectionQuery) (models.CorrectionFilter, error) {
	statuses, err := statusFilter(query.Status, models.CorrectionStatusPending)
	if err != nil {
		return models.CorrectionFilter{}, err
	}
	sortBy, sortOrder := parseSort(query.Sort)
	return models.CorrectionFilter{
		Statuses:  statuses,
		Search:    strings.TrimSpace(query.Search),
		SortBy:    sortBy,
		SortOrder: sortOrder,
	}, nil
}

// statusFilter normalises raw; blank input yields fallback (or no filter when empty).
func statusFilter(raw string, fallback models.CorrectionStatus) ([]models.CorrectionStatus, error) {
	if strings.TrimSpace(raw) == "" {
		if fallback == "" {
			return nil, nil
		}
		return []models.CorrectionStatus{fallback}, nil
	}
	status, filter, ok := models.ParseCorrectionStatus(raw)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status "+strings.TrimSpace(raw))
	}
	if !filter {
		return nil, nil
	}
	return []models.CorrectionStatus{status}, nil
}

// parseSort splits "field:dir". The store whitelists the field.
func parseSort(raw string) (string, string) {
	field, dir, _ := strings.Cut(strings.TrimSpace(raw), ":")
	field = strings.TrimSpace(field)
	if field == "" {
		return "createdAt", "desc"
	}
	dir = strings.ToLower(strings.TrimSpace(dir))
	if dir != "asc" {
		dir = "desc"
	}
	return field, dir
}

// pendingCountKey embeds the cache generation; a count loaded before a decision
// committed is stored under the superseded generation and never served.
func pendingCountKey(version int64, filter models.CorrectionFilter) string {
	status := "all"
	if len(filter.Statuses) > 0 {
		parts := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			parts[i] = strings.ToLower(string(st))
		}
		status = strings.Join(parts, ",")
	}
	return pendingCountCachePrefix + "v" + strconv.FormatInt(version, 10) + ":" + status + ":" + strings.ToLower(filter.Search)
}

func nonNil(items []models.CorrectionRequest) []models.CorrectionRequest {
	if items == nil {
		return []models.CorrectionRequest{}
	}
	return items
}
