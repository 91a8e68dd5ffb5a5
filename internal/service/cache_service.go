package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/attendance-correction-api/pkg/errors"
)

// CacheRepository is the storage behind CacheService.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Incr(ctx context.Context, key string) (int64, error)
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool, duration time.Duration)
	ObserveCacheWrite(duration time.Duration)
}

// CacheService fronts a CacheRepository. Cache failures are logged and reported but
// never change the answer a caller gets from Remember; a disabled or nil service
// behaves as a permanent miss.
type CacheService struct {
	repo       CacheRepository
	metrics    cacheMetrics
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service. ttl <= 0 defaults to one minute.
func NewCacheService(repo CacheRepository, metrics cacheMetrics, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: ttl, logger: logger.Named("cache"), enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get reports whether key was found and decoded into dest.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	miss := errors.Is(err, appErrors.ErrCacheMiss)
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	}
	if err != nil && !miss {
		s.logger.Warn("get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return err == nil, nil
}

// Set stores value under key. ttl <= 0 uses the service default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil {
		s.logger.Warn("set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Remember serves key from the cache, or calls load and caches what it returns.
// Only load errors reach the caller.
func (s *CacheService) Remember(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func(context.Context) (interface{}, error)) (interface{}, error) {
	if hit, _ := s.Get(ctx, key, dest); hit {
		return dest, nil
	}
	value, err := load(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.Set(ctx, key, value, ttl)
	return value, nil
}

// Version returns the generation counter at key, or 0 when it is unset or unreadable.
// Callers fold it into their keys so values loaded under an older generation are
// never read again.
func (s *CacheService) Version(ctx context.Context, key string) int64 {
	var version int64
	if hit, _ := s.Get(ctx, key, &version); !hit {
		return 0
	}
	return version
}

// BumpVersion advances the generation counter at key.
func (s *CacheService) BumpVersion(ctx context.Context, key string) error {
	if !s.Enabled() {
		return nil
	}
	if _, err := s.repo.Incr(ctx, key); err != nil {
		s.logger.Warn("version bump failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Invalidate removes cached values matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}
