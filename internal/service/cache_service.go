package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/pkg/cache"
	"github.com/noah-isme/enrollment-api/pkg/config"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
	"github.com/noah-isme/enrollment-api/pkg/jobs"
)

// Invalidation outcomes reported to metrics.
const (
	invalidationOK       = "ok"
	invalidationDeferred = "deferred"
	invalidationDropped  = "dropped"
)

// CacheRepository abstracts persistence for cached projections.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// invalidation names what to evict: explicit keys, a pattern, or both.
type invalidation struct {
	Keys    []string
	Pattern string
}

// CacheService is a read-through projection cache. Entries are evicted after
// every committed write; an eviction that fails is retried in the background
// so a stale entry lives at most until the retry succeeds or its TTL expires.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
	retries *jobs.Queue[invalidation]
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, cfg config.CacheConfig, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s := &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: cfg.Enabled && repo != nil}
	s.retries = jobs.NewQueue[invalidation]("cache-invalidation", s.retryInvalidation, jobs.QueueConfig{
		Workers:    cfg.InvalidationWorkers,
		MaxRetries: cfg.InvalidationRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	s.retries.OnDrop(func(jobs.Job[invalidation], error) {
		s.metrics.RecordCacheInvalidation(invalidationDropped)
	})
	return s
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled
}

// Start launches the background invalidation retry workers.
func (s *CacheService) Start(ctx context.Context) {
	if s.Enabled() {
		s.retries.Start(ctx)
	}
}

// Stop halts the retry workers. Pending retries are discarded.
func (s *CacheService) Stop() {
	if s.Enabled() {
		s.retries.Stop()
	}
}

// Get attempts to retrieve a cached entry. It returns true on a hit; lookup
// failures are logged and reported as a miss.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

// Set stores the value in cache. Failures are logged only.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) {
	if !s.Enabled() {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate evicts the given keys, deferring to the retry queue on failure.
func (s *CacheService) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	s.invalidate(ctx, invalidation{Keys: keys})
}

// InvalidatePattern evicts every key matching pattern.
func (s *CacheService) InvalidatePattern(ctx context.Context, pattern string) {
	s.invalidate(ctx, invalidation{Pattern: pattern})
}

func (s *CacheService) invalidate(ctx context.Context, inv invalidation) {
	if !s.Enabled() {
		return
	}
	err := s.apply(ctx, inv)
	if err == nil {
		s.metrics.RecordCacheInvalidation(invalidationOK)
		return
	}

	s.logger.Warn("cache invalidate failed, deferring",
		zap.Strings("keys", inv.Keys), zap.String("pattern", inv.Pattern), zap.Error(err))
	job := jobs.Job[invalidation]{ID: uuid.NewString(), Kind: "invalidate", Payload: inv, Attempt: 1}
	if qErr := s.retries.TryEnqueue(job); qErr != nil {
		s.metrics.RecordCacheInvalidation(invalidationDropped)
		s.logger.Error("cache invalidation dropped",
			zap.Strings("keys", inv.Keys), zap.String("pattern", inv.Pattern), zap.Error(qErr))
		return
	}
	s.metrics.RecordCacheInvalidation(invalidationDeferred)
}

func (s *CacheService) retryInvalidation(ctx context.Context, job jobs.Job[invalidation]) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.apply(ctx, job.Payload); err != nil {
		return err
	}
	s.metrics.RecordCacheInvalidation(invalidationOK)
	return nil
}

func (s *CacheService) apply(ctx context.Context, inv invalidation) error {
	if len(inv.Keys) > 0 {
		if err := s.repo.Delete(ctx, inv.Keys...); err != nil {
			return err
		}
	}
	if inv.Pattern != "" {
		return s.repo.DeleteByPattern(ctx, inv.Pattern)
	}
	return nil
}

func studentCacheKey(id string) string    { return cache.Key("student", id) }
func courseCacheKey(id string) string     { return cache.Key("course", id) }
func departmentCacheKey(id string) string { return cache.Key("department", id) }

func courseCacheKeys(ids []string) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, courseCacheKey(id))
	}
	return keys
}

func studentCacheKeys(ids []string) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, studentCacheKey(id))
	}
	return keys
}

// everythingPattern matches every key this service writes.
var everythingPattern = cache.Key("*")
