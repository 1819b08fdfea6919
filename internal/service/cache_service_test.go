package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/pkg/config"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

type fakeCacheRepo struct {
	mu             sync.Mutex
	entries        map[string][]byte
	deleteFailures int
	deleted        []string
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{entries: make(map[string][]byte)}
}

func (f *fakeCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = raw
	return nil
}

func (f *fakeCacheRepo) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteFailures > 0 {
		f.deleteFailures--
		return errors.New("redis unavailable")
	}
	for _, key := range keys {
		delete(f.entries, key)
		f.deleted = append(f.deleted, key)
	}
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range f.entries {
		if strings.HasPrefix(key, prefix) {
			delete(f.entries, key)
		}
	}
	return nil
}

func (f *fakeCacheRepo) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[key]
	return ok
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{Enabled: true, TTL: time.Minute, InvalidationWorkers: 1, InvalidationRetries: 3, RetryDelay: 10 * time.Millisecond}
}

func TestCacheServiceDisabled(t *testing.T) {
	svc := NewCacheService(nil, nil, cacheConfig(), zap.NewNop())
	assert.False(t, svc.Enabled())

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	var dest map[string]string
	assert.False(t, nilSvc.Get(context.Background(), "k", &dest))
	nilSvc.Set(context.Background(), "k", "v")
	nilSvc.Invalidate(context.Background(), "k")
}

func TestCacheServiceGetSet(t *testing.T) {
	repo := newFakeCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, cacheConfig(), zap.NewNop())

	var got map[string]int
	assert.False(t, svc.Get(context.Background(), "k", &got))
	svc.Set(context.Background(), "k", map[string]int{"a": 1})
	require.True(t, svc.Get(context.Background(), "k", &got))
	assert.Equal(t, 1, got["a"])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheMisses))
}

func TestCacheServiceDefersFailedInvalidation(t *testing.T) {
	repo := newFakeCacheRepo()
	repo.deleteFailures = 2
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, cacheConfig(), zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Set(context.Background(), "k", "v")
	svc.Invalidate(context.Background(), "k")
	assert.True(t, repo.has("k"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheInvalidations.WithLabelValues(invalidationDeferred)))

	assert.Eventually(t, func() bool { return !repo.has("k") }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.cacheInvalidations.WithLabelValues(invalidationOK)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCacheServiceDropsWhenRetriesRunOut(t *testing.T) {
	repo := newFakeCacheRepo()
	repo.deleteFailures = 10
	metrics := NewMetricsService()
	cfg := cacheConfig()
	cfg.InvalidationRetries = 2
	svc := NewCacheService(repo, metrics, cfg, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Invalidate(context.Background(), "k")
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.cacheInvalidations.WithLabelValues(invalidationDropped)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCatalogServiceCachedReadsAreInvalidatedOnWrite(t *testing.T) {
	f := newCatalogFixture(t)
	repo := newFakeCacheRepo()
	cacheSvc := NewCacheService(repo, f.metrics, cacheConfig(), zap.NewNop())
	catalog := NewCatalogService(f.store, cacheSvc, f.metrics, nil, zap.NewNop(), 0)
	ctx := context.Background()
	dept := f.department(t, "CS")
	course := f.course(t, dept.ID, "CS101", nil)
	john := f.student(t, "john")

	first, err := catalog.GetStudent(ctx, john.ID)
	require.NoError(t, err)
	assert.Empty(t, first.EnrolledCourseIDs)
	require.True(t, repo.has(studentCacheKey(john.ID)))

	_, err = catalog.Enroll(ctx, john.ID, course.ID)
	require.NoError(t, err)
	assert.False(t, repo.has(studentCacheKey(john.ID)))

	second, err := catalog.GetStudent(ctx, john.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{course.ID}, second.EnrolledCourseIDs)
}
