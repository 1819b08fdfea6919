package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

const defaultStoreTimeout = 5 * time.Second

// storeOps bundles what every catalog service needs to talk to the store.
type storeOps struct {
	store   repository.Store
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	timeout time.Duration
}

func newStoreOps(store repository.Store, cache *CacheService, metrics *MetricsService, logger *zap.Logger, timeout time.Duration) storeOps {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return storeOps{store: store, cache: cache, metrics: metrics, logger: logger, timeout: timeout}
}

func (o storeOps) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout)
}

func (o storeOps) inTx(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	start := time.Now()
	err := o.store.WithinTx(ctx, fn)
	o.metrics.ObserveStoreTx(operation, time.Since(start))
	return err
}

func (o storeOps) view(ctx context.Context, fn func(r repository.Reader) error) error {
	return o.store.View(ctx, fn)
}

func (o storeOps) departmentCourses(ctx context.Context, departmentID string) ([]models.CourseProjection, error) {
	ctx, cancel := o.bounded(ctx)
	defer cancel()

	var out []models.CourseProjection
	err := o.view(ctx, func(r repository.Reader) error {
		dept, err := r.GetDepartment(ctx, departmentID)
		if err != nil {
			return notFoundOr(err, "department", departmentID)
		}
		courses, err := r.ListCourses(ctx, models.CourseFilter{DepartmentID: departmentID})
		if err != nil {
			return err
		}
		out, err = courseProjections(ctx, r, courses, map[string]string{dept.ID: dept.Name})
		return err
	})
	if err != nil {
		return nil, o.domainError(err, "failed to list department courses")
	}
	return out, nil
}

// domainError passes typed errors through and wraps anything else as an
// infrastructure failure.
func (o storeOps) domainError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	o.logger.Error(message, zap.Error(err))
	return appErrors.Infrastructure(err, message)
}

// notFoundOr maps a store ErrNotFound to a NOT_FOUND for entity.
func notFoundOr(err error, entity, key string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return appErrors.NotFound(entity, key)
	}
	return err
}

// duplicateOr maps a store ErrDuplicateKey to a DUPLICATE_KEY for field.
func duplicateOr(err error, field, value string) error {
	if errors.Is(err, repository.ErrDuplicateKey) {
		return appErrors.DuplicateKey(field, value)
	}
	return err
}

func studentProjections(ctx context.Context, r repository.Reader, students []models.Student) ([]models.StudentProjection, error) {
	ids := make([]string, len(students))
	for i, s := range students {
		ids[i] = s.ID
	}
	courses, err := r.EnrolledCourseIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.StudentProjection, len(students))
	for i, s := range students {
		out[i] = models.StudentProjection{Student: s, EnrolledCourseIDs: nonNil(courses[s.ID])}
	}
	return out, nil
}

func studentProjection(ctx context.Context, r repository.Reader, student *models.Student) (*models.StudentProjection, error) {
	list, err := studentProjections(ctx, r, []models.Student{*student})
	if err != nil {
		return nil, err
	}
	return &list[0], nil
}

// courseProjections resolves department names through names, loading them
// when names is nil.
func courseProjections(ctx context.Context, r repository.Reader, courses []models.Course, names map[string]string) ([]models.CourseProjection, error) {
	if names == nil {
		departments, err := r.ListDepartments(ctx, "")
		if err != nil {
			return nil, err
		}
		names = make(map[string]string, len(departments))
		for _, d := range departments {
			names[d.ID] = d.Name
		}
	}
	ids := make([]string, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
	}
	members, err := r.EnrolledStudentIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.CourseProjection, len(courses))
	for i, c := range courses {
		studentIDs := nonNil(members[c.ID])
		out[i] = models.CourseProjection{
			Course:             c,
			DepartmentName:     names[c.DepartmentID],
			EnrolledStudentIDs: studentIDs,
			EnrolledCount:      len(studentIDs),
		}
	}
	return out, nil
}

func courseProjection(ctx context.Context, r repository.Reader, course *models.Course) (*models.CourseProjection, error) {
	names := map[string]string{}
	dept, err := r.GetDepartment(ctx, course.DepartmentID)
	switch {
	case err == nil:
		names[dept.ID] = dept.Name
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	list, err := courseProjections(ctx, r, []models.Course{*course}, names)
	if err != nil {
		return nil, err
	}
	return &list[0], nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// uniqueIDs trims, drops blanks and duplicates, and sorts.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
