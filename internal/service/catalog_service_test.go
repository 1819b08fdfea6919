package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

func TestCatalogServiceEnrollRespectsCapacity(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	dept := f.department(t, "CS")
	cs101 := f.course(t, dept.ID, "CS101", intPtr(2))
	john := f.student(t, "john")
	mike := f.student(t, "mike")
	jane := f.student(t, "jane")

	_, err := f.catalog.Enroll(ctx, john.ID, cs101.ID)
	require.NoError(t, err)
	_, err = f.catalog.Enroll(ctx, mike.ID, cs101.ID)
	require.NoError(t, err)

	_, err = f.catalog.Enroll(ctx, jane.ID, cs101.ID)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeCapacityExceeded))
	assert.Equal(t, 422, appErrors.FromError(err).Status)

	_, err = f.catalog.Withdraw(ctx, mike.ID, cs101.ID)
	require.NoError(t, err)
	got, err := f.catalog.Enroll(ctx, jane.ID, cs101.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{cs101.ID}, got.EnrolledCourseIDs)

	course, err := f.courses.Get(ctx, cs101.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{john.ID, jane.ID}, course.EnrolledStudentIDs)
	assert.Equal(t, 2, course.EnrolledCount)

	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.enrollmentDecisions.WithLabelValues("enroll", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.enrollmentDecisions.WithLabelValues("enroll", "capacity_exceeded")))
}

func TestCatalogServiceEnrollTwiceIsRejected(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	dept := f.department(t, "CS")
	cs101 := f.course(t, dept.ID, "CS101", nil)
	john := f.student(t, "john")

	_, err := f.catalog.Enroll(ctx, john.ID, cs101.ID)
	require.NoError(t, err)

	_, err = f.catalog.Enroll(ctx, john.ID, cs101.ID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.CodeAlreadyEnrolled, appErr.Code)
	assert.Equal(t, john.ID, appErr.Details["student_id"])

	members, err := f.catalog.ListStudentsForCourse(ctx, cs101.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestCatalogServiceWithdrawRequiresMembership(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	dept := f.department(t, "CS")
	cs101 := f.course(t, dept.ID, "CS101", nil)
	john := f.student(t, "john")

	_, err := f.catalog.Withdraw(ctx, john.ID, cs101.ID)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeNotEnrolled))
}

func TestCatalogServiceEnrollUnknownEntities(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	dept := f.department(t, "CS")
	cs101 := f.course(t, dept.ID, "CS101", nil)
	john := f.student(t, "john")

	_, err := f.catalog.Enroll(ctx, "missing", cs101.ID)
	require.Error(t, err)
	assert.Equal(t, "student", appErrors.FromError(err).Details["entity"])

	_, err = f.catalog.Enroll(ctx, john.ID, "missing")
	require.Error(t, err)
	assert.Equal(t, "course", appErrors.FromError(err).Details["entity"])
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}

func TestCatalogServiceEnrollWithdrawRoundTrip(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	dept := f.department(t, "CS")
	cs101 := f.course(t, dept.ID, "CS101", intPtr(5))
	cs102 := f.course(t, dept.ID, "CS102", nil)
	john := f.student(t, "john", cs102.ID)

	before, err := f.catalog.GetStudent(ctx, john.ID)
	require.NoError(t, err)

	_, err = f.catalog.Enroll(ctx, john.ID, cs101.ID)
	require.NoError(t, err)
	after, err := f.catalog.Withdraw(ctx, john.ID, cs101.ID)
	require.NoError(t, err)

	assert.Equal(t, before.EnrolledCourseIDs, after.EnrolledCourseIDs)
	course, err := f.courses.Get(ctx, cs101.ID)
	require.NoError(t, err)
	assert.Empty(t, course.EnrolledStudentIDs)
}

func TestCatalogServiceConcurrentEnrollHonoursCapacity(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	dept := f.department(t, "CS")
	course := f.course(t, dept.ID, "CS101", intPtr(1))

	studentIDs := make([]string, 10)
	for i := range studentIDs {
		studentIDs[i] = f.student(t, fmt.Sprintf("student%d", i)).ID
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for _, id := range studentIDs {
		wg.Add(1)
		go func(studentID string) {
			defer wg.Done()
			_, err := f.catalog.Enroll(ctx, studentID, course.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case appErrors.HasCode(err, appErrors.CodeCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 9, rejected)
	members, err := f.catalog.ListStudentsForCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestCatalogServiceEmailUniqueness(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	john := f.student(t, "john")
	jane := f.student(t, "jane")

	_, err := f.catalog.CreateStudent(ctx, studentRequest("john"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.CodeDuplicateKey, appErr.Code)
	assert.Equal(t, "email", appErr.Details["field"])

	update := UpdateStudentRequest{FirstName: "Jane", LastName: "Doe", Email: john.Email, PhoneNumber: "+15551234567"}
	_, err = f.catalog.UpdateStudent(ctx, jane.ID, update)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeDuplicateKey))

	update.Email = jane.Email
	update.LastName = "Roe"
	updated, err := f.catalog.UpdateStudent(ctx, jane.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "Roe", updated.LastName)
	assert.Equal(t, jane.EnrollmentDate, updated.EnrollmentDate)
}

func TestCatalogServiceCreateStudentSeedsCoursesWithoutCapacityCheck(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	dept := f.department(t, "CS")
	full := f.course(t, dept.ID, "CS101", intPtr(0))
	open := f.course(t, dept.ID, "CS102", nil)

	student := f.student(t, "john", open.ID, full.ID, open.ID, " ")
	assert.ElementsMatch(t, []string{full.ID, open.ID}, student.EnrolledCourseIDs)

	course, err := f.courses.Get(ctx, full.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, course.EnrolledCount)

	_, err = f.catalog.CreateStudent(ctx, studentRequest("jane", "missing"))
	require.Error(t, err)
	assert.Equal(t, "course", appErrors.FromError(err).Details["entity"])
	_, err = f.catalog.GetStudentByEmail(ctx, "jane@example.com")
	assert.True(t, appErrors.HasCode(err, appErrors.CodeNotFound))
}

func TestCatalogServiceCreateStudentValidation(t *testing.T) {
	f := newCatalogFixture(t)

	req := studentRequest("john")
	req.Email = "not-an-email"
	req.PhoneNumber = "123"
	_, err := f.catalog.CreateStudent(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.CodeValidation, appErr.Code)
	assert.Equal(t, "email", appErr.Details["email"])
	assert.Equal(t, "phone", appErr.Details["phone_number"])
}

func TestCatalogServiceDeleteStudentClearsMemberships(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	dept := f.department(t, "CS")
	course := f.course(t, dept.ID, "CS101", nil)
	john := f.student(t, "john", course.ID)

	require.NoError(t, f.catalog.DeleteStudent(ctx, john.ID))

	members, err := f.catalog.ListStudentsForCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
	_, err = f.catalog.GetStudent(ctx, john.ID)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeNotFound))
	assert.True(t, appErrors.HasCode(f.catalog.DeleteStudent(ctx, john.ID), appErrors.CodeNotFound))
}

func TestCatalogServiceLookups(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	john := f.student(t, "john")
	req := studentRequest("ann")
	req.LastName = "Smithson"
	_, err := f.catalog.CreateStudent(ctx, req)
	require.NoError(t, err)

	byEmail, err := f.catalog.GetStudentByEmail(ctx, " john@example.com ")
	require.NoError(t, err)
	assert.Equal(t, john.ID, byEmail.ID)
	assert.NotNil(t, byEmail.EnrolledCourseIDs)

	found, err := f.catalog.SearchStudentsByLastName(ctx, "smith")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ann@example.com", found[0].Email)

	all, err := f.catalog.ListStudents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.catalog.ListStudentsForCourse(ctx, "missing")
	assert.True(t, appErrors.HasCode(err, appErrors.CodeNotFound))
}

func TestCatalogServiceWrapsStoreFailures(t *testing.T) {
	store := failingStore{err: context.DeadlineExceeded}
	svc := NewCatalogService(store, nil, nil, nil, zap.NewNop(), 0)

	_, err := svc.Enroll(context.Background(), "s", "c")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.CodeInternal, appErr.Code)
	assert.True(t, appErr.Retryable)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	store.err = errors.New("disk on fire")
	svc = NewCatalogService(store, nil, nil, nil, zap.NewNop(), 0)
	_, err = svc.ListStudents(context.Background())
	appErr = appErrors.FromError(err)
	assert.Equal(t, appErrors.CodeInternal, appErr.Code)
	assert.False(t, appErr.Retryable)
}

func TestCatalogServiceEnrollStudentDeletedConcurrently(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	dept := f.department(t, "CS")
	course := f.course(t, dept.ID, "CS101", nil)
	john := f.student(t, "john")

	svc := NewCatalogService(vanishingStudentStore{MemoryStore: f.store}, nil, nil, nil, zap.NewNop(), 0)
	_, err := svc.Enroll(ctx, john.ID, course.ID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.CodeNotFound, appErr.Code)
	assert.Equal(t, 404, appErr.Status)
	assert.Equal(t, "student", appErr.Details["entity"])
}

func TestCatalogServiceTrimsBeforeValidating(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	req := studentRequest("john")
	req.FirstName = "   "
	req.LastName = "\t"
	_, err := f.catalog.CreateStudent(ctx, req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.CodeValidation, appErr.Code)
	assert.Equal(t, "required", appErr.Details["first_name"])
	assert.Equal(t, "required", appErr.Details["last_name"])

	req = studentRequest("jane")
	req.Email = " jane@example.com "
	req.FirstName = " Jane "
	created, err := f.catalog.CreateStudent(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", created.Email)
	assert.Equal(t, "Jane", created.FirstName)

	update := UpdateStudentRequest{FirstName: "Jane", LastName: " ", Email: "jane@example.com", PhoneNumber: "+15551234567"}
	_, err = f.catalog.UpdateStudent(ctx, created.ID, update)
	assert.Equal(t, "required", appErrors.FromError(err).Details["last_name"])

	update.LastName = "Roe"
	update.Email = "  jane.roe@example.com"
	updated, err := f.catalog.UpdateStudent(ctx, created.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "jane.roe@example.com", updated.Email)
}
