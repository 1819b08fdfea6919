package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/repository"
)

type catalogFixture struct {
	store       *repository.MemoryStore
	catalog     *CatalogService
	courses     *CourseService
	departments *DepartmentService
	metrics     *MetricsService
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	metrics := NewMetricsService()
	validate := NewValidator()
	logger := zap.NewNop()
	return &catalogFixture{
		store:       store,
		catalog:     NewCatalogService(store, nil, metrics, validate, logger, 0),
		courses:     NewCourseService(store, nil, metrics, validate, logger, 0),
		departments: NewDepartmentService(store, nil, metrics, validate, logger, 0),
		metrics:     metrics,
	}
}

func (f *catalogFixture) department(t *testing.T, code string) *models.DepartmentProjection {
	t.Helper()
	dept, err := f.departments.Create(context.Background(), DepartmentRequest{Code: code, Name: code + " Department"})
	require.NoError(t, err)
	return dept
}

func (f *catalogFixture) course(t *testing.T, departmentID, code string, capacity *int) *models.CourseProjection {
	t.Helper()
	course, err := f.courses.Create(context.Background(), CourseRequest{
		CourseCode:   code,
		CourseName:   code + " course",
		CreditHours:  3,
		Capacity:     capacity,
		DepartmentID: departmentID,
	})
	require.NoError(t, err)
	return course
}

func (f *catalogFixture) student(t *testing.T, first string, courseIDs ...string) *models.StudentProjection {
	t.Helper()
	student, err := f.catalog.CreateStudent(context.Background(), studentRequest(first, courseIDs...))
	require.NoError(t, err)
	return student
}

func studentRequest(first string, courseIDs ...string) CreateStudentRequest {
	return CreateStudentRequest{
		FirstName:   first,
		LastName:    "Doe",
		Email:       fmt.Sprintf("%s@example.com", first),
		PhoneNumber: "+15551234567",
		Gender:      models.GenderOther,
		CourseIDs:   courseIDs,
	}
}

func intPtr(v int) *int { return &v }

// failingStore rejects every transaction and read with err.
type failingStore struct {
	repository.Store
	err error
}

func (f failingStore) WithinTx(context.Context, func(repository.Tx) error) error { return f.err }
func (f failingStore) View(context.Context, func(repository.Reader) error) error  { return f.err }
func (f failingStore) Ping(context.Context) error                                 { return f.err }

// vanishingStudentStore fails every membership insert as if the student row
// had been deleted by a concurrent transaction.
type vanishingStudentStore struct {
	*repository.MemoryStore
}

func (s vanishingStudentStore) WithinTx(ctx context.Context, fn func(repository.Tx) error) error {
	return s.MemoryStore.WithinTx(ctx, func(tx repository.Tx) error {
		return fn(vanishingStudentTx{Tx: tx})
	})
}

type vanishingStudentTx struct {
	repository.Tx
}

func (vanishingStudentTx) AddEnrollment(_ context.Context, studentID, _ string) error {
	return fmt.Errorf("enroll student %s: %w", studentID, repository.ErrNotFound)
}
