package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/enrollment-api/internal/enrollment"
	"github.com/noah-isme/enrollment-api/internal/models"
)

// Sentinel errors shared by every store adapter.
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Reader exposes the read side of the entity store. Missing single records
// are reported as ErrNotFound.
type Reader interface {
	GetDepartment(ctx context.Context, id string) (*models.Department, error)
	ListDepartments(ctx context.Context, search string) ([]models.Department, error)
	ExistsDepartmentWithCode(ctx context.Context, code, excludeID string) (bool, error)
	CourseIDsForDepartment(ctx context.Context, departmentID string) ([]string, error)

	GetCourse(ctx context.Context, id string) (*models.Course, error)
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	ExistsCourseWithCode(ctx context.Context, code, excludeID string) (bool, error)

	GetStudent(ctx context.Context, id string) (*models.Student, error)
	GetStudentByEmail(ctx context.Context, email string) (*models.Student, error)
	ListStudents(ctx context.Context) ([]models.Student, error)
	SearchStudentsByLastName(ctx context.Context, fragment string) ([]models.Student, error)
	ExistsStudentWithEmail(ctx context.Context, email, excludeID string) (bool, error)

	FindStudentsByCourse(ctx context.Context, courseID string) ([]models.Student, error)
	FindCoursesByStudent(ctx context.Context, studentID string) ([]models.Course, error)
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
	CountEnrolled(ctx context.Context, courseID string) (int, error)
	EnrolledCourseIDs(ctx context.Context, studentIDs []string) (map[string][]string, error)
	EnrolledStudentIDs(ctx context.Context, courseIDs []string) (map[string][]string, error)
}

// Tx is a unit of work. Writes become visible only when the enclosing
// WithinTx call commits.
type Tx interface {
	Reader

	// LockCourse loads the course and holds its membership lock until the
	// transaction ends, serializing enroll/withdraw decisions per course.
	LockCourse(ctx context.Context, id string) (*models.Course, error)

	SaveDepartment(ctx context.Context, department *models.Department) error
	DeleteDepartment(ctx context.Context, id string) error
	SaveCourse(ctx context.Context, course *models.Course) error
	DeleteCourse(ctx context.Context, id string) error
	SaveStudent(ctx context.Context, student *models.Student) error
	DeleteStudent(ctx context.Context, id string) error

	AddEnrollment(ctx context.Context, studentID, courseID string) error
	RemoveEnrollment(ctx context.Context, studentID, courseID string) error
}

// Store is an entity store adapter.
type Store interface {
	Reader

	// WithinTx runs fn atomically. When fn returns an error nothing it wrote
	// is kept and the error is returned unchanged.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn against a consistent read-only snapshot so projections
	// assembled from several reads agree with each other.
	View(ctx context.Context, fn func(r Reader) error) error

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}

// ApplyDelta writes an accepted enrollment decision through tx.
func ApplyDelta(ctx context.Context, tx Tx, d enrollment.Delta) error {
	switch d.Op {
	case enrollment.OpAdd:
		return tx.AddEnrollment(ctx, d.Pair.StudentID, d.Pair.CourseID)
	case enrollment.OpRemove:
		return tx.RemoveEnrollment(ctx, d.Pair.StudentID, d.Pair.CourseID)
	default:
		return fmt.Errorf("apply enrollment delta: unknown op %q", d.Op)
	}
}
