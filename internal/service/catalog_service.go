package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/enrollment"
	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

// CreateStudentRequest holds payload for registering a student. CourseIDs
// seeds the initial enrollments.
type CreateStudentRequest struct {
	FirstName   string        `json:"first_name" validate:"required,max=100"`
	LastName    string        `json:"last_name" validate:"required,max=100"`
	Email       string        `json:"email" validate:"required,email,max=255"`
	PhoneNumber string        `json:"phone_number" validate:"required,phone"`
	DateOfBirth *time.Time    `json:"date_of_birth"`
	Address     string        `json:"address" validate:"max=255"`
	Gender      models.Gender `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER"`
	CourseIDs   []string      `json:"course_ids"`
}

// UpdateStudentRequest holds payload for updating a student's details.
// Enrollments are changed only through Enroll and Withdraw.
type UpdateStudentRequest struct {
	FirstName   string        `json:"first_name" validate:"required,max=100"`
	LastName    string        `json:"last_name" validate:"required,max=100"`
	Email       string        `json:"email" validate:"required,email,max=255"`
	PhoneNumber string        `json:"phone_number" validate:"required,phone"`
	DateOfBirth *time.Time    `json:"date_of_birth"`
	Address     string        `json:"address" validate:"max=255"`
	Gender      models.Gender `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER"`
}

func (r *CreateStudentRequest) normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.Address = strings.TrimSpace(r.Address)
}

func (r *UpdateStudentRequest) normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.Address = strings.TrimSpace(r.Address)
}

// CatalogService owns students and their course memberships. Every write runs
// in a single store transaction; enroll and withdraw decisions are taken by
// the enrollment engine while the course is locked.
type CatalogService struct {
	storeOps
	validator *validator.Validate
}

// NewCatalogService constructs the catalog service.
func NewCatalogService(store repository.Store, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, timeout time.Duration) *CatalogService {
	if validate == nil {
		validate = NewValidator()
	}
	return &CatalogService{
		storeOps:  newStoreOps(store, cache, metrics, logger, timeout),
		validator: validate,
	}
}

// Enroll adds the student to the course.
func (s *CatalogService) Enroll(ctx context.Context, studentID, courseID string) (*models.StudentProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var out *models.StudentProjection
	err := s.inTx(ctx, "enroll", func(tx repository.Tx) error {
		student, err := tx.GetStudent(ctx, studentID)
		if err != nil {
			return notFoundOr(err, "student", studentID)
		}
		course, err := tx.LockCourse(ctx, courseID)
		if err != nil {
			return notFoundOr(err, "course", courseID)
		}

		pair := enrollment.Pair{StudentID: studentID, CourseID: courseID}
		snap, err := snapshot(ctx, tx, pair, course.Capacity)
		if err != nil {
			return err
		}
		decision := enrollment.CanEnroll(pair, snap)
		if !decision.Accepted() {
			return rejection(decision.Reason, pair)
		}
		if err := repository.ApplyDelta(ctx, tx, decision.Delta); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return rejection(enrollment.ReasonAlreadyEnrolled, pair)
			}
			return notFoundOr(err, "student", studentID)
		}
		out, err = studentProjection(ctx, tx, student)
		return err
	})
	s.recordDecision("enroll", err)
	if err != nil {
		return nil, s.domainError(err, "failed to enroll student")
	}

	s.cache.Invalidate(ctx, studentCacheKey(studentID), courseCacheKey(courseID))
	s.logger.Info("student enrolled", zap.String("student_id", studentID), zap.String("course_id", courseID))
	return out, nil
}

// Withdraw removes the student from the course.
func (s *CatalogService) Withdraw(ctx context.Context, studentID, courseID string) (*models.StudentProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var out *models.StudentProjection
	err := s.inTx(ctx, "withdraw", func(tx repository.Tx) error {
		student, err := tx.GetStudent(ctx, studentID)
		if err != nil {
			return notFoundOr(err, "student", studentID)
		}
		course, err := tx.LockCourse(ctx, courseID)
		if err != nil {
			return notFoundOr(err, "course", courseID)
		}

		pair := enrollment.Pair{StudentID: studentID, CourseID: courseID}
		snap, err := snapshot(ctx, tx, pair, course.Capacity)
		if err != nil {
			return err
		}
		decision := enrollment.CanWithdraw(pair, snap)
		if !decision.Accepted() {
			return rejection(decision.Reason, pair)
		}
		if err := repository.ApplyDelta(ctx, tx, decision.Delta); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return rejection(enrollment.ReasonNotEnrolled, pair)
			}
			return err
		}
		out, err = studentProjection(ctx, tx, student)
		return err
	})
	s.recordDecision("withdraw", err)
	if err != nil {
		return nil, s.domainError(err, "failed to withdraw student")
	}

	s.cache.Invalidate(ctx, studentCacheKey(studentID), courseCacheKey(courseID))
	s.logger.Info("student withdrawn", zap.String("student_id", studentID), zap.String("course_id", courseID))
	return out, nil
}

// CreateStudent registers a student and enrolls them in the requested
// courses. The initial enrollment is an administrative import and is not
// subject to capacity checks.
func (s *CatalogService) CreateStudent(ctx context.Context, req CreateStudentRequest) (*models.StudentProjection, error) {
	req.normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	email := req.Email
	courseIDs := uniqueIDs(req.CourseIDs)
	student := &models.Student{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       email,
		PhoneNumber: req.PhoneNumber,
		DateOfBirth: req.DateOfBirth,
		Address:     req.Address,
		Gender:      req.Gender,
	}

	err := s.inTx(ctx, "create_student", func(tx repository.Tx) error {
		exists, err := tx.ExistsStudentWithEmail(ctx, email, "")
		if err != nil {
			return err
		}
		if exists {
			return appErrors.DuplicateKey("email", email)
		}
		for _, id := range courseIDs {
			if _, err := tx.GetCourse(ctx, id); err != nil {
				return notFoundOr(err, "course", id)
			}
		}
		if err := tx.SaveStudent(ctx, student); err != nil {
			return duplicateOr(err, "email", email)
		}
		for _, id := range courseIDs {
			if err := tx.AddEnrollment(ctx, student.ID, id); err != nil {
				return notFoundOr(err, "course", id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.domainError(err, "failed to create student")
	}

	s.cache.Invalidate(ctx, courseCacheKeys(courseIDs)...)
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.Int("courses", len(courseIDs)))
	return &models.StudentProjection{Student: *student, EnrolledCourseIDs: courseIDs}, nil
}

// UpdateStudent replaces the student's details. Memberships and the
// enrollment date are left untouched.
func (s *CatalogService) UpdateStudent(ctx context.Context, id string, req UpdateStudentRequest) (*models.StudentProjection, error) {
	req.normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	email := req.Email
	var out *models.StudentProjection
	err := s.inTx(ctx, "update_student", func(tx repository.Tx) error {
		student, err := tx.GetStudent(ctx, id)
		if err != nil {
			return notFoundOr(err, "student", id)
		}
		exists, err := tx.ExistsStudentWithEmail(ctx, email, id)
		if err != nil {
			return err
		}
		if exists {
			return appErrors.DuplicateKey("email", email)
		}

		student.FirstName = req.FirstName
		student.LastName = req.LastName
		student.Email = email
		student.PhoneNumber = req.PhoneNumber
		student.DateOfBirth = req.DateOfBirth
		student.Address = req.Address
		student.Gender = req.Gender
		if err := tx.SaveStudent(ctx, student); err != nil {
			return duplicateOr(err, "email", email)
		}
		out, err = studentProjection(ctx, tx, student)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to update student")
	}

	s.cache.Invalidate(ctx, studentCacheKey(id))
	s.logger.Info("student updated", zap.String("student_id", id))
	return out, nil
}

// DeleteStudent removes the student and every membership they hold.
func (s *CatalogService) DeleteStudent(ctx context.Context, id string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var courseIDs []string
	err := s.inTx(ctx, "delete_student", func(tx repository.Tx) error {
		if _, err := tx.GetStudent(ctx, id); err != nil {
			return notFoundOr(err, "student", id)
		}
		memberships, err := tx.EnrolledCourseIDs(ctx, []string{id})
		if err != nil {
			return err
		}
		courseIDs = memberships[id]
		if err := tx.DeleteStudent(ctx, id); err != nil {
			return notFoundOr(err, "student", id)
		}
		return nil
	})
	if err != nil {
		return s.domainError(err, "failed to delete student")
	}

	s.cache.Invalidate(ctx, append(courseCacheKeys(courseIDs), studentCacheKey(id))...)
	s.logger.Info("student deleted", zap.String("student_id", id), zap.Int("courses", len(courseIDs)))
	return nil
}

// ListStudents returns every student ordered by last name then first name.
func (s *CatalogService) ListStudents(ctx context.Context) ([]models.StudentProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var out []models.StudentProjection
	err := s.view(ctx, func(r repository.Reader) error {
		students, err := r.ListStudents(ctx)
		if err != nil {
			return err
		}
		out, err = studentProjections(ctx, r, students)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to list students")
	}
	return out, nil
}

// GetStudent returns a single student.
func (s *CatalogService) GetStudent(ctx context.Context, id string) (*models.StudentProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var cached models.StudentProjection
	if s.cache.Get(ctx, studentCacheKey(id), &cached) {
		return &cached, nil
	}

	var out *models.StudentProjection
	err := s.view(ctx, func(r repository.Reader) error {
		student, err := r.GetStudent(ctx, id)
		if err != nil {
			return notFoundOr(err, "student", id)
		}
		out, err = studentProjection(ctx, r, student)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to load student")
	}

	s.cache.Set(ctx, studentCacheKey(id), out)
	return out, nil
}

// GetStudentByEmail looks a student up by exact email.
func (s *CatalogService) GetStudentByEmail(ctx context.Context, email string) (*models.StudentProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	email = strings.TrimSpace(email)
	var out *models.StudentProjection
	err := s.view(ctx, func(r repository.Reader) error {
		student, err := r.GetStudentByEmail(ctx, email)
		if err != nil {
			return notFoundOr(err, "student", email)
		}
		out, err = studentProjection(ctx, r, student)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to load student")
	}
	return out, nil
}

// SearchStudentsByLastName returns students whose last name contains
// fragment, ignoring case.
func (s *CatalogService) SearchStudentsByLastName(ctx context.Context, fragment string) ([]models.StudentProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	fragment = strings.TrimSpace(fragment)
	var out []models.StudentProjection
	err := s.view(ctx, func(r repository.Reader) error {
		students, err := r.SearchStudentsByLastName(ctx, fragment)
		if err != nil {
			return err
		}
		out, err = studentProjections(ctx, r, students)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to search students")
	}
	return out, nil
}

// ListStudentsForCourse returns the course's members.
func (s *CatalogService) ListStudentsForCourse(ctx context.Context, courseID string) ([]models.StudentProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var out []models.StudentProjection
	err := s.view(ctx, func(r repository.Reader) error {
		if _, err := r.GetCourse(ctx, courseID); err != nil {
			return notFoundOr(err, "course", courseID)
		}
		students, err := r.FindStudentsByCourse(ctx, courseID)
		if err != nil {
			return err
		}
		out, err = studentProjections(ctx, r, students)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to list course students")
	}
	return out, nil
}

func (s *CatalogService) recordDecision(operation string, err error) {
	outcome := "accepted"
	if err != nil {
		outcome = "error"
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			outcome = strings.ToLower(appErr.Code)
		}
	}
	s.metrics.RecordEnrollmentDecision(operation, outcome)
}

func snapshot(ctx context.Context, tx repository.Reader, pair enrollment.Pair, capacity *int) (enrollment.Snapshot, error) {
	member, err := tx.IsEnrolled(ctx, pair.StudentID, pair.CourseID)
	if err != nil {
		return enrollment.Snapshot{}, err
	}
	enrolled, err := tx.CountEnrolled(ctx, pair.CourseID)
	if err != nil {
		return enrollment.Snapshot{}, err
	}
	return enrollment.Snapshot{Capacity: capacity, Enrolled: enrolled, Member: member}, nil
}

var rejectionMessages = map[enrollment.Reason]string{
	enrollment.ReasonAlreadyEnrolled:  "student is already enrolled in this course",
	enrollment.ReasonCapacityExceeded: "course has reached its capacity",
	enrollment.ReasonNotEnrolled:      "student is not enrolled in this course",
}

func rejection(reason enrollment.Reason, pair enrollment.Pair) *appErrors.Error {
	err := appErrors.BusinessRule(string(reason), rejectionMessages[reason])
	err.Details = map[string]string{"student_id": pair.StudentID, "course_id": pair.CourseID}
	return err
}
