package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
	"github.com/noah-isme/enrollment-api/pkg/export"
)

// CourseRequest holds payload for creating or updating a course. An empty
// CourseType defaults to CORE; a nil Capacity means unlimited.
type CourseRequest struct {
	CourseCode   string            `json:"course_code" validate:"required,max=20"`
	CourseName   string            `json:"course_name" validate:"required,max=150"`
	Description  string            `json:"description" validate:"max=1000"`
	CreditHours  int               `json:"credit_hours" validate:"required,gt=0"`
	CourseType   models.CourseType `json:"course_type" validate:"omitempty,oneof=CORE ELECTIVE LAB SEMINAR"`
	StartDate    *time.Time        `json:"start_date"`
	EndDate      *time.Time        `json:"end_date"`
	Capacity     *int              `json:"capacity" validate:"omitempty,gte=0"`
	DepartmentID string            `json:"department_id" validate:"required"`
}

func (r *CourseRequest) normalize() {
	r.CourseCode = strings.TrimSpace(r.CourseCode)
	r.CourseName = strings.TrimSpace(r.CourseName)
	r.Description = strings.TrimSpace(r.Description)
	r.DepartmentID = strings.TrimSpace(r.DepartmentID)
}

// Roster is a rendered export of a course's members.
type Roster struct {
	Filename string
	*export.Document
}

// CourseService manages the course catalog.
type CourseService struct {
	storeOps
	validator *validator.Validate
}

// NewCourseService constructs the course service.
func NewCourseService(store repository.Store, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, timeout time.Duration) *CourseService {
	if validate == nil {
		validate = NewValidator()
	}
	return &CourseService{storeOps: newStoreOps(store, cache, metrics, logger, timeout), validator: validate}
}

// List returns courses matching filter ordered by course code.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var out []models.CourseProjection
	err := s.view(ctx, func(r repository.Reader) error {
		courses, err := r.ListCourses(ctx, filter)
		if err != nil {
			return err
		}
		out, err = courseProjections(ctx, r, courses, nil)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to list courses")
	}
	return out, nil
}

// ListByDepartment returns the department's courses.
func (s *CourseService) ListByDepartment(ctx context.Context, departmentID string) ([]models.CourseProjection, error) {
	return s.departmentCourses(ctx, departmentID)
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var cached models.CourseProjection
	if s.cache.Get(ctx, courseCacheKey(id), &cached) {
		return &cached, nil
	}

	var out *models.CourseProjection
	err := s.view(ctx, func(r repository.Reader) error {
		course, err := r.GetCourse(ctx, id)
		if err != nil {
			return notFoundOr(err, "course", id)
		}
		out, err = courseProjection(ctx, r, course)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to load course")
	}

	s.cache.Set(ctx, courseCacheKey(id), out)
	return out, nil
}

// Create adds a course to a department.
func (s *CourseService) Create(ctx context.Context, req CourseRequest) (*models.CourseProjection, error) {
	req.normalize()
	if err := s.validate(req); err != nil {
		return nil, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	course := &models.Course{}
	applyCourseRequest(course, req)

	var out *models.CourseProjection
	err := s.inTx(ctx, "create_course", func(tx repository.Tx) error {
		dept, err := tx.GetDepartment(ctx, course.DepartmentID)
		if err != nil {
			return notFoundOr(err, "department", course.DepartmentID)
		}
		exists, err := tx.ExistsCourseWithCode(ctx, course.CourseCode, "")
		if err != nil {
			return err
		}
		if exists {
			return appErrors.DuplicateKey("course_code", course.CourseCode)
		}
		if err := tx.SaveCourse(ctx, course); err != nil {
			return duplicateOr(err, "course_code", course.CourseCode)
		}
		out = &models.CourseProjection{Course: *course, DepartmentName: dept.Name, EnrolledStudentIDs: []string{}}
		return nil
	})
	if err != nil {
		return nil, s.domainError(err, "failed to create course")
	}

	s.cache.Invalidate(ctx, departmentCacheKey(course.DepartmentID))
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("course_code", course.CourseCode))
	return out, nil
}

// Update replaces a course's details. Capacity may not drop below the
// current number of enrolled students.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest) (*models.CourseProjection, error) {
	req.normalize()
	if err := s.validate(req); err != nil {
		return nil, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var (
		out       *models.CourseProjection
		oldDeptID string
	)
	err := s.inTx(ctx, "update_course", func(tx repository.Tx) error {
		course, err := tx.LockCourse(ctx, id)
		if err != nil {
			return notFoundOr(err, "course", id)
		}
		oldDeptID = course.DepartmentID
		if _, err := tx.GetDepartment(ctx, req.DepartmentID); err != nil {
			return notFoundOr(err, "department", req.DepartmentID)
		}
		code := req.CourseCode
		exists, err := tx.ExistsCourseWithCode(ctx, code, id)
		if err != nil {
			return err
		}
		if exists {
			return appErrors.DuplicateKey("course_code", code)
		}
		if req.Capacity != nil {
			enrolled, err := tx.CountEnrolled(ctx, id)
			if err != nil {
				return err
			}
			if enrolled > *req.Capacity {
				ruleErr := appErrors.BusinessRule(appErrors.CodeCapacityExceeded,
					fmt.Sprintf("capacity %d is below the %d students already enrolled", *req.Capacity, enrolled))
				ruleErr.Details = map[string]string{"course_id": id}
				return ruleErr
			}
		}

		applyCourseRequest(course, req)
		if err := tx.SaveCourse(ctx, course); err != nil {
			return duplicateOr(err, "course_code", code)
		}
		out, err = courseProjection(ctx, tx, course)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to update course")
	}

	s.cache.Invalidate(ctx, courseCacheKey(id), departmentCacheKey(oldDeptID), departmentCacheKey(req.DepartmentID))
	s.logger.Info("course updated", zap.String("course_id", id))
	return out, nil
}

// Delete removes the course and every membership in it.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var (
		deptID     string
		studentIDs []string
	)
	err := s.inTx(ctx, "delete_course", func(tx repository.Tx) error {
		course, err := tx.LockCourse(ctx, id)
		if err != nil {
			return notFoundOr(err, "course", id)
		}
		deptID = course.DepartmentID
		members, err := tx.EnrolledStudentIDs(ctx, []string{id})
		if err != nil {
			return err
		}
		studentIDs = members[id]
		if err := tx.DeleteCourse(ctx, id); err != nil {
			return notFoundOr(err, "course", id)
		}
		return nil
	})
	if err != nil {
		return s.domainError(err, "failed to delete course")
	}

	keys := append(studentCacheKeys(studentIDs), courseCacheKey(id), departmentCacheKey(deptID))
	s.cache.Invalidate(ctx, keys...)
	s.logger.Info("course deleted", zap.String("course_id", id), zap.Int("students", len(studentIDs)))
	return nil
}

// Roster renders the course's members in the requested format.
func (s *CourseService) Roster(ctx context.Context, id string, format export.Format) (*Roster, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var (
		course   *models.Course
		students []models.Student
	)
	err := s.view(ctx, func(r repository.Reader) error {
		var err error
		course, err = r.GetCourse(ctx, id)
		if err != nil {
			return notFoundOr(err, "course", id)
		}
		students, err = r.FindStudentsByCourse(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to load course roster")
	}

	table := export.Table{
		Title:   fmt.Sprintf("%s %s", course.CourseCode, course.CourseName),
		Headers: []string{"Last Name", "First Name", "Email", "Phone", "Enrolled Since"},
		Rows:    make([][]string, 0, len(students)),
	}
	for _, st := range students {
		table.Rows = append(table.Rows, []string{
			st.LastName, st.FirstName, st.Email, st.PhoneNumber, st.EnrollmentDate.Format("2006-01-02"),
		})
	}
	doc, err := export.Render(format, table)
	if err != nil {
		return nil, appErrors.Validation(err, "unsupported roster format")
	}
	return &Roster{Filename: fmt.Sprintf("roster-%s.%s", strings.ToLower(course.CourseCode), doc.Extension), Document: doc}, nil
}

func (s *CourseService) validate(req CourseRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid course payload")
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return fieldError("end_date", "gtefield", "end date must not be before start date")
	}
	return nil
}

func applyCourseRequest(course *models.Course, req CourseRequest) {
	course.CourseCode = req.CourseCode
	course.CourseName = req.CourseName
	course.Description = req.Description
	course.CreditHours = req.CreditHours
	course.CourseType = req.CourseType
	if course.CourseType == "" {
		course.CourseType = models.CourseTypeCore
	}
	course.StartDate = req.StartDate
	course.EndDate = req.EndDate
	course.Capacity = req.Capacity
	course.DepartmentID = req.DepartmentID
}
