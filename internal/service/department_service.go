package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

// DepartmentRequest holds payload for creating or updating a department.
type DepartmentRequest struct {
	Code        string `json:"code" validate:"required,max=20"`
	Name        string `json:"name" validate:"required,max=150"`
	Description string `json:"description" validate:"max=1000"`
}

func (r *DepartmentRequest) normalize() {
	r.Code = strings.TrimSpace(r.Code)
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
}

// DepartmentService manages departments.
type DepartmentService struct {
	storeOps
	validator *validator.Validate
}

// NewDepartmentService constructs the department service.
func NewDepartmentService(store repository.Store, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, timeout time.Duration) *DepartmentService {
	if validate == nil {
		validate = NewValidator()
	}
	return &DepartmentService{storeOps: newStoreOps(store, cache, metrics, logger, timeout), validator: validate}
}

// List returns departments whose name contains search (all when empty).
func (s *DepartmentService) List(ctx context.Context, search string) ([]models.DepartmentProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var out []models.DepartmentProjection
	err := s.view(ctx, func(r repository.Reader) error {
		departments, err := r.ListDepartments(ctx, search)
		if err != nil {
			return err
		}
		courses, err := r.ListCourses(ctx, models.CourseFilter{})
		if err != nil {
			return err
		}
		byDept := make(map[string][]string, len(departments))
		for _, c := range courses {
			byDept[c.DepartmentID] = append(byDept[c.DepartmentID], c.ID)
		}
		out = make([]models.DepartmentProjection, len(departments))
		for i, d := range departments {
			out[i] = models.DepartmentProjection{Department: d, CourseIDs: nonNil(byDept[d.ID])}
		}
		return nil
	})
	if err != nil {
		return nil, s.domainError(err, "failed to list departments")
	}
	return out, nil
}

// Get returns a single department.
func (s *DepartmentService) Get(ctx context.Context, id string) (*models.DepartmentProjection, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var cached models.DepartmentProjection
	if s.cache.Get(ctx, departmentCacheKey(id), &cached) {
		return &cached, nil
	}

	var out *models.DepartmentProjection
	err := s.view(ctx, func(r repository.Reader) error {
		dept, err := r.GetDepartment(ctx, id)
		if err != nil {
			return notFoundOr(err, "department", id)
		}
		out, err = departmentProjection(ctx, r, dept)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to load department")
	}

	s.cache.Set(ctx, departmentCacheKey(id), out)
	return out, nil
}

// Create registers a department.
func (s *DepartmentService) Create(ctx context.Context, req DepartmentRequest) (*models.DepartmentProjection, error) {
	req.normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid department payload")
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	dept := &models.Department{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
	}
	err := s.inTx(ctx, "create_department", func(tx repository.Tx) error {
		exists, err := tx.ExistsDepartmentWithCode(ctx, dept.Code, "")
		if err != nil {
			return err
		}
		if exists {
			return appErrors.DuplicateKey("code", dept.Code)
		}
		return duplicateOr(tx.SaveDepartment(ctx, dept), "code", dept.Code)
	})
	if err != nil {
		return nil, s.domainError(err, "failed to create department")
	}

	s.logger.Info("department created", zap.String("department_id", dept.ID), zap.String("code", dept.Code))
	return &models.DepartmentProjection{Department: *dept, CourseIDs: []string{}}, nil
}

// Update replaces a department's details.
func (s *DepartmentService) Update(ctx context.Context, id string, req DepartmentRequest) (*models.DepartmentProjection, error) {
	req.normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid department payload")
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	code := req.Code
	var out *models.DepartmentProjection
	err := s.inTx(ctx, "update_department", func(tx repository.Tx) error {
		dept, err := tx.GetDepartment(ctx, id)
		if err != nil {
			return notFoundOr(err, "department", id)
		}
		exists, err := tx.ExistsDepartmentWithCode(ctx, code, id)
		if err != nil {
			return err
		}
		if exists {
			return appErrors.DuplicateKey("code", code)
		}
		dept.Code = code
		dept.Name = req.Name
		dept.Description = req.Description
		if err := tx.SaveDepartment(ctx, dept); err != nil {
			return duplicateOr(err, "code", code)
		}
		out, err = departmentProjection(ctx, tx, dept)
		return err
	})
	if err != nil {
		return nil, s.domainError(err, "failed to update department")
	}

	// Course projections carry the department name.
	s.cache.Invalidate(ctx, append(courseCacheKeys(out.CourseIDs), departmentCacheKey(id))...)
	s.logger.Info("department updated", zap.String("department_id", id))
	return out, nil
}

// Delete removes the department together with its courses and their memberships.
func (s *DepartmentService) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var courseIDs []string
	err := s.inTx(ctx, "delete_department", func(tx repository.Tx) error {
		if _, err := tx.GetDepartment(ctx, id); err != nil {
			return notFoundOr(err, "department", id)
		}
		var err error
		courseIDs, err = tx.CourseIDsForDepartment(ctx, id)
		if err != nil {
			return err
		}
		return notFoundOr(tx.DeleteDepartment(ctx, id), "department", id)
	})
	if err != nil {
		return s.domainError(err, "failed to delete department")
	}

	if len(courseIDs) > 0 {
		// Any student may have held a membership in the removed courses.
		s.cache.InvalidatePattern(ctx, everythingPattern)
	} else {
		s.cache.Invalidate(ctx, departmentCacheKey(id))
	}
	s.logger.Info("department deleted", zap.String("department_id", id), zap.Int("courses", len(courseIDs)))
	return nil
}

// Courses returns the department's courses.
func (s *DepartmentService) Courses(ctx context.Context, id string) ([]models.CourseProjection, error) {
	return s.departmentCourses(ctx, id)
}

func departmentProjection(ctx context.Context, r repository.Reader, dept *models.Department) (*models.DepartmentProjection, error) {
	ids, err := r.CourseIDsForDepartment(ctx, dept.ID)
	if err != nil {
		return nil, err
	}
	return &models.DepartmentProjection{Department: *dept, CourseIDs: nonNil(ids)}, nil
}
