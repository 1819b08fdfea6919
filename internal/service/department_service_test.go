package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

func TestDepartmentServiceCreateAndList(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	cs := f.department(t, "CS")
	f.department(t, "MATH")
	course := f.course(t, cs.ID, "CS101", nil)

	_, err := f.departments.Create(ctx, DepartmentRequest{Code: "CS", Name: "Duplicate"})
	require.Error(t, err)
	assert.Equal(t, "code", appErrors.FromError(err).Details["field"])

	_, err = f.departments.Create(ctx, DepartmentRequest{Name: "No code"})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeValidation))

	all, err := f.departments.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{course.ID}, all[0].CourseIDs)
	assert.Empty(t, all[1].CourseIDs)

	found, err := f.departments.List(ctx, "math")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "MATH", found[0].Code)
}

func TestDepartmentServiceGetAndUpdate(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	cs := f.department(t, "CS")
	f.department(t, "MATH")
	course := f.course(t, cs.ID, "CS101", nil)

	got, err := f.departments.Get(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{course.ID}, got.CourseIDs)

	_, err = f.departments.Update(ctx, cs.ID, DepartmentRequest{Code: "MATH", Name: "Clash"})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeDuplicateKey))

	updated, err := f.departments.Update(ctx, cs.ID, DepartmentRequest{Code: "CS", Name: "Computing"})
	require.NoError(t, err)
	assert.Equal(t, "Computing", updated.Name)

	reloaded, err := f.courses.Get(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "Computing", reloaded.DepartmentName)

	_, err = f.departments.Get(ctx, "missing")
	assert.True(t, appErrors.HasCode(err, appErrors.CodeNotFound))
}

func TestDepartmentServiceDeleteCascades(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	cs := f.department(t, "CS")
	course := f.course(t, cs.ID, "CS101", nil)
	john := f.student(t, "john", course.ID)

	require.NoError(t, f.departments.Delete(ctx, cs.ID))

	_, err := f.courses.Get(ctx, course.ID)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeNotFound))
	student, err := f.catalog.GetStudent(ctx, john.ID)
	require.NoError(t, err)
	assert.Empty(t, student.EnrolledCourseIDs)

	assert.True(t, appErrors.HasCode(f.departments.Delete(ctx, cs.ID), appErrors.CodeNotFound))
}

func TestDepartmentServiceCourses(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	cs := f.department(t, "CS")
	f.course(t, cs.ID, "CS102", nil)
	f.course(t, cs.ID, "CS101", intPtr(10))

	courses, err := f.departments.Courses(ctx, cs.ID)
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "CS101", courses[0].CourseCode)
	assert.Equal(t, "CS Department", courses[0].DepartmentName)
}

func TestDepartmentServiceRejectsBlankFields(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	_, err := f.departments.Create(ctx, DepartmentRequest{Code: "   ", Name: "   "})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.CodeValidation, appErr.Code)
	assert.Equal(t, "required", appErr.Details["code"])
	assert.Equal(t, "required", appErr.Details["name"])

	dept := f.department(t, "CS")
	_, err = f.departments.Update(ctx, dept.ID, DepartmentRequest{Code: " ", Name: "Computing"})
	assert.Equal(t, "required", appErrors.FromError(err).Details["code"])

	all, err := f.departments.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "CS", all[0].Code)
}
