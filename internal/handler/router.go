package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollment-api/internal/middleware"
	"github.com/noah-isme/enrollment-api/internal/models"
)

// Routes groups the handlers mounted under the API prefix.
type Routes struct {
	Students    *StudentHandler
	Courses     *CourseHandler
	Departments *DepartmentHandler
	// Tokens enables bearer auth on every write route when set.
	Tokens middleware.TokenValidator
}

// Register mounts every catalog route on group.
func (r Routes) Register(group *gin.RouterGroup) {
	write := []gin.HandlerFunc{}
	if r.Tokens != nil {
		write = append(write, middleware.JWT(r.Tokens), middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
	}
	guard := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, write...), h)
	}

	students := group.Group("/students")
	students.GET("", r.Students.List)
	students.GET("/search", r.Students.Search)
	students.GET("/email/:email", r.Students.GetByEmail)
	students.GET("/course/:courseId", r.Students.ListByCourse)
	students.GET("/:id", r.Students.Get)
	students.POST("", guard(r.Students.Create)...)
	students.PUT("/:id", guard(r.Students.Update)...)
	students.DELETE("/:id", guard(r.Students.Delete)...)
	students.POST("/:id/enroll/:courseId", guard(r.Students.Enroll)...)
	students.DELETE("/:id/withdraw/:courseId", guard(r.Students.Withdraw)...)

	courses := group.Group("/courses")
	courses.GET("", r.Courses.List)
	courses.GET("/:id", r.Courses.Get)
	courses.GET("/:id/students", r.Students.ListByCourse)
	courses.GET("/:id/roster", r.Courses.Roster)
	courses.POST("", guard(r.Courses.Create)...)
	courses.PUT("/:id", guard(r.Courses.Update)...)
	courses.DELETE("/:id", guard(r.Courses.Delete)...)

	departments := group.Group("/departments")
	departments.GET("", r.Departments.List)
	departments.GET("/:id", r.Departments.Get)
	departments.GET("/:id/courses", r.Departments.Courses)
	departments.POST("", guard(r.Departments.Create)...)
	departments.PUT("/:id", guard(r.Departments.Update)...)
	departments.DELETE("/:id", guard(r.Departments.Delete)...)
}
