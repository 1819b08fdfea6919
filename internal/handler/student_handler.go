package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/service"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
	"github.com/noah-isme/enrollment-api/pkg/response"
)

type studentService interface {
	ListStudents(ctx context.Context) ([]models.StudentProjection, error)
	GetStudent(ctx context.Context, id string) (*models.StudentProjection, error)
	GetStudentByEmail(ctx context.Context, email string) (*models.StudentProjection, error)
	SearchStudentsByLastName(ctx context.Context, fragment string) ([]models.StudentProjection, error)
	ListStudentsForCourse(ctx context.Context, courseID string) ([]models.StudentProjection, error)
	CreateStudent(ctx context.Context, req service.CreateStudentRequest) (*models.StudentProjection, error)
	UpdateStudent(ctx context.Context, id string, req service.UpdateStudentRequest) (*models.StudentProjection, error)
	DeleteStudent(ctx context.Context, id string) error
	Enroll(ctx context.Context, studentID, courseID string) (*models.StudentProjection, error)
	Withdraw(ctx context.Context, studentID, courseID string) (*models.StudentProjection, error)
}

// StudentHandler exposes student and enrollment endpoints.
type StudentHandler struct {
	catalog studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(catalog studentService) *StudentHandler {
	return &StudentHandler{catalog: catalog}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	students, err := h.catalog.ListStudents(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, students)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.catalog.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// GetByEmail godoc
// @Summary Find a student by email
// @Tags Students
// @Produce json
// @Param email path string true "Email"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/email/{email} [get]
func (h *StudentHandler) GetByEmail(c *gin.Context) {
	student, err := h.catalog.GetStudentByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Search godoc
// @Summary Search students by last name
// @Tags Students
// @Produce json
// @Param lastName query string true "Last name fragment"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/search [get]
func (h *StudentHandler) Search(c *gin.Context) {
	lastName := strings.TrimSpace(c.Query("lastName"))
	if lastName == "" {
		err := appErrors.Clone(appErrors.ErrValidation, "lastName query parameter is required")
		err.Details = map[string]string{"lastName": "required"}
		response.Error(c, err)
		return
	}
	students, err := h.catalog.SearchStudentsByLastName(c.Request.Context(), lastName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, students)
}

// ListByCourse godoc
// @Summary List students enrolled in a course
// @Tags Students
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/course/{courseId} [get]
func (h *StudentHandler) ListByCourse(c *gin.Context) {
	courseID := c.Param("courseId")
	if courseID == "" {
		courseID = c.Param("id")
	}
	students, err := h.catalog.ListStudentsForCourse(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, students)
}

// Create godoc
// @Summary Create student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.catalog.CreateStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.catalog.UpdateStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Delete godoc
// @Summary Delete student
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.catalog.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Enroll godoc
// @Summary Enroll a student in a course
// @Tags Enrollment
// @Produce json
// @Param id path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{id}/enroll/{courseId} [post]
func (h *StudentHandler) Enroll(c *gin.Context) {
	student, err := h.catalog.Enroll(c.Request.Context(), c.Param("id"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Withdraw godoc
// @Summary Withdraw a student from a course
// @Tags Enrollment
// @Produce json
// @Param id path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{id}/withdraw/{courseId} [delete]
func (h *StudentHandler) Withdraw(c *gin.Context) {
	student, err := h.catalog.Withdraw(c.Request.Context(), c.Param("id"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}
