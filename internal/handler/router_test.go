package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/repository"
	"github.com/noah-isme/enrollment-api/internal/service"
	"github.com/noah-isme/enrollment-api/pkg/config"
)

func newTestRouter(t *testing.T, tokens *service.TokenService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	validate := service.NewValidator()
	logger := zap.NewNop()

	routes := Routes{
		Students:    NewStudentHandler(service.NewCatalogService(store, nil, nil, validate, logger, 0)),
		Courses:     NewCourseHandler(service.NewCourseService(store, nil, nil, validate, logger, 0)),
		Departments: NewDepartmentHandler(service.NewDepartmentService(store, nil, nil, validate, logger, 0)),
	}
	if tokens != nil {
		routes.Tokens = tokens
	}

	router := gin.New()
	routes.Register(router.Group("/api/v1"))
	metrics := NewMetricsHandler(service.NewMetricsService(), store)
	router.GET("/ready", metrics.Ready)
	router.GET("/metrics", metrics.Prometheus)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func dataID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.ID)
	return envelope.Data.ID
}

func TestRouterEnrollmentFlow(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/departments", map[string]string{"code": "CS", "name": "Computer Science"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	deptID := dataID(t, rec)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/courses", map[string]interface{}{
		"course_code": "CS101", "course_name": "Intro", "credit_hours": 3, "capacity": 1, "department_id": deptID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	courseID := dataID(t, rec)

	student := func(first string) string {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/students", map[string]string{
			"first_name": first, "last_name": "Doe", "email": strings.ToLower(first) + "@example.com", "phone_number": "5551234567",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return dataID(t, rec)
	}
	john := student("John")
	jane := student("Jane")

	rec = doJSON(t, router, http.MethodPost, "/api/v1/students", map[string]string{
		"first_name": "Copy", "last_name": "Doe", "email": "john@example.com", "phone_number": "5551234567",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/students/"+john+"/enroll/"+courseID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doJSON(t, router, http.MethodPost, "/api/v1/students/"+jane+"/enroll/"+courseID, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "CAPACITY_EXCEEDED")

	rec = doJSON(t, router, http.MethodGet, "/api/v1/courses/"+courseID+"/students", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), john)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/students/course/"+courseID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), jane)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/courses/"+courseID+"/roster?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "roster-cs101.csv")
	assert.Contains(t, rec.Body.String(), "john@example.com")

	rec = doJSON(t, router, http.MethodGet, "/api/v1/courses/"+courseID+"/roster?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/students/"+jane+"/withdraw/"+courseID, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_ENROLLED")

	rec = doJSON(t, router, http.MethodGet, "/api/v1/students/email/john@example.com", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/departments/"+deptID+"/courses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CS101")

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/departments/"+deptID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, router, http.MethodGet, "/api/v1/courses/"+courseID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterWriteRoutesRequireToken(t *testing.T) {
	tokens := service.NewTokenService(config.JWTConfig{Secret: "test-secret", Issuer: "enrollment-api"})
	router := newTestRouter(t, tokens)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/departments", map[string]string{"code": "CS", "name": "Computer Science"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/departments", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	token, _, err := tokens.Issue("staff-1", models.RoleStaff)
	require.NoError(t, err)
	rec = doJSON(t, router, http.MethodPost, "/api/v1/departments", map[string]string{"code": "CS", "name": "Computer Science"},
		"Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestMetricsHandlerReady(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := doJSON(t, router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, downStore{}).Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
