package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollment-api/internal/models"
)

const courseColumns = `id, course_code, course_name, description, credit_hours, course_type, start_date, end_date, capacity, department_id, created_at, updated_at`

func (q queries) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := sqlx.GetContext(ctx, q.ext, &course, query, id); err != nil {
		return nil, mapError("get course", err)
	}
	return &course, nil
}

func (q queries) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + courseColumns + ` FROM courses WHERE 1=1`)

	var args []interface{}
	if filter.DepartmentID != "" {
		args = append(args, filter.DepartmentID)
		fmt.Fprintf(&query, " AND department_id = $%d", len(args))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, search)
		fmt.Fprintf(&query, " AND strpos(LOWER(course_name), LOWER($%d)) > 0", len(args))
	}
	query.WriteString(" ORDER BY course_code ASC")

	courses := make([]models.Course, 0)
	if err := sqlx.SelectContext(ctx, q.ext, &courses, query.String(), args...); err != nil {
		return nil, mapError("list courses", err)
	}
	return courses, nil
}

func (q queries) ExistsCourseWithCode(ctx context.Context, code, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM courses WHERE course_code = $1 AND id <> $2)`
	var exists bool
	if err := sqlx.GetContext(ctx, q.ext, &exists, query, code, excludeID); err != nil {
		return false, mapError("check course code", err)
	}
	return exists, nil
}

func (q queries) FindCoursesByStudent(ctx context.Context, studentID string) ([]models.Course, error) {
	const query = `SELECT c.id, c.course_code, c.course_name, c.description, c.credit_hours, c.course_type, c.start_date, c.end_date, c.capacity, c.department_id, c.created_at, c.updated_at
FROM courses c
JOIN student_courses sc ON sc.course_id = c.id
WHERE sc.student_id = $1
ORDER BY c.course_code ASC`
	courses := make([]models.Course, 0)
	if err := sqlx.SelectContext(ctx, q.ext, &courses, query, studentID); err != nil {
		return nil, mapError("list student courses", err)
	}
	return courses, nil
}

// LockCourse takes a row lock on the course for the rest of the transaction.
func (t *pgTx) LockCourse(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1 FOR UPDATE`
	var course models.Course
	if err := sqlx.GetContext(ctx, t.ext, &course, query, id); err != nil {
		return nil, mapError("lock course", err)
	}
	return &course, nil
}

func (t *pgTx) SaveCourse(ctx context.Context, course *models.Course) error {
	now := t.now()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, course_code, course_name, description, credit_hours, course_type, start_date, end_date, capacity, department_id, created_at, updated_at)
VALUES (:id, :course_code, :course_name, :description, :credit_hours, :course_type, :start_date, :end_date, :capacity, :department_id, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET
	course_code = EXCLUDED.course_code,
	course_name = EXCLUDED.course_name,
	description = EXCLUDED.description,
	credit_hours = EXCLUDED.credit_hours,
	course_type = EXCLUDED.course_type,
	start_date = EXCLUDED.start_date,
	end_date = EXCLUDED.end_date,
	capacity = EXCLUDED.capacity,
	department_id = EXCLUDED.department_id,
	updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, t.ext, query, course); err != nil {
		return mapError("save course", err)
	}
	return nil
}

func (t *pgTx) DeleteCourse(ctx context.Context, id string) error {
	res, err := t.ext.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return mapError("delete course", err)
	}
	return expectAffected("delete course", res)
}
