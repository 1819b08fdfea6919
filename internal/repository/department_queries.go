package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollment-api/internal/models"
)

const departmentColumns = `id, code, name, description, created_at, updated_at`

func (q queries) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT ` + departmentColumns + ` FROM departments WHERE id = $1`
	var department models.Department
	if err := sqlx.GetContext(ctx, q.ext, &department, query, id); err != nil {
		return nil, mapError("get department", err)
	}
	return &department, nil
}

func (q queries) ListDepartments(ctx context.Context, search string) ([]models.Department, error) {
	departments := make([]models.Department, 0)
	search = strings.TrimSpace(search)
	if search == "" {
		const query = `SELECT ` + departmentColumns + ` FROM departments ORDER BY code ASC`
		if err := sqlx.SelectContext(ctx, q.ext, &departments, query); err != nil {
			return nil, mapError("list departments", err)
		}
		return departments, nil
	}
	const query = `SELECT ` + departmentColumns + ` FROM departments WHERE strpos(LOWER(name), LOWER($1)) > 0 ORDER BY code ASC`
	if err := sqlx.SelectContext(ctx, q.ext, &departments, query, search); err != nil {
		return nil, mapError("search departments", err)
	}
	return departments, nil
}

func (q queries) ExistsDepartmentWithCode(ctx context.Context, code, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM departments WHERE code = $1 AND id <> $2)`
	var exists bool
	if err := sqlx.GetContext(ctx, q.ext, &exists, query, code, excludeID); err != nil {
		return false, mapError("check department code", err)
	}
	return exists, nil
}

func (q queries) CourseIDsForDepartment(ctx context.Context, departmentID string) ([]string, error) {
	const query = `SELECT id FROM courses WHERE department_id = $1 ORDER BY id`
	ids := make([]string, 0)
	if err := sqlx.SelectContext(ctx, q.ext, &ids, query, departmentID); err != nil {
		return nil, mapError("list department courses", err)
	}
	return ids, nil
}

func (t *pgTx) SaveDepartment(ctx context.Context, department *models.Department) error {
	now := t.now()
	if department.ID == "" {
		department.ID = uuid.NewString()
	}
	if department.CreatedAt.IsZero() {
		department.CreatedAt = now
	}
	department.UpdatedAt = now

	const query = `INSERT INTO departments (id, code, name, description, created_at, updated_at)
VALUES (:id, :code, :name, :description, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET
	code = EXCLUDED.code,
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, t.ext, query, department); err != nil {
		return mapError("save department", err)
	}
	return nil
}

// DeleteDepartment removes the department; its courses and their enrollments
// follow through ON DELETE CASCADE.
func (t *pgTx) DeleteDepartment(ctx context.Context, id string) error {
	res, err := t.ext.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return mapError("delete department", err)
	}
	return expectAffected("delete department", res)
}
