package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollment-api/internal/models"
)

const studentColumns = `id, first_name, last_name, email, phone_number, date_of_birth, address, gender, enrollment_date, created_at, updated_at`

func (q queries) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := sqlx.GetContext(ctx, q.ext, &student, query, id); err != nil {
		return nil, mapError("get student", err)
	}
	return &student, nil
}

func (q queries) GetStudentByEmail(ctx context.Context, email string) (*models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students WHERE email = $1`
	var student models.Student
	if err := sqlx.GetContext(ctx, q.ext, &student, query, email); err != nil {
		return nil, mapError("get student by email", err)
	}
	return &student, nil
}

func (q queries) ListStudents(ctx context.Context) ([]models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students ORDER BY last_name, first_name, id`
	students := make([]models.Student, 0)
	if err := sqlx.SelectContext(ctx, q.ext, &students, query); err != nil {
		return nil, mapError("list students", err)
	}
	return students, nil
}

func (q queries) SearchStudentsByLastName(ctx context.Context, fragment string) ([]models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students
WHERE strpos(LOWER(last_name), LOWER($1)) > 0
ORDER BY last_name, first_name, id`
	students := make([]models.Student, 0)
	if err := sqlx.SelectContext(ctx, q.ext, &students, query, fragment); err != nil {
		return nil, mapError("search students", err)
	}
	return students, nil
}

func (q queries) ExistsStudentWithEmail(ctx context.Context, email, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM students WHERE email = $1 AND id <> $2)`
	var exists bool
	if err := sqlx.GetContext(ctx, q.ext, &exists, query, email, excludeID); err != nil {
		return false, mapError("check student email", err)
	}
	return exists, nil
}

func (q queries) FindStudentsByCourse(ctx context.Context, courseID string) ([]models.Student, error) {
	const query = `SELECT s.id, s.first_name, s.last_name, s.email, s.phone_number, s.date_of_birth, s.address, s.gender, s.enrollment_date, s.created_at, s.updated_at
FROM students s
JOIN student_courses sc ON sc.student_id = s.id
WHERE sc.course_id = $1
ORDER BY s.last_name, s.first_name, s.id`
	students := make([]models.Student, 0)
	if err := sqlx.SelectContext(ctx, q.ext, &students, query, courseID); err != nil {
		return nil, mapError("list course students", err)
	}
	return students, nil
}

// SaveStudent inserts or updates the student. EnrollmentDate and CreatedAt
// keep their stored values on update.
func (t *pgTx) SaveStudent(ctx context.Context, student *models.Student) error {
	now := t.now()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	if student.EnrollmentDate.IsZero() {
		student.EnrollmentDate = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, first_name, last_name, email, phone_number, date_of_birth, address, gender, enrollment_date, created_at, updated_at)
VALUES (:id, :first_name, :last_name, :email, :phone_number, :date_of_birth, :address, :gender, :enrollment_date, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET
	first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	email = EXCLUDED.email,
	phone_number = EXCLUDED.phone_number,
	date_of_birth = EXCLUDED.date_of_birth,
	address = EXCLUDED.address,
	gender = EXCLUDED.gender,
	updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, t.ext, query, student); err != nil {
		return mapError("save student", err)
	}
	return nil
}

func (t *pgTx) DeleteStudent(ctx context.Context, id string) error {
	res, err := t.ext.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return mapError("delete student", err)
	}
	return expectAffected("delete student", res)
}
