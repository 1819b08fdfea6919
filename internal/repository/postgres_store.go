package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore persists the catalog in PostgreSQL. Per-course serialization
// relies on row locks taken by LockCourse.
type PostgresStore struct {
	queries
	db *sqlx.DB
}

// NewPostgresStore constructs the store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{queries: queries{ext: db, now: utcNow}, db: db}
}

// WithinTx runs fn inside a database transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&pgTx{queries: queries{ext: tx, now: s.now}}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// View runs fn inside a read-only REPEATABLE READ transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(r Reader) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(queries{ext: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit read transaction: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type pgTx struct {
	queries
}

// queries holds every statement and runs them on either the pool or a transaction.
type queries struct {
	ext sqlx.ExtContext
	now func() time.Time
}

func utcNow() time.Time { return time.Now().UTC() }

// mapError translates driver errors into the store sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pqErr.Constraint, ErrDuplicateKey)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", op, pqErr.Constraint, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

type membershipRow struct {
	StudentID string `db:"student_id"`
	CourseID  string `db:"course_id"`
}

func (q queries) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_courses WHERE student_id = $1 AND course_id = $2)`
	var exists bool
	if err := sqlx.GetContext(ctx, q.ext, &exists, query, studentID, courseID); err != nil {
		return false, mapError("check enrollment", err)
	}
	return exists, nil
}

func (q queries) CountEnrolled(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_courses WHERE course_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, q.ext, &count, query, courseID); err != nil {
		return 0, mapError("count enrollments", err)
	}
	return count, nil
}

func (q queries) EnrolledCourseIDs(ctx context.Context, studentIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(studentIDs))
	if len(studentIDs) == 0 {
		return out, nil
	}
	const query = `SELECT student_id, course_id FROM student_courses WHERE student_id = ANY($1) ORDER BY student_id, course_id`
	var rows []membershipRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, pq.Array(studentIDs)); err != nil {
		return nil, mapError("list enrolled courses", err)
	}
	for _, row := range rows {
		out[row.StudentID] = append(out[row.StudentID], row.CourseID)
	}
	return out, nil
}

func (q queries) EnrolledStudentIDs(ctx context.Context, courseIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(courseIDs))
	if len(courseIDs) == 0 {
		return out, nil
	}
	const query = `SELECT student_id, course_id FROM student_courses WHERE course_id = ANY($1) ORDER BY course_id, student_id`
	var rows []membershipRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, pq.Array(courseIDs)); err != nil {
		return nil, mapError("list enrolled students", err)
	}
	for _, row := range rows {
		out[row.CourseID] = append(out[row.CourseID], row.StudentID)
	}
	return out, nil
}

func (t *pgTx) AddEnrollment(ctx context.Context, studentID, courseID string) error {
	const query = `INSERT INTO student_courses (student_id, course_id, enrolled_at) VALUES ($1, $2, $3)`
	if _, err := t.ext.ExecContext(ctx, query, studentID, courseID, t.now()); err != nil {
		return mapError("insert enrollment", err)
	}
	return nil
}

func (t *pgTx) RemoveEnrollment(ctx context.Context, studentID, courseID string) error {
	const query = `DELETE FROM student_courses WHERE student_id = $1 AND course_id = $2`
	res, err := t.ext.ExecContext(ctx, query, studentID, courseID)
	if err != nil {
		return mapError("delete enrollment", err)
	}
	return expectAffected("delete enrollment", res)
}
