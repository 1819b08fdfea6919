package models

import "time"

// Department owns a set of courses. Deleting it deletes its courses.
type Department struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DepartmentProjection adds the identities of the department's courses.
type DepartmentProjection struct {
	Department
	CourseIDs []string `json:"course_ids"`
}
