package models

import "time"

// CourseType tags the kind of course offered.
type CourseType string

// Supported course types.
const (
	CourseTypeCore     CourseType = "CORE"
	CourseTypeElective CourseType = "ELECTIVE"
	CourseTypeLab      CourseType = "LAB"
	CourseTypeSeminar  CourseType = "SEMINAR"
)

// Course is a catalog entry students enroll into. A nil Capacity means the
// course has no enrollment limit.
type Course struct {
	ID           string     `db:"id" json:"id"`
	CourseCode   string     `db:"course_code" json:"course_code"`
	CourseName   string     `db:"course_name" json:"course_name"`
	Description  string     `db:"description" json:"description"`
	CreditHours  int        `db:"credit_hours" json:"credit_hours"`
	CourseType   CourseType `db:"course_type" json:"course_type"`
	StartDate    *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate      *time.Time `db:"end_date" json:"end_date,omitempty"`
	Capacity     *int       `db:"capacity" json:"capacity,omitempty"`
	DepartmentID string     `db:"department_id" json:"department_id"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	DepartmentID string
	Search       string
}

// CourseProjection is the read view of a course including derived membership.
type CourseProjection struct {
	Course
	DepartmentName     string   `json:"department_name"`
	EnrolledStudentIDs []string `json:"enrolled_student_ids"`
	EnrolledCount      int      `json:"enrolled_count"`
}
