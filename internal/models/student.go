package models

import "time"

// Gender enumerates accepted gender tags.
type Gender string

// Supported gender tags.
const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

// Student represents a learner registered in the catalog. EnrollmentDate is
// fixed when the record is created.
type Student struct {
	ID             string     `db:"id" json:"id"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Email          string     `db:"email" json:"email"`
	PhoneNumber    string     `db:"phone_number" json:"phone_number"`
	DateOfBirth    *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Address        string     `db:"address" json:"address"`
	Gender         Gender     `db:"gender" json:"gender"`
	EnrollmentDate time.Time  `db:"enrollment_date" json:"enrollment_date"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentProjection is a student with the identities of its enrolled courses.
type StudentProjection struct {
	Student
	EnrolledCourseIDs []string `json:"enrolled_course_ids"`
}
