package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/enrollment-api/internal/enrollment"
	"github.com/noah-isme/enrollment-api/internal/models"
)

// MemoryStore keeps the catalog in process memory. Transactions are
// serialized and work on a private copy of the state that replaces the
// published one on commit; published states are never mutated, so readers
// need no lock beyond fetching the current pointer.
type MemoryStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *memState
	now   func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			departments: make(map[string]models.Department),
			courses:     make(map[string]models.Course),
			students:    make(map[string]models.Student),
			relation:    enrollment.NewRelation(),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) current() *memState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// WithinTx runs fn against a private copy of the state and publishes it if fn succeeds.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin memory transaction: %w", err)
	}
	working := s.current().clone()
	if err := fn(&memTx{memState: working, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit memory transaction: %w", err)
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// View hands fn the currently published state, which is never mutated.
func (s *MemoryStore) View(ctx context.Context, fn func(r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin memory view: %w", err)
	}
	return fn(s.current())
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	return s.current().GetDepartment(ctx, id)
}

func (s *MemoryStore) ListDepartments(ctx context.Context, search string) ([]models.Department, error) {
	return s.current().ListDepartments(ctx, search)
}

func (s *MemoryStore) ExistsDepartmentWithCode(ctx context.Context, code, excludeID string) (bool, error) {
	return s.current().ExistsDepartmentWithCode(ctx, code, excludeID)
}

func (s *MemoryStore) CourseIDsForDepartment(ctx context.Context, departmentID string) ([]string, error) {
	return s.current().CourseIDsForDepartment(ctx, departmentID)
}

func (s *MemoryStore) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	return s.current().GetCourse(ctx, id)
}

func (s *MemoryStore) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	return s.current().ListCourses(ctx, filter)
}

func (s *MemoryStore) ExistsCourseWithCode(ctx context.Context, code, excludeID string) (bool, error) {
	return s.current().ExistsCourseWithCode(ctx, code, excludeID)
}

func (s *MemoryStore) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	return s.current().GetStudent(ctx, id)
}

func (s *MemoryStore) GetStudentByEmail(ctx context.Context, email string) (*models.Student, error) {
	return s.current().GetStudentByEmail(ctx, email)
}

func (s *MemoryStore) ListStudents(ctx context.Context) ([]models.Student, error) {
	return s.current().ListStudents(ctx)
}

func (s *MemoryStore) SearchStudentsByLastName(ctx context.Context, fragment string) ([]models.Student, error) {
	return s.current().SearchStudentsByLastName(ctx, fragment)
}

func (s *MemoryStore) ExistsStudentWithEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return s.current().ExistsStudentWithEmail(ctx, email, excludeID)
}

func (s *MemoryStore) FindStudentsByCourse(ctx context.Context, courseID string) ([]models.Student, error) {
	return s.current().FindStudentsByCourse(ctx, courseID)
}

func (s *MemoryStore) FindCoursesByStudent(ctx context.Context, studentID string) ([]models.Course, error) {
	return s.current().FindCoursesByStudent(ctx, studentID)
}

func (s *MemoryStore) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	return s.current().IsEnrolled(ctx, studentID, courseID)
}

func (s *MemoryStore) CountEnrolled(ctx context.Context, courseID string) (int, error) {
	return s.current().CountEnrolled(ctx, courseID)
}

func (s *MemoryStore) EnrolledCourseIDs(ctx context.Context, studentIDs []string) (map[string][]string, error) {
	return s.current().EnrolledCourseIDs(ctx, studentIDs)
}

func (s *MemoryStore) EnrolledStudentIDs(ctx context.Context, courseIDs []string) (map[string][]string, error) {
	return s.current().EnrolledStudentIDs(ctx, courseIDs)
}

type memState struct {
	departments map[string]models.Department
	courses     map[string]models.Course
	students    map[string]models.Student
	relation    *enrollment.Relation
}

func (m *memState) clone() *memState {
	c := &memState{
		departments: make(map[string]models.Department, len(m.departments)),
		courses:     make(map[string]models.Course, len(m.courses)),
		students:    make(map[string]models.Student, len(m.students)),
		relation:    m.relation.Clone(),
	}
	for id, d := range m.departments {
		c.departments[id] = d
	}
	for id, course := range m.courses {
		c.courses[id] = copyCourse(course)
	}
	for id, s := range m.students {
		c.students[id] = copyStudent(s)
	}
	return c
}

func (m *memState) GetDepartment(_ context.Context, id string) (*models.Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return nil, fmt.Errorf("department %s: %w", id, ErrNotFound)
	}
	return &d, nil
}

func (m *memState) ListDepartments(_ context.Context, search string) ([]models.Department, error) {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]models.Department, 0, len(m.departments))
	for _, d := range m.departments {
		if needle == "" || strings.Contains(strings.ToLower(d.Name), needle) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memState) ExistsDepartmentWithCode(_ context.Context, code, excludeID string) (bool, error) {
	for id, d := range m.departments {
		if d.Code == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memState) CourseIDsForDepartment(_ context.Context, departmentID string) ([]string, error) {
	ids := make([]string, 0)
	for id, c := range m.courses {
		if c.DepartmentID == departmentID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memState) GetCourse(_ context.Context, id string) (*models.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	c = copyCourse(c)
	return &c, nil
}

func (m *memState) ListCourses(_ context.Context, filter models.CourseFilter) ([]models.Course, error) {
	needle := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]models.Course, 0, len(m.courses))
	for _, c := range m.courses {
		if filter.DepartmentID != "" && c.DepartmentID != filter.DepartmentID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(c.CourseName), needle) {
			continue
		}
		out = append(out, copyCourse(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseCode < out[j].CourseCode })
	return out, nil
}

func (m *memState) ExistsCourseWithCode(_ context.Context, code, excludeID string) (bool, error) {
	for id, c := range m.courses {
		if c.CourseCode == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memState) GetStudent(_ context.Context, id string) (*models.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", id, ErrNotFound)
	}
	s = copyStudent(s)
	return &s, nil
}

func (m *memState) GetStudentByEmail(_ context.Context, email string) (*models.Student, error) {
	for _, s := range m.students {
		if s.Email == email {
			s = copyStudent(s)
			return &s, nil
		}
	}
	return nil, fmt.Errorf("student email %s: %w", email, ErrNotFound)
}

func (m *memState) ListStudents(_ context.Context) ([]models.Student, error) {
	return m.filterStudents(func(models.Student) bool { return true }), nil
}

func (m *memState) SearchStudentsByLastName(_ context.Context, fragment string) ([]models.Student, error) {
	needle := strings.ToLower(fragment)
	return m.filterStudents(func(s models.Student) bool {
		return strings.Contains(strings.ToLower(s.LastName), needle)
	}), nil
}

func (m *memState) ExistsStudentWithEmail(_ context.Context, email, excludeID string) (bool, error) {
	for id, s := range m.students {
		if s.Email == email && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memState) FindStudentsByCourse(_ context.Context, courseID string) ([]models.Student, error) {
	members := make(map[string]struct{})
	for _, id := range m.relation.StudentsOf(courseID) {
		members[id] = struct{}{}
	}
	return m.filterStudents(func(s models.Student) bool {
		_, ok := members[s.ID]
		return ok
	}), nil
}

func (m *memState) FindCoursesByStudent(_ context.Context, studentID string) ([]models.Course, error) {
	ids := m.relation.CoursesOf(studentID)
	out := make([]models.Course, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.courses[id]; ok {
			out = append(out, copyCourse(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseCode < out[j].CourseCode })
	return out, nil
}

func (m *memState) IsEnrolled(_ context.Context, studentID, courseID string) (bool, error) {
	return m.relation.Contains(enrollment.Pair{StudentID: studentID, CourseID: courseID}), nil
}

func (m *memState) CountEnrolled(_ context.Context, courseID string) (int, error) {
	return m.relation.CountFor(courseID), nil
}

func (m *memState) EnrolledCourseIDs(_ context.Context, studentIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(studentIDs))
	for _, id := range studentIDs {
		if ids := m.relation.CoursesOf(id); len(ids) > 0 {
			out[id] = ids
		}
	}
	return out, nil
}

func (m *memState) EnrolledStudentIDs(_ context.Context, courseIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(courseIDs))
	for _, id := range courseIDs {
		if ids := m.relation.StudentsOf(id); len(ids) > 0 {
			out[id] = ids
		}
	}
	return out, nil
}

func (m *memState) filterStudents(keep func(models.Student) bool) []models.Student {
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		if keep(s) {
			out = append(out, copyStudent(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type memTx struct {
	*memState
	now func() time.Time
}

// LockCourse needs no extra locking: memory transactions are already serialized.
func (t *memTx) LockCourse(ctx context.Context, id string) (*models.Course, error) {
	return t.GetCourse(ctx, id)
}

func (t *memTx) SaveDepartment(_ context.Context, department *models.Department) error {
	for id, d := range t.departments {
		if d.Code == department.Code && id != department.ID {
			return fmt.Errorf("save department code %s: %w", department.Code, ErrDuplicateKey)
		}
	}
	now := t.now()
	if department.ID == "" {
		department.ID = uuid.NewString()
	}
	if existing, ok := t.departments[department.ID]; ok {
		department.CreatedAt = existing.CreatedAt
	} else if department.CreatedAt.IsZero() {
		department.CreatedAt = now
	}
	department.UpdatedAt = now
	t.departments[department.ID] = *department
	return nil
}

func (t *memTx) DeleteDepartment(ctx context.Context, id string) error {
	if _, ok := t.departments[id]; !ok {
		return fmt.Errorf("delete department %s: %w", id, ErrNotFound)
	}
	courseIDs, _ := t.CourseIDsForDepartment(ctx, id)
	for _, courseID := range courseIDs {
		t.relation.RemoveCourse(courseID)
		delete(t.courses, courseID)
	}
	delete(t.departments, id)
	return nil
}

func (t *memTx) SaveCourse(_ context.Context, course *models.Course) error {
	if _, ok := t.departments[course.DepartmentID]; !ok {
		return fmt.Errorf("save course department %s: %w", course.DepartmentID, ErrNotFound)
	}
	for id, c := range t.courses {
		if c.CourseCode == course.CourseCode && id != course.ID {
			return fmt.Errorf("save course code %s: %w", course.CourseCode, ErrDuplicateKey)
		}
	}
	now := t.now()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if existing, ok := t.courses[course.ID]; ok {
		course.CreatedAt = existing.CreatedAt
	} else if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	t.courses[course.ID] = copyCourse(*course)
	return nil
}

func (t *memTx) DeleteCourse(_ context.Context, id string) error {
	if _, ok := t.courses[id]; !ok {
		return fmt.Errorf("delete course %s: %w", id, ErrNotFound)
	}
	t.relation.RemoveCourse(id)
	delete(t.courses, id)
	return nil
}

func (t *memTx) SaveStudent(_ context.Context, student *models.Student) error {
	for id, s := range t.students {
		if s.Email == student.Email && id != student.ID {
			return fmt.Errorf("save student email %s: %w", student.Email, ErrDuplicateKey)
		}
	}
	now := t.now()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if existing, ok := t.students[student.ID]; ok {
		student.CreatedAt = existing.CreatedAt
		student.EnrollmentDate = existing.EnrollmentDate
	} else {
		if student.CreatedAt.IsZero() {
			student.CreatedAt = now
		}
		if student.EnrollmentDate.IsZero() {
			student.EnrollmentDate = now
		}
	}
	student.UpdatedAt = now
	t.students[student.ID] = copyStudent(*student)
	return nil
}

func (t *memTx) DeleteStudent(_ context.Context, id string) error {
	if _, ok := t.students[id]; !ok {
		return fmt.Errorf("delete student %s: %w", id, ErrNotFound)
	}
	t.relation.RemoveStudent(id)
	delete(t.students, id)
	return nil
}

func (t *memTx) AddEnrollment(_ context.Context, studentID, courseID string) error {
	if _, ok := t.students[studentID]; !ok {
		return fmt.Errorf("enroll student %s: %w", studentID, ErrNotFound)
	}
	if _, ok := t.courses[courseID]; !ok {
		return fmt.Errorf("enroll course %s: %w", courseID, ErrNotFound)
	}
	pair := enrollment.Pair{StudentID: studentID, CourseID: courseID}
	if t.relation.Contains(pair) {
		return fmt.Errorf("enroll %s in %s: %w", studentID, courseID, ErrDuplicateKey)
	}
	t.relation.Apply(enrollment.Delta{Op: enrollment.OpAdd, Pair: pair})
	return nil
}

func (t *memTx) RemoveEnrollment(_ context.Context, studentID, courseID string) error {
	pair := enrollment.Pair{StudentID: studentID, CourseID: courseID}
	if !t.relation.Contains(pair) {
		return fmt.Errorf("withdraw %s from %s: %w", studentID, courseID, ErrNotFound)
	}
	t.relation.Apply(enrollment.Delta{Op: enrollment.OpRemove, Pair: pair})
	return nil
}

func copyCourse(c models.Course) models.Course {
	if c.Capacity != nil {
		v := *c.Capacity
		c.Capacity = &v
	}
	if c.StartDate != nil {
		v := *c.StartDate
		c.StartDate = &v
	}
	if c.EndDate != nil {
		v := *c.EndDate
		c.EndDate = &v
	}
	return c
}

func copyStudent(s models.Student) models.Student {
	if s.DateOfBirth != nil {
		v := *s.DateOfBirth
		s.DateOfBirth = &v
	}
	return s
}
