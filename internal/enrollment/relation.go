package enrollment

import "sort"

// Relation is the set of active (student, course) pairs. Both directions
// (courses of a student, students of a course) are derived from the one set.
type Relation struct {
	pairs map[Pair]struct{}
}

// NewRelation builds a relation holding the given pairs.
func NewRelation(pairs ...Pair) *Relation {
	r := &Relation{pairs: make(map[Pair]struct{}, len(pairs))}
	for _, p := range pairs {
		r.pairs[p] = struct{}{}
	}
	return r
}

// Contains reports whether the pair is a member.
func (r *Relation) Contains(p Pair) bool {
	_, ok := r.pairs[p]
	return ok
}

// Len returns the number of pairs.
func (r *Relation) Len() int {
	return len(r.pairs)
}

// CountFor returns how many students are enrolled in the course.
func (r *Relation) CountFor(courseID string) int {
	n := 0
	for p := range r.pairs {
		if p.CourseID == courseID {
			n++
		}
	}
	return n
}

// Snapshot captures the state CanEnroll and CanWithdraw need for the pair.
func (r *Relation) Snapshot(p Pair, capacity *int) Snapshot {
	return Snapshot{
		Capacity: capacity,
		Enrolled: r.CountFor(p.CourseID),
		Member:   r.Contains(p),
	}
}

// Apply performs an accepted delta. Adding a present pair or removing an
// absent one is a no-op.
func (r *Relation) Apply(d Delta) {
	switch d.Op {
	case OpAdd:
		r.pairs[d.Pair] = struct{}{}
	case OpRemove:
		delete(r.pairs, d.Pair)
	}
}

// CoursesOf returns the sorted course ids the student is enrolled in.
func (r *Relation) CoursesOf(studentID string) []string {
	ids := make([]string, 0)
	for p := range r.pairs {
		if p.StudentID == studentID {
			ids = append(ids, p.CourseID)
		}
	}
	sort.Strings(ids)
	return ids
}

// StudentsOf returns the sorted student ids enrolled in the course.
func (r *Relation) StudentsOf(courseID string) []string {
	ids := make([]string, 0)
	for p := range r.pairs {
		if p.CourseID == courseID {
			ids = append(ids, p.StudentID)
		}
	}
	sort.Strings(ids)
	return ids
}

// RemoveStudent drops every pair of the student.
func (r *Relation) RemoveStudent(studentID string) {
	for p := range r.pairs {
		if p.StudentID == studentID {
			delete(r.pairs, p)
		}
	}
}

// RemoveCourse drops every pair of the course.
func (r *Relation) RemoveCourse(courseID string) {
	for p := range r.pairs {
		if p.CourseID == courseID {
			delete(r.pairs, p)
		}
	}
}

// Clone returns an independent copy.
func (r *Relation) Clone() *Relation {
	c := &Relation{pairs: make(map[Pair]struct{}, len(r.pairs))}
	for p := range r.pairs {
		c.pairs[p] = struct{}{}
	}
	return c
}
