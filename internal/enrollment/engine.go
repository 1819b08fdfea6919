// Package enrollment decides whether a student may join or leave a course.
// Decisions are pure: they read a snapshot of the relation and report the
// change that would be legal without applying it.
package enrollment

// Reason identifies why a proposed relation change was rejected.
type Reason string

// Rejection reasons.
const (
	ReasonAlreadyEnrolled  Reason = "ALREADY_ENROLLED"
	ReasonCapacityExceeded Reason = "CAPACITY_EXCEEDED"
	ReasonNotEnrolled      Reason = "NOT_ENROLLED"
)

// Op is the kind of change a Delta applies to the relation.
type Op string

// Relation operations.
const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// Pair is one (student, course) membership.
type Pair struct {
	StudentID string
	CourseID  string
}

// Delta is a single accepted change to the relation.
type Delta struct {
	Op   Op
	Pair Pair
}

// Snapshot is the slice of relation state a decision depends on. It must be
// read under the same lock that later applies the accepted delta.
type Snapshot struct {
	Capacity *int
	Enrolled int
	Member   bool
}

// Decision is either accepted with a Delta or rejected with a Reason.
type Decision struct {
	Delta  Delta
	Reason Reason
}

// Accepted reports whether the proposed change is legal.
func (d Decision) Accepted() bool {
	return d.Reason == ""
}

func accept(op Op, pair Pair) Decision {
	return Decision{Delta: Delta{Op: op, Pair: pair}}
}

func reject(reason Reason) Decision {
	return Decision{Reason: reason}
}

// CanEnroll applies the duplicate rule and then the capacity rule.
func CanEnroll(pair Pair, snap Snapshot) Decision {
	if snap.Member {
		return reject(ReasonAlreadyEnrolled)
	}
	if snap.Capacity != nil && snap.Enrolled >= *snap.Capacity {
		return reject(ReasonCapacityExceeded)
	}
	return accept(OpAdd, pair)
}

// CanWithdraw requires the pair to be present.
func CanWithdraw(pair Pair, snap Snapshot) Decision {
	if !snap.Member {
		return reject(ReasonNotEnrolled)
	}
	return accept(OpRemove, pair)
}
