package domain

// Lock names a shared resource domain (e.g. the dialog state).
// The set of locks is fixed when the lock registry is built.
type Lock string

// Access is the kind of access an action declares on a Lock.
type Access uint8

const (
	AccessNone Access = iota
	AccessRead
	AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	default:
		return "none"
	}
}

// Covers reports whether holding a satisfies a need for b.
func (a Access) Covers(b Access) bool {
	return a >= b
}

// Conflicts reports whether two holders of the same lock must be serialized.
func (a Access) Conflicts(b Access) bool {
	if a == AccessNone || b == AccessNone {
		return false
	}
	return a == AccessWrite || b == AccessWrite
}
