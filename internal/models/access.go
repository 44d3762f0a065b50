package models

// ScopePredicate is one typed sub-predicate contributed by a single role
// assignment. Nil fields do not constrain. The storage layer translates
// predicates into SQL; predicates from multiple assignments are OR-combined.
type ScopePredicate struct {
	Grade        int
	ClassSection *int
	SubjectID    *string
}

// AccessDecision is the resolver's output: either full access (administrator
// bypass) or the OR-group of scope predicates derived from the staff member's
// role assignments. An empty decision means no access at all, and callers
// must short-circuit without querying the record store.
type AccessDecision struct {
	All    bool
	Scopes []ScopePredicate
}

// Empty reports whether the decision denies everything.
func (d AccessDecision) Empty() bool {
	return !d.All && len(d.Scopes) == 0
}

// AccessScope is a transient request-time filter AND-combined with the
// resolver's OR-group. It is never persisted.
type AccessScope struct {
	SchoolYear    int
	Semester      *int
	Grade         *int
	ClassSection  *int
	SubjectID     *string
	Kind          *RecordKind
	StudentUserID *string
}
