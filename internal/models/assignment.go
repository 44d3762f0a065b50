package models

import (
	"fmt"
	"time"
)

// RoleKind enumerates staff role assignments, each with its own
// scope-matching rule.
type RoleKind string

const (
	RoleHomeroomTeacher   RoleKind = "homeroom_teacher"
	RoleAssistantHomeroom RoleKind = "assistant_homeroom"
	RoleSubjectTeacher    RoleKind = "subject_teacher"
	RoleGradeHead         RoleKind = "grade_head"
	RoleRecordManager     RoleKind = "record_manager"
)

// RoleAssignment grants a staff member authority over a slice of student
// records for one school year. Which scope columns are mandatory depends on
// the role kind; see ValidateScope. Rows are deleted and recreated, never
// updated in place.
type RoleAssignment struct {
	ID           string    `db:"id" json:"id"`
	StaffUserID  string    `db:"staff_user_id" json:"staff_user_id"`
	RoleKind     RoleKind  `db:"role_kind" json:"role_kind"`
	Grade        *int      `db:"grade" json:"grade,omitempty"`
	ClassSection *int      `db:"class_section" json:"class_section,omitempty"`
	SubjectID    *string   `db:"subject_id" json:"subject_id,omitempty"`
	SchoolYear   int       `db:"school_year" json:"school_year"`
	CreatedBy    string    `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ValidateScope checks that the mandatory scope fields for the assignment's
// role kind are present.
//
//	homeroom_teacher, assistant_homeroom: grade + class_section
//	subject_teacher:                      grade + subject (class optional)
//	grade_head, record_manager:           grade
func (a *RoleAssignment) ValidateScope() error {
	switch a.RoleKind {
	case RoleHomeroomTeacher, RoleAssistantHomeroom:
		if a.Grade == nil || a.ClassSection == nil {
			return fmt.Errorf("role %s requires grade and class_section", a.RoleKind)
		}
	case RoleSubjectTeacher:
		if a.Grade == nil || a.SubjectID == nil {
			return fmt.Errorf("role %s requires grade and subject_id", a.RoleKind)
		}
	case RoleGradeHead, RoleRecordManager:
		if a.Grade == nil {
			return fmt.Errorf("role %s requires grade", a.RoleKind)
		}
	default:
		return fmt.Errorf("unknown role kind %q", a.RoleKind)
	}
	return nil
}

// Predicate derives the scope predicate an assignment contributes to the
// access decision. Callers must have validated the scope first.
func (a *RoleAssignment) Predicate() ScopePredicate {
	pred := ScopePredicate{}
	if a.Grade != nil {
		pred.Grade = *a.Grade
	}
	switch a.RoleKind {
	case RoleHomeroomTeacher, RoleAssistantHomeroom:
		pred.ClassSection = a.ClassSection
	case RoleSubjectTeacher:
		pred.SubjectID = a.SubjectID
		pred.ClassSection = a.ClassSection
	}
	return pred
}
