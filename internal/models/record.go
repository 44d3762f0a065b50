package models

import "time"

// EditKind distinguishes version ledger entries.
type EditKind string

const (
	EditKindCreate EditKind = "create"
	EditKindUpdate EditKind = "update"
)

// RecordKind classifies the free-text entry within the student dossier.
type RecordKind string

const (
	RecordKindSubject  RecordKind = "subject"
	RecordKindBehavior RecordKind = "behavior"
	RecordKindCareer   RecordKind = "career"
)

// Record is a free-text student record row. Content is only mutated through
// the edit orchestrator, which requires the caller to hold the edit lock.
type Record struct {
	ID                  string     `db:"id" json:"id"`
	StudentUserID       string     `db:"student_user_id" json:"student_user_id"`
	SubjectID           string     `db:"subject_id" json:"subject_id"`
	Kind                RecordKind `db:"kind" json:"kind"`
	SchoolYear          int        `db:"school_year" json:"school_year"`
	Semester            int        `db:"semester" json:"semester"`
	Content             *string    `db:"content" json:"content,omitempty"`
	CharCount           int        `db:"char_count" json:"char_count"`
	ByteCount           int        `db:"byte_count" json:"byte_count"`
	IsEditableByStudent bool       `db:"is_editable_by_student" json:"is_editable_by_student"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// RecordDetail enriches a record with joined names, the student's placement
// and the current lock state.
type RecordDetail struct {
	Record
	StudentName  *string `db:"student_name" json:"student_name,omitempty"`
	SubjectName  *string `db:"subject_name" json:"subject_name,omitempty"`
	Grade        *int    `db:"grade" json:"grade,omitempty"`
	ClassSection *int    `db:"class_section" json:"class_section,omitempty"`
	IsLocked     bool    `db:"-" json:"is_locked"`
	LockedBy     *string `db:"-" json:"locked_by,omitempty"`
}

// VersionEntry is an immutable snapshot of record content appended once per
// committed create or update. Rows are never mutated or deleted.
type VersionEntry struct {
	ID        string    `db:"id" json:"id"`
	RecordID  string    `db:"record_id" json:"record_id"`
	Content   *string   `db:"content" json:"content,omitempty"`
	CharCount int       `db:"char_count" json:"char_count"`
	ByteCount int       `db:"byte_count" json:"byte_count"`
	EditedBy  string    `db:"edited_by" json:"edited_by"`
	EditKind  EditKind  `db:"edit_kind" json:"edit_kind"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Comment is a free-form remark attached to a record.
type Comment struct {
	ID          string    `db:"id" json:"id"`
	RecordID    string    `db:"record_id" json:"record_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	CommentText string    `db:"comment_text" json:"comment_text"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// LockStatus describes the lock state of a record as observed at a point in
// time. An expired lock is indistinguishable from "never locked".
type LockStatus struct {
	RecordID string  `json:"record_id"`
	Locked   bool    `json:"locked"`
	LockedBy *string `json:"locked_by,omitempty"`
}
