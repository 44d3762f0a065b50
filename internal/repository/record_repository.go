package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/logbook-api/internal/models"
)

const recordDetailColumns = `r.id, r.student_user_id, r.subject_id, r.kind, r.school_year, r.semester,
       r.content, r.char_count, r.byte_count, r.is_editable_by_student, r.created_at, r.updated_at,
       st.full_name AS student_name, s.name AS subject_name, st.grade, st.class_section`

// RecordRepository persists student records and their version ledger.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs the repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// FindByID fetches a bare record row.
func (r *RecordRepository) FindByID(ctx context.Context, id string) (*models.Record, error) {
	const query = `SELECT id, student_user_id, subject_id, kind, school_year, semester, content,
       char_count, byte_count, is_editable_by_student, created_at, updated_at
	FROM records WHERE id = $1`
	var record models.Record
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindDetailByID fetches a record joined with student and subject names.
func (r *RecordRepository) FindDetailByID(ctx context.Context, id string) (*models.RecordDetail, error) {
	query := `SELECT ` + recordDetailColumns + `
FROM records r
JOIN users st ON st.user_id = r.student_user_id
LEFT JOIN subjects s ON s.id = r.subject_id
WHERE r.id = $1`
	var detail models.RecordDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns the records visible under the access decision, narrowed by the
// caller-supplied scope. Scope predicates from individual role assignments
// are OR-combined and the whole group is AND-combined with the scope filter.
// An empty decision short-circuits to no rows without touching the database.
func (r *RecordRepository) List(ctx context.Context, decision models.AccessDecision, scope models.AccessScope) ([]models.RecordDetail, error) {
	if decision.Empty() {
		return []models.RecordDetail{}, nil
	}

	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + recordDetailColumns + `
FROM records r
JOIN users st ON st.user_id = r.student_user_id
LEFT JOIN subjects s ON s.id = r.subject_id`)

	args := make([]interface{}, 0, 8)
	conditions := make([]string, 0, 8)

	args = append(args, scope.SchoolYear)
	conditions = append(conditions, fmt.Sprintf("r.school_year = $%d", len(args)))

	if scope.Semester != nil {
		args = append(args, *scope.Semester)
		conditions = append(conditions, fmt.Sprintf("r.semester = $%d", len(args)))
	}
	if scope.Grade != nil {
		args = append(args, *scope.Grade)
		conditions = append(conditions, fmt.Sprintf("st.grade = $%d", len(args)))
	}
	if scope.ClassSection != nil {
		args = append(args, *scope.ClassSection)
		conditions = append(conditions, fmt.Sprintf("st.class_section = $%d", len(args)))
	}
	if scope.SubjectID != nil {
		args = append(args, *scope.SubjectID)
		conditions = append(conditions, fmt.Sprintf("r.subject_id = $%d", len(args)))
	}
	if scope.Kind != nil {
		args = append(args, *scope.Kind)
		conditions = append(conditions, fmt.Sprintf("r.kind = $%d", len(args)))
	}
	if scope.StudentUserID != nil {
		args = append(args, *scope.StudentUserID)
		conditions = append(conditions, fmt.Sprintf("r.student_user_id = $%d", len(args)))
	}

	if !decision.All {
		group, groupArgs := buildScopeGroup(decision.Scopes, len(args))
		args = append(args, groupArgs...)
		conditions = append(conditions, group)
	}

	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY st.grade, st.class_section, st.number_in_class, s.name")

	var records []models.RecordDetail
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// buildScopeGroup renders the OR-group of per-assignment sub-predicates.
// Every sub-predicate binds its own placeholders, so assignments sharing a
// field never collide.
func buildScopeGroup(scopes []models.ScopePredicate, offset int) (string, []interface{}) {
	args := make([]interface{}, 0, len(scopes)*3)
	parts := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		sub := make([]string, 0, 3)

		args = append(args, scope.Grade)
		sub = append(sub, fmt.Sprintf("st.grade = $%d", offset+len(args)))

		if scope.ClassSection != nil {
			args = append(args, *scope.ClassSection)
			sub = append(sub, fmt.Sprintf("st.class_section = $%d", offset+len(args)))
		}
		if scope.SubjectID != nil {
			args = append(args, *scope.SubjectID)
			sub = append(sub, fmt.Sprintf("r.subject_id = $%d", offset+len(args)))
		}

		parts = append(parts, "("+strings.Join(sub, " AND ")+")")
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// CreateWithVersion inserts a record together with its initial ledger entry.
// Both rows commit atomically; a record without its create snapshot (or the
// reverse) must never be observable.
func (r *RecordRepository) CreateWithVersion(ctx context.Context, record *models.Record, editedBy string) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertRecord = `INSERT INTO records
	(id, student_user_id, subject_id, kind, school_year, semester, content, char_count, byte_count, is_editable_by_student, created_at, updated_at)
	VALUES (:id, :student_user_id, :subject_id, :kind, :school_year, :semester, :content, :char_count, :byte_count, :is_editable_by_student, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertRecord, record); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	if err := insertVersion(ctx, tx, record, editedBy, models.EditKindCreate, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create record: %w", err)
	}
	return nil
}

// UpdateContentWithVersion replaces the record content and appends the update
// snapshot in the same transaction. Returns sql.ErrNoRows when the record
// does not exist.
func (r *RecordRepository) UpdateContentWithVersion(ctx context.Context, recordID, content string, charCount, byteCount int, editedBy string) (*models.Record, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const updateRecord = `UPDATE records
	SET content = $1, char_count = $2, byte_count = $3, updated_at = $4
	WHERE id = $5
	RETURNING id, student_user_id, subject_id, kind, school_year, semester, content,
	          char_count, byte_count, is_editable_by_student, created_at, updated_at`
	var record models.Record
	if err := tx.GetContext(ctx, &record, updateRecord, content, charCount, byteCount, now, recordID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update record content: %w", err)
	}

	if err := insertVersion(ctx, tx, &record, editedBy, models.EditKindUpdate, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update record: %w", err)
	}
	return &record, nil
}

func insertVersion(ctx context.Context, tx *sqlx.Tx, record *models.Record, editedBy string, kind models.EditKind, at time.Time) error {
	entry := models.VersionEntry{
		ID:        uuid.NewString(),
		RecordID:  record.ID,
		Content:   record.Content,
		CharCount: record.CharCount,
		ByteCount: record.ByteCount,
		EditedBy:  editedBy,
		EditKind:  kind,
		CreatedAt: at,
	}
	const query = `INSERT INTO record_versions
	(id, record_id, content, char_count, byte_count, edited_by, edit_kind, created_at)
	VALUES (:id, :record_id, :content, :char_count, :byte_count, :edited_by, :edit_kind, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert record version: %w", err)
	}
	return nil
}

// ListVersions returns the append-only edit history, newest first.
func (r *RecordRepository) ListVersions(ctx context.Context, recordID string) ([]models.VersionEntry, error) {
	const query = `SELECT id, record_id, content, char_count, byte_count, edited_by, edit_kind, created_at
	FROM record_versions WHERE record_id = $1 ORDER BY created_at DESC`
	var versions []models.VersionEntry
	if err := r.db.SelectContext(ctx, &versions, query, recordID); err != nil {
		return nil, fmt.Errorf("list record versions: %w", err)
	}
	return versions, nil
}

// SetStudentEditable toggles whether the student may edit their own record.
func (r *RecordRepository) SetStudentEditable(ctx context.Context, recordID string, editable bool) error {
	const query = `UPDATE records SET is_editable_by_student = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, editable, time.Now().UTC(), recordID)
	if err != nil {
		return fmt.Errorf("set record permissions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated record rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
