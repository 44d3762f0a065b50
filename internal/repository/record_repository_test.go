package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/logbook-api/internal/models"
)

func newRecordRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_user_id", "subject_id", "kind", "school_year", "semester",
		"content", "char_count", "byte_count", "is_editable_by_student", "created_at", "updated_at",
		"student_name", "subject_name", "grade", "class_section",
	})
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestRecordRepositoryListEmptyDecisionSkipsQuery(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	records, err := repo.List(context.Background(), models.AccessDecision{}, models.AccessScope{SchoolYear: 2025})
	require.NoError(t, err)
	assert.Empty(t, records)
	// No query expectations were registered; any database touch would fail.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListAdminSeesAll(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	rows := recordRows().
		AddRow("r1", "student-1", "sub-math", "subject", 2025, 1,
			"content", 7, 7, false, time.Now(), time.Now(),
			"Student One", "Math", 2, 3)
	mock.ExpectQuery(`SELECT .+ FROM records r\s+JOIN users st ON st\.user_id = r\.student_user_id`).
		WithArgs(2025).
		WillReturnRows(rows)

	records, err := repo.List(context.Background(), models.AccessDecision{All: true}, models.AccessScope{SchoolYear: 2025})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "student-1", records[0].StudentUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListScopedPredicates(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	decision := models.AccessDecision{Scopes: []models.ScopePredicate{
		{Grade: 2, ClassSection: intPtr(3)},
		{Grade: 1, SubjectID: strPtr("sub-math")},
	}}

	// One homeroom scope and one subject-teacher scope render as an OR-group
	// AND-combined with the year filter, placeholders in appearance order.
	mock.ExpectQuery(`r\.school_year = \$1 AND \(\(st\.grade = \$2 AND st\.class_section = \$3\) OR \(st\.grade = \$4 AND r\.subject_id = \$5\)\)`).
		WithArgs(2025, 2, 3, 1, "sub-math").
		WillReturnRows(recordRows())

	_, err := repo.List(context.Background(), decision, models.AccessScope{SchoolYear: 2025})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListCombinesScopeFilters(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	decision := models.AccessDecision{Scopes: []models.ScopePredicate{{Grade: 2}}}
	scope := models.AccessScope{
		SchoolYear: 2025,
		Semester:   intPtr(1),
		SubjectID:  strPtr("sub-math"),
	}

	mock.ExpectQuery(`r\.school_year = \$1 AND r\.semester = \$2 AND r\.subject_id = \$3 AND \(\(st\.grade = \$4\)\)`).
		WithArgs(2025, 1, "sub-math", 2).
		WillReturnRows(recordRows())

	_, err := repo.List(context.Background(), decision, scope)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryCreateWithVersionCommitsBoth(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO records").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO record_versions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	content := "initial"
	record := &models.Record{
		StudentUserID: "student-1",
		SubjectID:     "sub-math",
		Kind:          models.RecordKindSubject,
		SchoolYear:    2025,
		Semester:      1,
		Content:       &content,
		CharCount:     7,
		ByteCount:     7,
	}
	require.NoError(t, repo.CreateWithVersion(context.Background(), record, "teacher-1"))
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryCreateWithVersionRollsBackOnLedgerFailure(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO records").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO record_versions").
		WillReturnError(errors.New("ledger insert failed"))
	mock.ExpectRollback()

	content := "initial"
	record := &models.Record{
		StudentUserID: "student-1",
		SubjectID:     "sub-math",
		Kind:          models.RecordKindSubject,
		SchoolYear:    2025,
		Semester:      1,
		Content:       &content,
	}
	err := repo.CreateWithVersion(context.Background(), record, "teacher-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpdateContentWithVersion(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	updated := sqlmock.NewRows([]string{
		"id", "student_user_id", "subject_id", "kind", "school_year", "semester",
		"content", "char_count", "byte_count", "is_editable_by_student", "created_at", "updated_at",
	}).AddRow("r1", "student-1", "sub-math", "subject", 2025, 1,
		"new content", 11, 11, false, time.Now(), time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE records").
		WithArgs("new content", 11, 11, sqlmock.AnyArg(), "r1").
		WillReturnRows(updated)
	mock.ExpectExec("INSERT INTO record_versions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record, err := repo.UpdateContentWithVersion(context.Background(), "r1", "new content", 11, 11, "teacher-1")
	require.NoError(t, err)
	require.NotNil(t, record.Content)
	assert.Equal(t, "new content", *record.Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpdateContentMissingRecord(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE records").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.UpdateContentWithVersion(context.Background(), "missing", "x", 1, 1, "teacher-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListVersionsNewestFirst(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	rows := sqlmock.NewRows([]string{"id", "record_id", "content", "char_count", "byte_count", "edited_by", "edit_kind", "created_at"}).
		AddRow("v2", "r1", "second", 6, 6, "teacher-1", "update", time.Now()).
		AddRow("v1", "r1", "first", 5, 5, "teacher-1", "create", time.Now().Add(-time.Hour))
	mock.ExpectQuery(`FROM record_versions WHERE record_id = \$1 ORDER BY created_at DESC`).
		WithArgs("r1").
		WillReturnRows(rows)

	versions, err := repo.ListVersions(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, models.EditKindUpdate, versions[0].EditKind)
	assert.Equal(t, models.EditKindCreate, versions[1].EditKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySetStudentEditableMissing(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("UPDATE records SET is_editable_by_student").
		WithArgs(true, sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStudentEditable(context.Background(), "missing", true)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
