package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/logbook-api/internal/models"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
)

type stubRecordRepo struct {
	details map[string]*models.RecordDetail

	listDecision *models.AccessDecision
	listScope    *models.AccessScope
	listResult   []models.RecordDetail
	listCalls    int

	versions []models.VersionEntry
	created  []*models.Record
}

func newStubRecordRepo() *stubRecordRepo {
	return &stubRecordRepo{details: make(map[string]*models.RecordDetail)}
}

func (m *stubRecordRepo) FindByID(_ context.Context, id string) (*models.Record, error) {
	if d, ok := m.details[id]; ok {
		cp := d.Record
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubRecordRepo) FindDetailByID(_ context.Context, id string) (*models.RecordDetail, error) {
	if d, ok := m.details[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubRecordRepo) List(_ context.Context, decision models.AccessDecision, scope models.AccessScope) ([]models.RecordDetail, error) {
	m.listCalls++
	m.listDecision = &decision
	m.listScope = &scope
	return m.listResult, nil
}

func (m *stubRecordRepo) CreateWithVersion(_ context.Context, record *models.Record, editedBy string) error {
	if record.ID == "" {
		record.ID = "generated"
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	m.created = append(m.created, record)
	m.versions = append(m.versions, models.VersionEntry{
		RecordID: record.ID, Content: record.Content,
		CharCount: record.CharCount, ByteCount: record.ByteCount,
		EditedBy: editedBy, EditKind: models.EditKindCreate, CreatedAt: now,
	})
	m.details[record.ID] = &models.RecordDetail{Record: *record}
	return nil
}

func (m *stubRecordRepo) UpdateContentWithVersion(_ context.Context, recordID, content string, charCount, byteCount int, editedBy string) (*models.Record, error) {
	detail, ok := m.details[recordID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail.Content = &content
	detail.CharCount = charCount
	detail.ByteCount = byteCount
	detail.UpdatedAt = time.Now()
	m.versions = append(m.versions, models.VersionEntry{
		RecordID: recordID, Content: &content,
		CharCount: charCount, ByteCount: byteCount,
		EditedBy: editedBy, EditKind: models.EditKindUpdate, CreatedAt: detail.UpdatedAt,
	})
	cp := detail.Record
	return &cp, nil
}

func (m *stubRecordRepo) ListVersions(_ context.Context, recordID string) ([]models.VersionEntry, error) {
	out := make([]models.VersionEntry, 0, len(m.versions))
	for i := len(m.versions) - 1; i >= 0; i-- {
		if m.versions[i].RecordID == recordID {
			out = append(out, m.versions[i])
		}
	}
	return out, nil
}

func (m *stubRecordRepo) SetStudentEditable(_ context.Context, recordID string, editable bool) error {
	detail, ok := m.details[recordID]
	if !ok {
		return sql.ErrNoRows
	}
	detail.IsEditableByStudent = editable
	return nil
}

type stubUserReader struct {
	users map[string]*models.User
}

func (m *stubUserReader) FindByUserID(_ context.Context, userID string) (*models.User, error) {
	if u, ok := m.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type recordFixture struct {
	svc     *RecordService
	records *stubRecordRepo
	store   *stubLockStore
	access  *stubAssignmentReader
}

func newRecordFixture() *recordFixture {
	records := newStubRecordRepo()
	store := newStubLockStore()
	assignments := &stubAssignmentReader{}
	locks := NewLockService(store, time.Minute, nil, zap.NewNop())
	access := NewAccessService(assignments, zap.NewNop())
	users := &stubUserReader{users: map[string]*models.User{
		"student-1": {UserID: "student-1", Role: models.RoleStudent, Grade: intPtr(2), ClassSection: intPtr(3)},
	}}
	svc := NewRecordService(records, locks, access, users, validator.New(), zap.NewNop())
	return &recordFixture{svc: svc, records: records, store: store, access: assignments}
}

func (f *recordFixture) seedRecord(id string) {
	content := "original"
	f.records.details[id] = &models.RecordDetail{
		Record: models.Record{
			ID: id, StudentUserID: "student-1", SubjectID: "sub-math",
			Kind: models.RecordKindSubject, SchoolYear: 2025, Semester: 1,
			Content: &content, CharCount: 8, ByteCount: 8,
		},
		Grade:        intPtr(2),
		ClassSection: intPtr(3),
	}
}

func (f *recordFixture) grantHomeroom() {
	f.access.assignments = []models.RoleAssignment{
		{ID: "a1", RoleKind: models.RoleHomeroomTeacher, Grade: intPtr(2), ClassSection: intPtr(3)},
	}
}

func TestRecordServiceListStudentPinnedToSelf(t *testing.T) {
	f := newRecordFixture()
	claims := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}

	_, err := f.svc.List(context.Background(), claims, models.AccessScope{SchoolYear: 2025})
	require.NoError(t, err)
	require.NotNil(t, f.records.listScope)
	require.NotNil(t, f.records.listScope.StudentUserID)
	assert.Equal(t, "student-1", *f.records.listScope.StudentUserID)
	assert.True(t, f.records.listDecision.All)
}

func TestRecordServiceListNoAssignmentsShortCircuits(t *testing.T) {
	f := newRecordFixture()

	records, err := f.svc.List(context.Background(), teacherClaims("teacher-1"), models.AccessScope{SchoolYear: 2025})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, f.records.listCalls)
}

func TestRecordServiceListEnrichesLockState(t *testing.T) {
	f := newRecordFixture()
	f.grantHomeroom()
	f.seedRecord("rec-1")
	f.records.listResult = []models.RecordDetail{*f.records.details["rec-1"]}
	_, err := f.store.AcquireOrRefresh(context.Background(), "rec-1", "teacher-2", time.Minute)
	require.NoError(t, err)

	records, err := f.svc.List(context.Background(), teacherClaims("teacher-1"), models.AccessScope{SchoolYear: 2025})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsLocked)
	require.NotNil(t, records[0].LockedBy)
	assert.Equal(t, "teacher-2", *records[0].LockedBy)
}

func TestRecordServiceLockContentionReportsHolder(t *testing.T) {
	f := newRecordFixture()
	f.grantHomeroom()
	f.seedRecord("rec-1")
	ctx := context.Background()

	status, err := f.svc.Lock(ctx, teacherClaims("teacher-1"), "rec-1")
	require.NoError(t, err)
	assert.True(t, status.Locked)

	// Second teacher with the same homeroom scope loses and learns who holds.
	_, err = f.svc.Lock(ctx, teacherClaims("teacher-2"), "rec-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrLocked.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "teacher-1")
}

func TestRecordServiceLockDeniedOutOfScope(t *testing.T) {
	f := newRecordFixture()
	f.seedRecord("rec-1")

	_, err := f.svc.Lock(context.Background(), teacherClaims("teacher-1"), "rec-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	// The failed access check must not have touched the lock.
	holder, herr := f.store.Holder(context.Background(), "rec-1")
	require.NoError(t, herr)
	assert.Empty(t, holder)
}

func TestRecordServiceSubmitEditFullCycle(t *testing.T) {
	f := newRecordFixture()
	f.grantHomeroom()
	f.seedRecord("rec-1")
	ctx := context.Background()
	claims := teacherClaims("teacher-1")

	_, err := f.svc.Lock(ctx, claims, "rec-1")
	require.NoError(t, err)

	record, err := f.svc.SubmitEdit(ctx, claims, "rec-1", SubmitEditRequest{Content: "안녕\nok"})
	require.NoError(t, err)
	require.NotNil(t, record.Content)
	assert.Equal(t, "안녕\nok", *record.Content)
	assert.Equal(t, 5, record.CharCount)
	assert.Equal(t, 10, record.ByteCount)

	// The ledger gained an update entry and the lock was auto-released.
	versions, err := f.svc.ListVersions(ctx, claims, "rec-1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, models.EditKindUpdate, versions[0].EditKind)
	assert.Equal(t, "teacher-1", versions[0].EditedBy)

	holder, err := f.store.Holder(ctx, "rec-1")
	require.NoError(t, err)
	assert.Empty(t, holder)

	// And the record is immediately lockable again.
	status, err := f.svc.Lock(ctx, teacherClaims("teacher-2"), "rec-1")
	require.NoError(t, err)
	assert.True(t, status.Locked)
}

func TestRecordServiceSubmitEditWithoutLock(t *testing.T) {
	f := newRecordFixture()
	f.grantHomeroom()
	f.seedRecord("rec-1")

	_, err := f.svc.SubmitEdit(context.Background(), teacherClaims("teacher-1"), "rec-1", SubmitEditRequest{Content: "x"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrLockNotHeld.Code, appErr.Code)
}

func TestRecordServiceSubmitEditExpiredLockStolen(t *testing.T) {
	f := newRecordFixture()
	f.grantHomeroom()
	f.seedRecord("rec-1")
	ctx := context.Background()
	claims := teacherClaims("teacher-1")

	_, err := f.svc.Lock(ctx, claims, "rec-1")
	require.NoError(t, err)

	// Simulate TTL expiry followed by another teacher locking the record.
	f.store.drop("rec-1")
	_, err = f.svc.Lock(ctx, teacherClaims("teacher-2"), "rec-1")
	require.NoError(t, err)

	_, err = f.svc.SubmitEdit(ctx, claims, "rec-1", SubmitEditRequest{Content: "late write"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrLocked.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "teacher-2")

	// The stale writer must not have touched content or ledger.
	detail := f.records.details["rec-1"]
	assert.Equal(t, "original", *detail.Content)
	assert.Empty(t, f.records.versions)
}

func TestRecordServiceUnlockNotHeld(t *testing.T) {
	f := newRecordFixture()
	err := f.svc.Unlock(context.Background(), teacherClaims("teacher-1"), "rec-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrLockNotHeld.Code, appErr.Code)
}

func TestRecordServiceExtendLock(t *testing.T) {
	f := newRecordFixture()
	f.grantHomeroom()
	f.seedRecord("rec-1")
	ctx := context.Background()
	claims := teacherClaims("teacher-1")

	_, err := f.svc.Lock(ctx, claims, "rec-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.ExtendLock(ctx, claims, "rec-1"))

	err = f.svc.ExtendLock(ctx, teacherClaims("teacher-2"), "rec-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrLockNotHeld.Code, appErr.Code)
}

func TestRecordServiceCreateStudentForbidden(t *testing.T) {
	f := newRecordFixture()

	_, err := f.svc.Create(context.Background(),
		&models.JWTClaims{UserID: "student-1", Role: models.RoleStudent},
		CreateRecordRequest{StudentUserID: "student-1", SubjectID: "sub-math", Kind: models.RecordKindSubject, SchoolYear: 2025, Semester: 1})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRecordServiceCreateMeasuresContent(t *testing.T) {
	f := newRecordFixture()
	f.grantHomeroom()

	record, err := f.svc.Create(context.Background(), teacherClaims("teacher-1"), CreateRecordRequest{
		StudentUserID: "student-1",
		SubjectID:     "sub-math",
		Kind:          models.RecordKindSubject,
		SchoolYear:    2025,
		Semester:      1,
		Content:       "안녕",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, record.CharCount)
	assert.Equal(t, 6, record.ByteCount)

	require.Len(t, f.records.versions, 1)
	assert.Equal(t, models.EditKindCreate, f.records.versions[0].EditKind)
}

func TestRecordServiceCreateOutOfScope(t *testing.T) {
	f := newRecordFixture()
	// teacher-1 has no assignments at all.
	_, err := f.svc.Create(context.Background(), teacherClaims("teacher-1"), CreateRecordRequest{
		StudentUserID: "student-1",
		SubjectID:     "sub-math",
		Kind:          models.RecordKindSubject,
		SchoolYear:    2025,
		Semester:      1,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRecordServiceStudentEditRequiresFlag(t *testing.T) {
	f := newRecordFixture()
	f.seedRecord("rec-1")
	ctx := context.Background()
	student := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}

	_, err := f.svc.Lock(ctx, student, "rec-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	// After staff enables self-edit the student can lock and submit.
	f.records.details["rec-1"].IsEditableByStudent = true
	_, err = f.svc.Lock(ctx, student, "rec-1")
	require.NoError(t, err)
	_, err = f.svc.SubmitEdit(ctx, student, "rec-1", SubmitEditRequest{Content: "my own words"})
	require.NoError(t, err)
}
