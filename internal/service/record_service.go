package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/logbook-api/internal/models"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
	"github.com/noah-isme/logbook-api/pkg/export"
	"github.com/noah-isme/logbook-api/pkg/textmetric"
)

type recordRepo interface {
	FindByID(ctx context.Context, id string) (*models.Record, error)
	FindDetailByID(ctx context.Context, id string) (*models.RecordDetail, error)
	List(ctx context.Context, decision models.AccessDecision, scope models.AccessScope) ([]models.RecordDetail, error)
	CreateWithVersion(ctx context.Context, record *models.Record, editedBy string) error
	UpdateContentWithVersion(ctx context.Context, recordID, content string, charCount, byteCount int, editedBy string) (*models.Record, error)
	ListVersions(ctx context.Context, recordID string) ([]models.VersionEntry, error)
	SetStudentEditable(ctx context.Context, recordID string, editable bool) error
}

type lockManager interface {
	Acquire(ctx context.Context, recordID, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, recordID, holder string) (bool, error)
	Extend(ctx context.Context, recordID, holder string, ttl time.Duration) (bool, error)
	Inspect(ctx context.Context, recordID string) (string, error)
}

type accessResolver interface {
	Resolve(ctx context.Context, claims *models.JWTClaims, schoolYear int) (models.AccessDecision, error)
	CanAccessRecord(ctx context.Context, claims *models.JWTClaims, detail *models.RecordDetail) (bool, error)
}

// CreateRecordRequest describes the payload for a new record.
type CreateRecordRequest struct {
	StudentUserID string            `json:"student_user_id" validate:"required"`
	SubjectID     string            `json:"subject_id" validate:"required"`
	Kind          models.RecordKind `json:"kind" validate:"required,oneof=subject behavior career"`
	SchoolYear    int               `json:"school_year" validate:"required"`
	Semester      int               `json:"semester" validate:"required,min=1,max=2"`
	Content       string            `json:"content"`
}

// SubmitEditRequest carries updated content for a locked record.
type SubmitEditRequest struct {
	Content string `json:"content" validate:"required"`
}

// RecordService composes the access resolver, the lock manager and the
// version ledger into the record edit workflow. The content field is only
// mutated by a caller who holds the edit lock, verified immediately before
// the write to close the expiry race.
type RecordService struct {
	records   recordRepo
	locks     lockManager
	access    accessResolver
	users     userReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRecordService creates a service instance.
func NewRecordService(
	records recordRepo,
	locks lockManager,
	access accessResolver,
	users userReader,
	validate *validator.Validate,
	logger *zap.Logger,
) *RecordService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{
		records:   records,
		locks:     locks,
		access:    access,
		users:     users,
		validator: validate,
		logger:    logger,
	}
}

// List returns the records the caller may see within the scope. Students are
// pinned to their own records; staff visibility comes from the resolver, and
// an empty decision returns zero rows without querying the record store.
func (s *RecordService) List(ctx context.Context, claims *models.JWTClaims, scope models.AccessScope) ([]models.RecordDetail, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	decision := models.AccessDecision{All: true}
	if claims.Role == models.RoleStudent {
		self := claims.UserID
		scope.StudentUserID = &self
	} else {
		var err error
		decision, err = s.access.Resolve(ctx, claims, scope.SchoolYear)
		if err != nil {
			return nil, err
		}
		if decision.Empty() {
			return []models.RecordDetail{}, nil
		}
	}

	records, err := s.records.List(ctx, decision, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}
	for i := range records {
		s.attachLockState(ctx, &records[i])
	}
	return records, nil
}

// Get returns one record with lock state, enforcing scope access.
func (s *RecordService) Get(ctx context.Context, claims *models.JWTClaims, recordID string) (*models.RecordDetail, error) {
	detail, err := s.loadAccessible(ctx, claims, recordID)
	if err != nil {
		return nil, err
	}
	s.attachLockState(ctx, detail)
	return detail, nil
}

// Create inserts a new record and its initial ledger entry. Students cannot
// create records; staff need a matching scope for the target student.
func (s *RecordService) Create(ctx context.Context, claims *models.JWTClaims, req CreateRecordRequest) (*models.Record, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot create records")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid record payload")
	}

	student, err := s.users.FindByUserID(ctx, req.StudentUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "records can only be attached to students")
	}

	// Scope check against the student's placement, same predicate rules as
	// reads.
	target := &models.RecordDetail{
		Record: models.Record{
			StudentUserID: req.StudentUserID,
			SubjectID:     req.SubjectID,
			SchoolYear:    req.SchoolYear,
		},
		Grade:        student.Grade,
		ClassSection: student.ClassSection,
	}
	allowed, err := s.access.CanAccessRecord(ctx, claims, target)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no role assignment covers this student")
	}

	charCount, byteCount := textmetric.Measure(req.Content)
	content := req.Content
	record := &models.Record{
		StudentUserID: req.StudentUserID,
		SubjectID:     req.SubjectID,
		Kind:          req.Kind,
		SchoolYear:    req.SchoolYear,
		Semester:      req.Semester,
		Content:       &content,
		CharCount:     charCount,
		ByteCount:     byteCount,
	}
	if err := s.records.CreateWithVersion(ctx, record, claims.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create record")
	}
	return record, nil
}

// Lock acquires the edit lock for the caller. Contention is reported with
// the current holder's identity, not as a generic failure.
func (s *RecordService) Lock(ctx context.Context, claims *models.JWTClaims, recordID string) (*models.LockStatus, error) {
	detail, err := s.loadAccessible(ctx, claims, recordID)
	if err != nil {
		return nil, err
	}
	if err := s.checkStudentEditable(claims, detail); err != nil {
		return nil, err
	}

	acquired, err := s.locks.Acquire(ctx, recordID, claims.UserID, 0)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, s.lockedByOther(ctx, recordID)
	}
	holder := claims.UserID
	return &models.LockStatus{RecordID: recordID, Locked: true, LockedBy: &holder}, nil
}

// Unlock abandons an edit without submitting. Releasing a lock the caller
// does not hold is reported, never silently swallowed.
func (s *RecordService) Unlock(ctx context.Context, claims *models.JWTClaims, recordID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	released, err := s.locks.Release(ctx, recordID, claims.UserID)
	if err != nil {
		return err
	}
	if !released {
		return appErrors.Clone(appErrors.ErrLockNotHeld, "")
	}
	return nil
}

// ExtendLock refreshes the caller's lock TTL.
func (s *RecordService) ExtendLock(ctx context.Context, claims *models.JWTClaims, recordID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	extended, err := s.locks.Extend(ctx, recordID, claims.UserID, 0)
	if err != nil {
		return err
	}
	if !extended {
		return appErrors.Clone(appErrors.ErrLockNotHeld, "")
	}
	return nil
}

// LockStatus reports the current lock state without mutating it.
func (s *RecordService) LockStatus(ctx context.Context, claims *models.JWTClaims, recordID string) (*models.LockStatus, error) {
	detail, err := s.loadAccessible(ctx, claims, recordID)
	if err != nil {
		return nil, err
	}
	s.attachLockState(ctx, detail)
	status := &models.LockStatus{RecordID: recordID, Locked: detail.IsLocked, LockedBy: detail.LockedBy}
	return status, nil
}

// SubmitEdit persists new content for a record the caller has locked. The
// lock may have expired between acquisition and submission, so ownership is
// re-validated atomically (an Extend succeeds only for the current holder)
// immediately before the write. On success the content mutation and the
// ledger entry commit together and the lock is released.
func (s *RecordService) SubmitEdit(ctx context.Context, claims *models.JWTClaims, recordID string, req SubmitEditRequest) (*models.Record, error) {
	detail, err := s.loadAccessible(ctx, claims, recordID)
	if err != nil {
		return nil, err
	}
	if err := s.checkStudentEditable(claims, detail); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid edit payload")
	}

	held, err := s.locks.Extend(ctx, recordID, claims.UserID, 0)
	if err != nil {
		return nil, err
	}
	if !held {
		holder, ierr := s.locks.Inspect(ctx, recordID)
		if ierr != nil {
			return nil, ierr
		}
		if holder == "" {
			return nil, appErrors.Clone(appErrors.ErrLockNotHeld, "edit lock expired, re-acquire before submitting")
		}
		return nil, appErrors.Clone(appErrors.ErrLocked, fmt.Sprintf("record is locked by %s", holder))
	}

	charCount, byteCount := textmetric.Measure(req.Content)
	record, err := s.records.UpdateContentWithVersion(ctx, recordID, req.Content, charCount, byteCount, claims.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update record")
	}

	// Auto-unlock after a successful submit. A failed release here means the
	// lock expired between the write and now; TTL has already cleaned up.
	if _, err := s.locks.Release(ctx, recordID, claims.UserID); err != nil {
		s.logger.Warn("release after submit failed", zap.String("record_id", recordID), zap.Error(err))
	}
	return record, nil
}

// ListVersions returns the record's edit history, newest first.
func (s *RecordService) ListVersions(ctx context.Context, claims *models.JWTClaims, recordID string) ([]models.VersionEntry, error) {
	if _, err := s.loadAccessible(ctx, claims, recordID); err != nil {
		return nil, err
	}
	versions, err := s.records.ListVersions(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
	}
	return versions, nil
}

// SetStudentEditable toggles the student self-edit flag. Staff only.
func (s *RecordService) SetStudentEditable(ctx context.Context, claims *models.JWTClaims, recordID string, editable bool) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "students cannot change permissions")
	}
	if _, err := s.loadAccessible(ctx, claims, recordID); err != nil {
		return err
	}
	if err := s.records.SetStudentEditable(ctx, recordID, editable); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update permissions")
	}
	return nil
}

// Export renders the caller's visible records as CSV or PDF.
func (s *RecordService) Export(ctx context.Context, claims *models.JWTClaims, scope models.AccessScope, format string) ([]byte, string, error) {
	if claims == nil {
		return nil, "", appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleStudent {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "students cannot export records")
	}

	records, err := s.List(ctx, claims, scope)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{
		Headers: []string{"student_id", "student_name", "grade", "class", "subject", "chars", "bytes", "updated_at"},
		Rows:    make([]map[string]string, 0, len(records)),
	}
	for _, record := range records {
		row := map[string]string{
			"student_id": record.StudentUserID,
			"chars":      strconv.Itoa(record.CharCount),
			"bytes":      strconv.Itoa(record.ByteCount),
			"updated_at": record.UpdatedAt.Format(time.RFC3339),
		}
		if record.StudentName != nil {
			row["student_name"] = *record.StudentName
		}
		if record.SubjectName != nil {
			row["subject"] = *record.SubjectName
		}
		if record.Grade != nil {
			row["grade"] = strconv.Itoa(*record.Grade)
		}
		if record.ClassSection != nil {
			row["class"] = strconv.Itoa(*record.ClassSection)
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	switch format {
	case "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, "student records")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

// loadAccessible fetches a record and enforces the caller's scope before any
// lock or content operation. Access failures close before locks are touched.
func (s *RecordService) loadAccessible(ctx context.Context, claims *models.JWTClaims, recordID string) (*models.RecordDetail, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	detail, err := s.records.FindDetailByID(ctx, recordID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	allowed, err := s.access.CanAccessRecord(ctx, claims, detail)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return detail, nil
}

func (s *RecordService) checkStudentEditable(claims *models.JWTClaims, detail *models.RecordDetail) error {
	if claims.Role == models.RoleStudent && !detail.IsEditableByStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "record not editable by student")
	}
	return nil
}

func (s *RecordService) lockedByOther(ctx context.Context, recordID string) error {
	holder, err := s.locks.Inspect(ctx, recordID)
	if err != nil {
		return err
	}
	if holder == "" {
		// Lost the race and the winner already released or expired; the
		// caller simply retries.
		return appErrors.Clone(appErrors.ErrLocked, "record lock contended, retry")
	}
	return appErrors.Clone(appErrors.ErrLocked, fmt.Sprintf("record is locked by %s", holder))
}

func (s *RecordService) attachLockState(ctx context.Context, detail *models.RecordDetail) {
	holder, err := s.locks.Inspect(ctx, detail.ID)
	if err != nil {
		s.logger.Warn("lock inspect failed", zap.String("record_id", detail.ID), zap.Error(err))
		return
	}
	if holder != "" {
		detail.IsLocked = true
		detail.LockedBy = &holder
	}
}
