package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/logbook-api/internal/models"
	"github.com/noah-isme/logbook-api/internal/repository"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
)

type roleAssignmentRepo interface {
	ListByStaffAndYear(ctx context.Context, staffUserID string, schoolYear int) ([]models.RoleAssignment, error)
	ListByYear(ctx context.Context, schoolYear int) ([]models.RoleAssignment, error)
	Create(ctx context.Context, assignment *models.RoleAssignment) error
	Delete(ctx context.Context, id string) error
}

type userReader interface {
	FindByUserID(ctx context.Context, userID string) (*models.User, error)
}

// CreateRoleAssignmentRequest describes the assignment payload.
type CreateRoleAssignmentRequest struct {
	StaffUserID  string          `json:"staff_user_id" validate:"required"`
	RoleKind     models.RoleKind `json:"role_kind" validate:"required"`
	Grade        *int            `json:"grade,omitempty"`
	ClassSection *int            `json:"class_section,omitempty"`
	SubjectID    *string         `json:"subject_id,omitempty"`
	SchoolYear   int             `json:"school_year" validate:"required"`
}

// AssignmentService manages staff role assignments.
type AssignmentService struct {
	assignments roleAssignmentRepo
	users       userReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService creates a service instance.
func NewAssignmentService(assignments roleAssignmentRepo, users userReader, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{assignments: assignments, users: users, validator: validate, logger: logger}
}

// ListByYear returns all assignments for the school year.
func (s *AssignmentService) ListByYear(ctx context.Context, schoolYear int) ([]models.RoleAssignment, error) {
	assignments, err := s.assignments.ListByYear(ctx, schoolYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// ListByStaff returns the assignments of one staff member for the year.
func (s *AssignmentService) ListByStaff(ctx context.Context, staffUserID string, schoolYear int) ([]models.RoleAssignment, error) {
	assignments, err := s.assignments.ListByStaffAndYear(ctx, staffUserID, schoolYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// Create validates and stores a new role assignment. The mandatory scope
// fields depend on the role kind and missing ones are rejected up front.
// Inserting an assignment identical to an existing one reports a conflict
// rather than silently succeeding.
func (s *AssignmentService) Create(ctx context.Context, actor *models.JWTClaims, req CreateRoleAssignmentRequest) (*models.RoleAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	staff, err := s.users.FindByUserID(ctx, req.StaffUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "staff user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff user")
	}
	if staff.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "students cannot hold role assignments")
	}

	assignment := &models.RoleAssignment{
		StaffUserID:  req.StaffUserID,
		RoleKind:     req.RoleKind,
		Grade:        req.Grade,
		ClassSection: req.ClassSection,
		SubjectID:    req.SubjectID,
		SchoolYear:   req.SchoolYear,
		CreatedBy:    actor.UserID,
	}
	if err := assignment.ValidateScope(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	if err := s.assignments.Create(ctx, assignment); err != nil {
		if errors.Is(err, repository.ErrDuplicateAssignment) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "identical role assignment already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// Delete removes an assignment.
func (s *AssignmentService) Delete(ctx context.Context, id string) error {
	if err := s.assignments.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	return nil
}
