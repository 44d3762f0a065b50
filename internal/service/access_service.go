package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/logbook-api/internal/models"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
)

type roleAssignmentReader interface {
	ListByStaffAndYear(ctx context.Context, staffUserID string, schoolYear int) ([]models.RoleAssignment, error)
}

// AccessService computes which records a staff member may see or edit from
// their role assignments. The role kind is never chosen by the caller; it is
// derived from the assignment rows for the requested school year.
type AccessService struct {
	assignments roleAssignmentReader
	logger      *zap.Logger
}

// NewAccessService creates a resolver instance.
func NewAccessService(assignments roleAssignmentReader, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{assignments: assignments, logger: logger}
}

// Resolve produces the access decision for a staff identity within a school
// year. Administrators bypass the assignment lookup entirely. A staff member
// with zero assignments gets an empty decision, which callers must
// short-circuit to "no rows" without querying the record store.
func (s *AccessService) Resolve(ctx context.Context, claims *models.JWTClaims, schoolYear int) (models.AccessDecision, error) {
	if claims == nil {
		return models.AccessDecision{}, appErrors.ErrUnauthorized
	}
	if claims.IsAdmin() {
		return models.AccessDecision{All: true}, nil
	}

	assignments, err := s.assignments.ListByStaffAndYear(ctx, claims.UserID, schoolYear)
	if err != nil {
		return models.AccessDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role assignments")
	}

	decision := models.AccessDecision{Scopes: make([]models.ScopePredicate, 0, len(assignments))}
	for _, assignment := range assignments {
		if err := assignment.ValidateScope(); err != nil {
			// A malformed row grants nothing; creation validates, so this
			// only fires on rows predating the constraint.
			s.logger.Warn("skipping malformed role assignment",
				zap.String("assignment_id", assignment.ID),
				zap.Error(err))
			continue
		}
		decision.Scopes = append(decision.Scopes, assignment.Predicate())
	}
	return decision, nil
}

// CanAccessRecord reports whether the caller may operate on one concrete
// record. Students reach only their own records; staff members need at least
// one assignment whose scope matches the record.
func (s *AccessService) CanAccessRecord(ctx context.Context, claims *models.JWTClaims, detail *models.RecordDetail) (bool, error) {
	if claims == nil || detail == nil {
		return false, nil
	}
	if claims.IsAdmin() {
		return true, nil
	}
	if claims.Role == models.RoleStudent {
		return detail.StudentUserID == claims.UserID, nil
	}

	decision, err := s.Resolve(ctx, claims, detail.SchoolYear)
	if err != nil {
		return false, err
	}
	if decision.All {
		return true, nil
	}
	for _, scope := range decision.Scopes {
		if scopeMatchesRecord(scope, detail) {
			return true, nil
		}
	}
	return false, nil
}

func scopeMatchesRecord(scope models.ScopePredicate, detail *models.RecordDetail) bool {
	if detail.Grade == nil || *detail.Grade != scope.Grade {
		return false
	}
	if scope.ClassSection != nil {
		if detail.ClassSection == nil || *detail.ClassSection != *scope.ClassSection {
			return false
		}
	}
	if scope.SubjectID != nil && *scope.SubjectID != detail.SubjectID {
		return false
	}
	return true
}
