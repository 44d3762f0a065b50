package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/logbook-api/internal/models"
)

// ErrDuplicateAssignment is returned when an identical role assignment
// already exists for the staff/role/scope/year tuple.
var ErrDuplicateAssignment = errors.New("role assignment already exists")

// RoleAssignmentRepository persists staff role assignments.
type RoleAssignmentRepository struct {
	db *sqlx.DB
}

// NewRoleAssignmentRepository constructs the repository.
func NewRoleAssignmentRepository(db *sqlx.DB) *RoleAssignmentRepository {
	return &RoleAssignmentRepository{db: db}
}

// ListByStaffAndYear returns every assignment held by the staff member within
// the school year. The access resolver derives its scope predicates from this
// single query.
func (r *RoleAssignmentRepository) ListByStaffAndYear(ctx context.Context, staffUserID string, schoolYear int) ([]models.RoleAssignment, error) {
	const query = `SELECT id, staff_user_id, role_kind, grade, class_section, subject_id, school_year, created_by, created_at
	FROM role_assignments WHERE staff_user_id = $1 AND school_year = $2 ORDER BY created_at`
	var assignments []models.RoleAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, staffUserID, schoolYear); err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}
	return assignments, nil
}

// ListByYear returns all assignments for a school year (administration view).
func (r *RoleAssignmentRepository) ListByYear(ctx context.Context, schoolYear int) ([]models.RoleAssignment, error) {
	const query = `SELECT id, staff_user_id, role_kind, grade, class_section, subject_id, school_year, created_by, created_at
	FROM role_assignments WHERE school_year = $1 ORDER BY staff_user_id, created_at`
	var assignments []models.RoleAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, schoolYear); err != nil {
		return nil, fmt.Errorf("list role assignments by year: %w", err)
	}
	return assignments, nil
}

// Create inserts a new assignment. The table carries a uniqueness constraint
// over (staff, role, grade, class, subject, year); a conflicting insert
// affects zero rows and is reported as ErrDuplicateAssignment.
func (r *RoleAssignmentRepository) Create(ctx context.Context, assignment *models.RoleAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO role_assignments
	(id, staff_user_id, role_kind, grade, class_section, subject_id, school_year, created_by, created_at)
	VALUES (:id, :staff_user_id, :role_kind, :grade, :class_section, :subject_id, :school_year, :created_by, :created_at)
	ON CONFLICT (staff_user_id, role_kind, grade, class_section, subject_id, school_year) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, assignment)
	if err != nil {
		return fmt.Errorf("create role assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check inserted assignment rows: %w", err)
	}
	if affected == 0 {
		return ErrDuplicateAssignment
	}
	return nil
}

// Delete removes an assignment by id.
func (r *RoleAssignmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM role_assignments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete role assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted assignment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
