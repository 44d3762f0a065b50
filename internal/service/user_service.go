package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/logbook-api/internal/models"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
)

type userRepo interface {
	FindByUserID(ctx context.Context, userID string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, userID string, fullName *string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// CreateUserRequest is the admin payload for provisioning accounts.
type CreateUserRequest struct {
	UserID        string          `json:"user_id" validate:"required,min=3"`
	Password      string          `json:"password" validate:"required,min=6"`
	FullName      *string         `json:"full_name,omitempty"`
	Role          models.UserRole `json:"role" validate:"required,oneof=admin teacher student"`
	Grade         *int            `json:"grade,omitempty"`
	ClassSection  *int            `json:"class_section,omitempty"`
	NumberInClass *int            `json:"number_in_class,omitempty"`
}

// UserService manages accounts. Creation is an administrator operation;
// placement fields are required for students and rejected for staff.
type UserService struct {
	users     userRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates a service instance.
func NewUserService(users userRepo, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, validator: validate, logger: logger}
}

// Get returns one user by login identifier.
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// List returns users matching the filter with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Create provisions a new account with a bcrypt password hash.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	if req.Role == models.RoleStudent {
		if req.Grade == nil || req.ClassSection == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "students require grade and class_section")
		}
	} else if req.Grade != nil || req.ClassSection != nil || req.NumberInClass != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "placement fields only apply to students")
	}

	if existing, err := s.users.FindByUserID(ctx, req.UserID); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user id already taken")
	} else if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check user id")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		UserID:        strings.TrimSpace(req.UserID),
		PasswordHash:  string(hash),
		FullName:      req.FullName,
		Role:          req.Role,
		Grade:         req.Grade,
		ClassSection:  req.ClassSection,
		NumberInClass: req.NumberInClass,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user created",
		zap.String("user_id", user.UserID),
		zap.String("role", string(user.Role)))
	return user, nil
}

// UpdateProfile changes the caller's display name.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, fullName *string) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	if err := s.users.UpdateProfile(ctx, userID, fullName); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return nil
}

// ResetPassword replaces a user's password without knowing the old one.
// Administrator operation.
func (s *UserService) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if len(newPassword) < 6 {
		return appErrors.Clone(appErrors.ErrValidation, "password must be at least 6 characters")
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset password")
	}

	s.logger.Info("password reset", zap.String("user_id", userID))
	return nil
}
