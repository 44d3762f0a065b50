package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/logbook-api/internal/models"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
)

type mockUserRepo struct {
	users      map[string]*models.User
	listResult []models.User
	listTotal  int
}

func (m *mockUserRepo) FindByUserID(_ context.Context, userID string) (*models.User, error) {
	if u, ok := m.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) List(_ context.Context, _ models.UserFilter) ([]models.User, int, error) {
	return m.listResult, m.listTotal, nil
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	cp := *user
	m.users[user.UserID] = &cp
	return nil
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, userID string, fullName *string) error {
	if u, ok := m.users[userID]; ok {
		u.FullName = fullName
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	if u, ok := m.users[userID]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func TestUserServiceCreateStudent(t *testing.T) {
	repo := &mockUserRepo{}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	user, err := svc.Create(context.Background(), CreateUserRequest{
		UserID:       "student-1",
		Password:     "secret123",
		Role:         models.RoleStudent,
		Grade:        intPtr(2),
		ClassSection: intPtr(3),
	})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret123")))
	require.NotNil(t, user.Grade)
	assert.Equal(t, 2, *user.Grade)
}

func TestUserServiceCreateStudentRequiresPlacement(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		UserID:   "student-1",
		Password: "secret123",
		Role:     models.RoleStudent,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUserServiceCreateStaffRejectsPlacement(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		UserID:   "teacher-1",
		Password: "secret123",
		Role:     models.RoleTeacher,
		Grade:    intPtr(2),
	})
	require.Error(t, err)
}

func TestUserServiceResetPassword(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"teacher-1": {UserID: "teacher-1", Role: models.RoleTeacher, PasswordHash: "old"},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	err := svc.ResetPassword(context.Background(), "teacher-1", "freshpass")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["teacher-1"].PasswordHash), []byte("freshpass")))
}

func TestUserServiceResetPasswordUnknownUser(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, validator.New(), zap.NewNop())

	err := svc.ResetPassword(context.Background(), "ghost", "freshpass")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestUserServiceCreateDuplicateUserID(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"teacher-1": {UserID: "teacher-1", Role: models.RoleTeacher},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		UserID:   "teacher-1",
		Password: "secret123",
		Role:     models.RoleTeacher,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}
