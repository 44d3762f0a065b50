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
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/logbook-api/internal/models"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
)

type mockAuthRepo struct {
	user        *models.User
	findErr     error
	updatedHash string
}

func (m *mockAuthRepo) FindByUserID(_ context.Context, userID string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.user == nil || m.user.UserID != userID {
		return nil, sql.ErrNoRows
	}
	cp := *m.user
	return &cp, nil
}

func (m *mockAuthRepo) UpdatePassword(_ context.Context, _, passwordHash string) error {
	m.updatedHash = passwordHash
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLogin(t *testing.T) {
	name := "Teacher One"
	repo := &mockAuthRepo{user: &models.User{
		UserID:       "teacher-1",
		PasswordHash: hashPassword(t, "secret123"),
		FullName:     &name,
		Role:         models.RoleTeacher,
	}}
	svc := NewAuthService(repo, "test-secret", time.Hour, validator.New(), zap.NewNop())

	res, err := svc.Login(context.Background(), models.LoginRequest{UserID: "teacher-1", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, models.RoleTeacher, res.User.Role)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &mockAuthRepo{user: &models.User{
		UserID:       "teacher-1",
		PasswordHash: hashPassword(t, "secret123"),
		Role:         models.RoleTeacher,
	}}
	svc := NewAuthService(repo, "test-secret", time.Hour, validator.New(), zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{UserID: "teacher-1", Password: "wrong"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginUnknownUserSameError(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, "test-secret", time.Hour, validator.New(), zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{UserID: "ghost", Password: "whatever"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	repo := &mockAuthRepo{user: &models.User{
		UserID:       "teacher-1",
		PasswordHash: hashPassword(t, "secret123"),
		Role:         models.RoleTeacher,
	}}
	svc := NewAuthService(repo, "test-secret", time.Hour, validator.New(), zap.NewNop())
	res, err := svc.Login(context.Background(), models.LoginRequest{UserID: "teacher-1", Password: "secret123"})
	require.NoError(t, err)

	other := NewAuthService(repo, "different-secret", time.Hour, validator.New(), zap.NewNop())
	_, err = other.ValidateToken(res.AccessToken)
	require.Error(t, err)

	_, err = svc.ValidateToken(res.AccessToken + "x")
	require.Error(t, err)
}

func TestAuthServiceValidateTokenExpired(t *testing.T) {
	repo := &mockAuthRepo{user: &models.User{
		UserID:       "teacher-1",
		PasswordHash: hashPassword(t, "secret123"),
		Role:         models.RoleTeacher,
	}}
	svc := NewAuthService(repo, "test-secret", -time.Minute, validator.New(), zap.NewNop())
	// The constructor replaces non-positive expirations, so force a negative
	// one to mint an already expired token.
	svc.expiration = -time.Minute

	res, err := svc.Login(context.Background(), models.LoginRequest{UserID: "teacher-1", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(res.AccessToken)
	require.Error(t, err)
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := &mockAuthRepo{user: &models.User{
		UserID:       "teacher-1",
		PasswordHash: hashPassword(t, "oldpass1"),
		Role:         models.RoleTeacher,
	}}
	svc := NewAuthService(repo, "test-secret", time.Hour, validator.New(), zap.NewNop())
	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}

	err := svc.ChangePassword(context.Background(), claims, models.ChangePasswordRequest{
		OldPassword: "oldpass1",
		NewPassword: "newpass1",
	})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.updatedHash), []byte("newpass1")))
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	repo := &mockAuthRepo{user: &models.User{
		UserID:       "teacher-1",
		PasswordHash: hashPassword(t, "oldpass1"),
		Role:         models.RoleTeacher,
	}}
	svc := NewAuthService(repo, "test-secret", time.Hour, validator.New(), zap.NewNop())
	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}

	err := svc.ChangePassword(context.Background(), claims, models.ChangePasswordRequest{
		OldPassword: "not-the-one",
		NewPassword: "newpass1",
	})
	require.Error(t, err)
	assert.Empty(t, repo.updatedHash)
}
