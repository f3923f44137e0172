package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuskit/sis-api/internal/models"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
)

type mockAuthRepo struct {
	users         map[string]*models.User
	usersByEmail  map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	revokedAll    []string
	revokedIDs    []string
	passwordSet   string
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwordSet = passwordHash
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.revokedIDs = append(m.revokedIDs, id)
	for _, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
		}
	}
	return nil
}

type mockStudentAccounts struct {
	byUser map[string]*models.StudentDetail
}

func (m *mockStudentAccounts) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	if s, ok := m.byUser[userID]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockFacultyAccounts struct {
	byUser map[string]*models.FacultyDetail
}

func (m *mockFacultyAccounts) FindByUserID(ctx context.Context, userID string) (*models.FacultyDetail, error) {
	if f, ok := m.byUser[userID]; ok {
		return f, nil
	}
	return nil, sql.ErrNoRows
}

func authTestConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "sis-api-test",
	}
}

func newAuthUser(role models.UserRole, password string) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return &models.User{
		ID:           "user-1",
		Email:        "user@example.edu",
		PasswordHash: string(hash),
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Role:         role,
		Active:       true,
	}
}

func newAuthFixture(role models.UserRole) (*AuthService, *mockAuthRepo) {
	user := newAuthUser(role, "secret123")
	repo := &mockAuthRepo{
		users:        map[string]*models.User{user.ID: user},
		usersByEmail: map[string]*models.User{user.Email: user},
	}
	students := &mockStudentAccounts{byUser: map[string]*models.StudentDetail{
		"user-1": {Student: models.Student{ID: "stu-1", UserID: "user-1"}},
	}}
	faculty := &mockFacultyAccounts{byUser: map[string]*models.FacultyDetail{
		"user-1": {Faculty: models.Faculty{ID: "fac-1", UserID: "user-1"}},
	}}
	return NewAuthService(repo, students, faculty, nil, nil, authTestConfig()), repo
}

func TestAuthServiceLogin(t *testing.T) {
	svc, repo := newAuthFixture(models.RoleRegistrar)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.edu", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleRegistrar, resp.User.Role)
	assert.Contains(t, repo.refreshTokens, resp.RefreshToken)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(models.RoleStudent)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.edu", Password: "wrong"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc, _ := newAuthFixture(models.RoleStudent)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.edu", Password: "secret123"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	svc, repo := newAuthFixture(models.RoleStudent)
	repo.users["user-1"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.edu", Password: "secret123"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestAuthServiceTokenCarriesStudentClaim(t *testing.T) {
	svc, _ := newAuthFixture(models.RoleStudent)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.edu", Password: "secret123"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "stu-1", claims.StudentID)
	assert.Empty(t, claims.FacultyID)
}

func TestAuthServiceTokenCarriesFacultyClaim(t *testing.T) {
	svc, _ := newAuthFixture(models.RoleFaculty)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.edu", Password: "secret123"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "fac-1", claims.FacultyID)
	assert.Empty(t, claims.StudentID)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	svc, repo := newAuthFixture(models.RoleRegistrar)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.edu", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The used token is revoked; replaying it fails.
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceRefreshExpired(t *testing.T) {
	svc, repo := newAuthFixture(models.RoleRegistrar)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.edu", Password: "secret123"})
	require.NoError(t, err)
	repo.refreshTokens[login.RefreshToken].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceLogout(t *testing.T) {
	svc, repo := newAuthFixture(models.RoleStudent)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.edu", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "user-1"))
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)
}

func TestAuthServiceLogoutWrongUser(t *testing.T) {
	svc, _ := newAuthFixture(models.RoleStudent)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.edu", Password: "secret123"})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), login.RefreshToken, "user-2")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, repo := newAuthFixture(models.RoleStudent)

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "evenmoresecret",
	})
	require.NoError(t, err)
	require.NotEmpty(t, repo.passwordSet)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwordSet), []byte("evenmoresecret")))
	assert.Equal(t, []string{"user-1"}, repo.revokedAll)
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	svc, _ := newAuthFixture(models.RoleStudent)

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "nope",
		NewPassword: "evenmoresecret",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAuthServiceValidateTokenGarbage(t *testing.T) {
	svc, _ := newAuthFixture(models.RoleStudent)

	_, err := svc.ValidateToken("not-a-token")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
