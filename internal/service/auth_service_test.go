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

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
)

type mockAuthRepo struct {
	users       map[int64]*models.User
	nextID      int64
	lastChanges map[string]interface{}
	verified    []models.OTPChannel
	deleted     []int64
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{users: map[int64]*models.User{}, nextID: 1}
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthRepo) Update(ctx context.Context, id int64, changes map[string]interface{}) error {
	m.lastChanges = changes
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	return nil
}

func (m *mockAuthRepo) SetOTP(ctx context.Context, id int64, channel models.OTPChannel, code *string, expiresAt *time.Time) error {
	u := m.users[id]
	if channel == models.ChannelPhone {
		u.PhoneOTP, u.PhoneOTPExpiresAt = code, expiresAt
	} else {
		u.EmailOTP, u.EmailOTPExpiresAt = code, expiresAt
	}
	return nil
}

func (m *mockAuthRepo) MarkVerified(ctx context.Context, id int64, channel models.OTPChannel) error {
	m.verified = append(m.verified, channel)
	return nil
}

func (m *mockAuthRepo) DeleteCascade(ctx context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func newAuthServiceForTest(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		AdminToken:        "static-admin",
		OTPTTL:            10 * time.Minute,
	})
}

func seedUser(t *testing.T, repo *mockAuthRepo, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{Email: email, PasswordHash: string(hash), Name: "Citizen", Role: models.RoleUser}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestAuthServiceSignupAndLogin(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthServiceForTest(repo)

	res, err := svc.Signup(context.Background(), dto.SignupRequest{Email: "New@Example.com ", Password: "secret1", Name: "New"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, "new@example.com", res.User.Email)
	assert.NotEqual(t, "secret1", res.User.PasswordHash)

	login, err := svc.Login(context.Background(), dto.LoginRequest{Email: "new@example.com", Password: "secret1"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(login.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)
}

func TestAuthServiceSignupDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(t, repo, "dup@example.com", "secret1")
	svc := newAuthServiceForTest(repo)

	_, err := svc.Signup(context.Background(), dto.SignupRequest{Email: "dup@example.com", Password: "secret1", Name: "Dup"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	seedUser(t, repo, "user@example.com", "secret1")
	svc := newAuthServiceForTest(repo)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "user@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "ghost@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceStaticAdminToken(t *testing.T) {
	svc := newAuthServiceForTest(newMockAuthRepo())

	claims, err := svc.ValidateToken("static-admin")
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.Nil(t, models.ActorFromClaims(claims).UserID)

	_, err = svc.ValidateToken("garbage")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceOTPFlow(t *testing.T) {
	repo := newMockAuthRepo()
	user := seedUser(t, repo, "otp@example.com", "secret1")
	svc := newAuthServiceForTest(repo)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	expiresAt, err := svc.RequestOTP(context.Background(), user.ID, dto.OTPRequest{Channel: models.ChannelEmail})
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), expiresAt)
	require.NotNil(t, user.EmailOTP)
	assert.Len(t, *user.EmailOTP, 6)

	wrong := "000000"
	if *user.EmailOTP == wrong {
		wrong = "111111"
	}
	_, err = svc.VerifyOTP(context.Background(), user.ID, dto.VerifyOTPRequest{Channel: models.ChannelEmail, Code: wrong})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	verified, err := svc.VerifyOTP(context.Background(), user.ID, dto.VerifyOTPRequest{Channel: models.ChannelEmail, Code: *user.EmailOTP})
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)
	assert.Equal(t, []models.OTPChannel{models.ChannelEmail}, repo.verified)
}

func TestAuthServiceOTPClearedAfterRepeatedFailures(t *testing.T) {
	repo := newMockAuthRepo()
	user := seedUser(t, repo, "guess@example.com", "secret1")
	svc := newAuthServiceForTest(repo)

	_, err := svc.RequestOTP(context.Background(), user.ID, dto.OTPRequest{Channel: models.ChannelEmail})
	require.NoError(t, err)
	code := *user.EmailOTP
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 1; i < maxOTPAttempts; i++ {
		_, err = svc.VerifyOTP(context.Background(), user.ID, dto.VerifyOTPRequest{Channel: models.ChannelEmail, Code: wrong})
		require.Error(t, err)
		require.NotNil(t, user.EmailOTP)
	}
	_, err = svc.VerifyOTP(context.Background(), user.ID, dto.VerifyOTPRequest{Channel: models.ChannelEmail, Code: wrong})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many attempts")
	assert.Nil(t, user.EmailOTP)

	// the right code no longer works once burned
	_, err = svc.VerifyOTP(context.Background(), user.ID, dto.VerifyOTPRequest{Channel: models.ChannelEmail, Code: code})
	require.Error(t, err)
	assert.Empty(t, repo.verified)

	// a fresh code starts a fresh budget
	_, err = svc.RequestOTP(context.Background(), user.ID, dto.OTPRequest{Channel: models.ChannelEmail})
	require.NoError(t, err)
	_, err = svc.VerifyOTP(context.Background(), user.ID, dto.VerifyOTPRequest{Channel: models.ChannelEmail, Code: *user.EmailOTP})
	require.NoError(t, err)
	assert.Equal(t, []models.OTPChannel{models.ChannelEmail}, repo.verified)
}

func TestAuthServiceOTPExpired(t *testing.T) {
	repo := newMockAuthRepo()
	user := seedUser(t, repo, "late@example.com", "secret1")
	svc := newAuthServiceForTest(repo)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.RequestOTP(context.Background(), user.ID, dto.OTPRequest{Channel: models.ChannelEmail})
	require.NoError(t, err)
	code := *user.EmailOTP

	now = now.Add(11 * time.Minute)
	_, err = svc.VerifyOTP(context.Background(), user.ID, dto.VerifyOTPRequest{Channel: models.ChannelEmail, Code: code})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
	assert.Nil(t, user.EmailOTP)
	assert.Empty(t, repo.verified)
}

func TestAuthServicePhoneOTPRequiresPhone(t *testing.T) {
	repo := newMockAuthRepo()
	user := seedUser(t, repo, "nophone@example.com", "secret1")
	svc := newAuthServiceForTest(repo)

	_, err := svc.RequestOTP(context.Background(), user.ID, dto.OTPRequest{Channel: models.ChannelPhone})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceUpdateProfileResetsPhoneVerification(t *testing.T) {
	repo := newMockAuthRepo()
	user := seedUser(t, repo, "p@example.com", "secret1")
	old := "+62811111"
	user.Phone = &old
	user.PhoneVerified = true
	svc := newAuthServiceForTest(repo)

	phone := "+62822222"
	updated, err := svc.UpdateProfile(context.Background(), user.ID, dto.UpdateProfileRequest{Phone: &phone})
	require.NoError(t, err)
	assert.False(t, updated.PhoneVerified)
	assert.Equal(t, false, repo.lastChanges["phone_verified"])
	assert.Equal(t, phone, repo.lastChanges["phone"])
}

func TestAuthServiceDeleteAccount(t *testing.T) {
	repo := newMockAuthRepo()
	user := seedUser(t, repo, "bye@example.com", "secret1")
	svc := newAuthServiceForTest(repo)

	require.NoError(t, svc.DeleteAccount(context.Background(), user.ID))
	assert.Equal(t, []int64{user.ID}, repo.deleted)

	err := svc.DeleteAccount(context.Background(), user.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
