package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/middleware"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
)

type fakeAccountSrv struct {
	lastUserID int64
	deleted    bool
	deleteErr  error
	expiresAt  time.Time
}

func (f *fakeAccountSrv) Signup(_ context.Context, req dto.SignupRequest) (*dto.AuthResponse, error) {
	if req.Email == "taken@example.com" {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	return &dto.AuthResponse{Token: "tok", ExpiresIn: 3600, User: &models.User{ID: 1, Email: req.Email}}, nil
}

func (f *fakeAccountSrv) Login(context.Context, dto.LoginRequest) (*dto.AuthResponse, error) {
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid credentials")
}

func (f *fakeAccountSrv) Profile(_ context.Context, userID int64) (*models.User, error) {
	f.lastUserID = userID
	return &models.User{ID: userID, Email: "me@example.com"}, nil
}

func (f *fakeAccountSrv) UpdateProfile(_ context.Context, userID int64, _ dto.UpdateProfileRequest) (*models.User, error) {
	f.lastUserID = userID
	return &models.User{ID: userID}, nil
}

func (f *fakeAccountSrv) RequestOTP(_ context.Context, userID int64, _ dto.OTPRequest) (time.Time, error) {
	f.lastUserID = userID
	return f.expiresAt, nil
}

func (f *fakeAccountSrv) VerifyOTP(_ context.Context, userID int64, _ dto.VerifyOTPRequest) (*models.User, error) {
	f.lastUserID = userID
	return &models.User{ID: userID, EmailVerified: true}, nil
}

func (f *fakeAccountSrv) DeleteAccount(_ context.Context, userID int64) error {
	f.lastUserID = userID
	f.deleted = f.deleteErr == nil
	return f.deleteErr
}

func TestAuthHandlerSignup(t *testing.T) {
	handler := NewAuthHandler(&fakeAccountSrv{})

	c, rec := newTestContext(http.MethodPost, "/auth/signup", []byte(`{"email":"new@example.com","password":"secret1","name":"New"}`))
	handler.Signup(c)
	assert.Equal(t, http.StatusCreated, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "tok", envelope.Data["token"])

	c, rec = newTestContext(http.MethodPost, "/auth/signup", []byte(`{"email":"taken@example.com","password":"secret1","name":"New"}`))
	handler.Signup(c)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthHandlerLoginFailure(t *testing.T) {
	handler := NewAuthHandler(&fakeAccountSrv{})

	c, rec := newTestContext(http.MethodPost, "/auth/login", []byte(`{"email":"a@example.com","password":"bad"}`))
	handler.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "invalid credentials", envelope.Error["message"])
}

func TestAuthHandlerProfileRequiresAccount(t *testing.T) {
	srv := &fakeAccountSrv{}
	handler := NewAuthHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/auth/profile", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{Email: "admin", Role: models.RoleAdmin})
	handler.Profile(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/auth/profile", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 12, Role: models.RoleUser})
	handler.Profile(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12), srv.lastUserID)
}

func TestAuthHandlerRequestOTP(t *testing.T) {
	expires := time.Date(2026, 3, 1, 10, 10, 0, 0, time.UTC)
	handler := NewAuthHandler(&fakeAccountSrv{expiresAt: expires})

	c, rec := newTestContext(http.MethodPost, "/auth/otp/request", []byte(`{"channel":"email"}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 3})
	handler.RequestOTP(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "email", envelope.Data["channel"])
	assert.Equal(t, "2026-03-01T10:10:00Z", envelope.Data["expires_at"])
}

func TestAuthHandlerDeleteAccount(t *testing.T) {
	srv := &fakeAccountSrv{}
	handler := NewAuthHandler(srv)

	c, rec := newTestContext(http.MethodDelete, "/auth/account", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 5})
	handler.DeleteAccount(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, srv.deleted)

	srv.deleteErr = appErrors.Wrap(errors.New("boom"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete account")
	c, rec = newTestContext(http.MethodDelete, "/auth/account", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 5})
	handler.DeleteAccount(c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
