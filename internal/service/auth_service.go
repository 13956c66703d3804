package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	"github.com/noah-isme/citizen-safety-api/internal/repository"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id int64, changes map[string]interface{}) error
	SetOTP(ctx context.Context, id int64, channel models.OTPChannel, code *string, expiresAt *time.Time) error
	MarkVerified(ctx context.Context, id int64, channel models.OTPChannel) error
	DeleteCascade(ctx context.Context, id int64) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	AdminToken        string
	OTPTTL            time.Duration
}

// maxOTPAttempts wrong codes burn the pending code for that channel.
const maxOTPAttempts = 5

type otpSlot struct {
	userID  int64
	channel models.OTPChannel
}

// AuthService provides account and authentication use cases.
type AuthService struct {
	repo      authUserRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time

	otpMu       sync.Mutex
	otpFailures map[otpSlot]int
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 7 * 24 * time.Hour
	}
	if config.OTPTTL <= 0 {
		config.OTPTTL = 10 * time.Minute
	}
	return &AuthService{
		repo:        repo,
		validator:   validate,
		logger:      logger,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
		otpFailures: map[otpSlot]int{},
	}
}

// Signup registers an account and signs the caller in.
func (s *AuthService) Signup(ctx context.Context, req dto.SignupRequest) (*dto.AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signup payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Phone:        req.Phone,
		Role:         models.RoleUser,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user signed up", zap.Int64("user_id", user.ID))
	return s.authResponse(user)
}

// Login authenticates a user and returns an access token.
func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	return s.authResponse(user)
}

// Profile returns the caller's account.
func (s *AuthService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// UpdateProfile changes name and phone. A new phone number must be verified again.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, req dto.UpdateProfileRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name must not be empty")
		}
		user.Name = name
		changes["name"] = name
	}
	if req.Phone != nil && (user.Phone == nil || *user.Phone != *req.Phone) {
		user.Phone = req.Phone
		user.PhoneVerified = false
		user.PhoneOTP, user.PhoneOTPExpiresAt = nil, nil
		changes["phone"] = *req.Phone
		changes["phone_verified"] = false
		changes["phone_otp"] = nil
		changes["phone_otp_expires_at"] = nil
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := s.repo.Update(ctx, userID, changes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	user.UpdatedAt = s.now()
	return user, nil
}

// RequestOTP issues a six digit code for the channel. Delivery is not
// implemented; the code is only logged.
func (s *AuthService) RequestOTP(ctx context.Context, userID int64, req dto.OTPRequest) (time.Time, error) {
	if err := s.validator.Struct(req); err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid otp request")
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if req.Channel == models.ChannelPhone && (user.Phone == nil || *user.Phone == "") {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "account has no phone number")
	}

	code, err := generateOTP()
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}
	expiresAt := s.now().Add(s.config.OTPTTL)
	if err := s.repo.SetOTP(ctx, userID, req.Channel, &code, &expiresAt); err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store code")
	}
	s.resetOTPFailures(userID, req.Channel)

	s.logger.Info("otp issued", zap.Int64("user_id", userID), zap.String("channel", string(req.Channel)), zap.Time("expires_at", expiresAt))
	s.logger.Debug("otp code", zap.Int64("user_id", userID), zap.String("code", code))
	return expiresAt, nil
}

// VerifyOTP consumes a code and marks the channel verified.
func (s *AuthService) VerifyOTP(ctx context.Context, userID int64, req dto.VerifyOTPRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid otp payload")
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	code, expiresAt := user.OTP(req.Channel)
	if code == nil || expiresAt == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no code was requested for this channel")
	}
	if s.now().After(*expiresAt) {
		if err := s.repo.SetOTP(ctx, userID, req.Channel, nil, nil); err != nil {
			s.logger.Warn("failed to clear expired otp", zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, "code expired")
	}
	if subtle.ConstantTimeCompare([]byte(*code), []byte(req.Code)) != 1 {
		if s.recordOTPFailure(userID, req.Channel) < maxOTPAttempts {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid code")
		}
		if err := s.repo.SetOTP(ctx, userID, req.Channel, nil, nil); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear code")
		}
		s.resetOTPFailures(userID, req.Channel)
		s.logger.Warn("otp cleared after repeated failures", zap.Int64("user_id", userID), zap.String("channel", string(req.Channel)))
		return nil, appErrors.Clone(appErrors.ErrValidation, "too many attempts, request a new code")
	}
	s.resetOTPFailures(userID, req.Channel)

	if err := s.repo.MarkVerified(ctx, userID, req.Channel); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify code")
	}

	if req.Channel == models.ChannelPhone {
		user.PhoneVerified = true
		user.PhoneOTP, user.PhoneOTPExpiresAt = nil, nil
	} else {
		user.EmailVerified = true
		user.EmailOTP, user.EmailOTPExpiresAt = nil, nil
	}
	return user, nil
}

func (s *AuthService) recordOTPFailure(userID int64, channel models.OTPChannel) int {
	s.otpMu.Lock()
	defer s.otpMu.Unlock()
	slot := otpSlot{userID: userID, channel: channel}
	s.otpFailures[slot]++
	return s.otpFailures[slot]
}

func (s *AuthService) resetOTPFailures(userID int64, channel models.OTPChannel) {
	s.otpMu.Lock()
	delete(s.otpFailures, otpSlot{userID: userID, channel: channel})
	s.otpMu.Unlock()
}

// DeleteAccount removes the user together with their issues and push tokens.
func (s *AuthService) DeleteAccount(ctx context.Context, userID int64) error {
	if err := s.repo.DeleteCascade(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete account")
	}
	s.logger.Info("account deleted", zap.Int64("user_id", userID))
	return nil
}

// ValidateToken parses and validates a bearer token returning the claims. The
// configured static admin token resolves to an admin identity without a user id.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	if s.config.AdminToken != "" && subtle.ConstantTimeCompare([]byte(tokenString), []byte(s.config.AdminToken)) == 1 {
		return &models.JWTClaims{Email: "admin", Role: models.RoleAdmin}, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) authResponse(user *models.User) (*dto.AuthResponse, error) {
	token, _, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	return &dto.AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.config.AccessTokenExpiry.Seconds()),
		User:      user,
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   fmt.Sprintf("%d", user.ID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
