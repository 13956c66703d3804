package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
)

type pushTokenRepository interface {
	Upsert(ctx context.Context, token *models.PushToken) error
	FindByUserID(ctx context.Context, userID int64) ([]models.PushToken, error)
	Delete(ctx context.Context, userID int64, token string) error
}

// PushTokenService manages device registrations.
type PushTokenService struct {
	repo      pushTokenRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPushTokenService constructs the push token service.
func NewPushTokenService(repo pushTokenRepository, validate *validator.Validate, logger *zap.Logger) *PushTokenService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushTokenService{repo: repo, validator: validate, logger: logger}
}

// Register stores or refreshes a device token for the user.
func (s *PushTokenService) Register(ctx context.Context, userID int64, req dto.RegisterPushTokenRequest) (*models.PushToken, error) {
	req.Token = strings.TrimSpace(req.Token)
	req.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid push token payload")
	}

	token := &models.PushToken{UserID: userID, Token: req.Token, Platform: req.Platform}
	if err := s.repo.Upsert(ctx, token); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register push token")
	}
	s.logger.Debug("push token registered", zap.Int64("user_id", userID), zap.String("platform", token.Platform))
	return token, nil
}

// Remove unregisters a device token. Unknown tokens are ignored.
func (s *PushTokenService) Remove(ctx context.Context, userID int64, req dto.RemovePushTokenRequest) error {
	req.Token = strings.TrimSpace(req.Token)
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid push token payload")
	}
	if err := s.repo.Delete(ctx, userID, req.Token); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove push token")
	}
	return nil
}
