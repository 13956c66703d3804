package dto

import "github.com/noah-isme/citizen-safety-api/internal/models"

// SignupRequest registers a new account.
type SignupRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6"`
	Name     string  `json:"name" validate:"required"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,min=5,max=20"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse returns an access token with the account it belongs to.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
	User      *models.User `json:"user"`
}

// UpdateProfileRequest changes profile fields. Changing the phone number
// clears its verified flag.
type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,min=5,max=20"`
}

// OTPRequest asks for a one-time password on a channel.
type OTPRequest struct {
	Channel models.OTPChannel `json:"channel" validate:"required,oneof=email phone"`
}

// VerifyOTPRequest submits a received one-time password.
type VerifyOTPRequest struct {
	Channel models.OTPChannel `json:"channel" validate:"required,oneof=email phone"`
	Code    string            `json:"code" validate:"required,len=6,numeric"`
}

// RegisterPushTokenRequest registers a device for notifications.
type RegisterPushTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}

// RemovePushTokenRequest unregisters a device.
type RemovePushTokenRequest struct {
	Token string `json:"token" validate:"required"`
}
