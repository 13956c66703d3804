package models

import "time"

// UserRole distinguishes citizens from triage administrators.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// OTPChannel is the delivery channel a one-time password was issued for.
type OTPChannel string

const (
	ChannelEmail OTPChannel = "email"
	ChannelPhone OTPChannel = "phone"
)

// User represents an application user stored in the users table.
type User struct {
	ID                int64      `db:"id" json:"id"`
	Email             string     `db:"email" json:"email"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	Name              string     `db:"name" json:"name"`
	Phone             *string    `db:"phone" json:"phone,omitempty"`
	Role              UserRole   `db:"role" json:"role"`
	EmailVerified     bool       `db:"email_verified" json:"email_verified"`
	PhoneVerified     bool       `db:"phone_verified" json:"phone_verified"`
	EmailOTP          *string    `db:"email_otp" json:"-"`
	EmailOTPExpiresAt *time.Time `db:"email_otp_expires_at" json:"-"`
	PhoneOTP          *string    `db:"phone_otp" json:"-"`
	PhoneOTPExpiresAt *time.Time `db:"phone_otp_expires_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// OTP returns the stored code and expiry for a channel.
func (u *User) OTP(channel OTPChannel) (*string, *time.Time) {
	if channel == ChannelPhone {
		return u.PhoneOTP, u.PhoneOTPExpiresAt
	}
	return u.EmailOTP, u.EmailOTPExpiresAt
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
	TotalCount int `json:"total_count"`
}
