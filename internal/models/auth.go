package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID int64    `json:"user_id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the caller may use admin-only operations.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Actor is the resolved caller identity handed to the issue store.
type Actor struct {
	UserID  *int64
	IsAdmin bool
}

// ActorFromClaims converts optional claims into an Actor. A static admin token
// carries no user id.
func ActorFromClaims(c *JWTClaims) Actor {
	if c == nil {
		return Actor{}
	}
	actor := Actor{IsAdmin: c.IsAdmin()}
	if c.UserID > 0 {
		id := c.UserID
		actor.UserID = &id
	}
	return actor
}
