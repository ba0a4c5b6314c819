package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"` // user, admin
	jwt.RegisteredClaims
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
}

// TokenRequest is the issuance payload an upstream identity service
// sends alongside the issuer key.
type TokenRequest struct {
	UserID int64  `json:"user_id" validate:"required,min=1"`
	Role   string `json:"role" validate:"required,oneof=user admin"`
}
