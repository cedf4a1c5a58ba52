package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest is the operator login payload.
type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	Pubkey      string    `json:"pubkey"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	Pubkey string `json:"pubkey"`
	jwt.RegisteredClaims
}

// Pagination describes a paged collection response.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
