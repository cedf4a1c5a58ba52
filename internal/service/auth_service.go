package service

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/florrin/calagenda/internal/models"
	appErrors "github.com/florrin/calagenda/pkg/errors"
)

// AuthConfig defines the operator login flow. The service is single
// operator: one pubkey, one bcrypt password hash, both from configuration.
type AuthConfig struct {
	Secret         string
	Expiry         time.Duration
	OperatorPubkey string
	PasswordHash   string
}

// AuthService issues and validates operator access tokens.
type AuthService struct {
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Expiry <= 0 {
		config.Expiry = time.Hour
	}
	return &AuthService{validator: validate, logger: logger, config: config}
}

// Login checks the operator password and returns a signed access token.
func (s *AuthService) Login(req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	if s.config.PasswordHash == "" || !models.IsHexPubkey(s.config.OperatorPubkey) {
		return nil, appErrors.Clone(appErrors.ErrInternal, "operator credentials not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid password")
	}

	now := time.Now().UTC()
	claims := models.JWTClaims{
		Pubkey: s.config.OperatorPubkey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.config.OperatorPubkey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	s.logger.Info("operator logged in", zap.String("pubkey", s.config.OperatorPubkey))
	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.Expiry.Seconds()),
		IssuedAt:    now,
		Pubkey:      s.config.OperatorPubkey,
	}, nil
}

// ValidateToken parses and verifies an access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	if !models.IsHexPubkey(claims.Pubkey) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries no pubkey")
	}
	return claims, nil
}
