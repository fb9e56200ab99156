package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keepintouch/backend/config"
	"github.com/keepintouch/backend/services/logging"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidTokenType = errors.New("invalid token type")
)

// Claims is the payload of both token types. TokenType distinguishes access
// from refresh tokens on top of the per-type signing secrets, and the JTI plus
// second-precision IssuedAt guarantee two tokens minted for the same user in
// the same second are never byte-identical.
type Claims struct {
	UserID    uint   `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type Service struct {
	config *config.Config
	logger *logging.Service
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		logger: logger,
	}
}

func (s *Service) AccessExpiry() time.Duration {
	return s.config.JWT.AccessExpiry
}

func (s *Service) RefreshExpiry() time.Duration {
	return s.config.JWT.RefreshExpiry
}

func (s *Service) GenerateAccessToken(userID uint) (string, error) {
	return s.generate(userID, TokenTypeAccess, s.config.JWT.AccessSecret, s.config.JWT.AccessExpiry)
}

func (s *Service) GenerateRefreshToken(userID uint) (string, error) {
	return s.generate(userID, TokenTypeRefresh, s.config.JWT.RefreshSecret, s.config.JWT.RefreshExpiry)
}

func (s *Service) generate(userID uint, tokenType, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	jti := uuid.New().String()
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.config.JWT.Issuer,
			Subject:   fmt.Sprintf("%d", userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign token",
				zap.Error(err),
				zap.String("token_type", tokenType))
		}
		return "", fmt.Errorf("failed to generate %s token: %w", tokenType, err)
	}

	return tokenString, nil
}

// Verify checks signature and expiry against the secret for expectedType and
// rejects a decoded token whose token_type claim does not match, on top of
// the per-type signing secrets.
func (s *Service) Verify(tokenString, expectedType string) (*Claims, error) {
	secret := s.config.JWT.AccessSecret
	if expectedType == TokenTypeRefresh {
		secret = s.config.JWT.RefreshSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}
		return []byte(secret), nil
	})

	if err != nil {
		if s.logger != nil {
			s.logger.Warn("token validation failed",
				zap.Error(err),
				zap.String("expected_type", expectedType))
		}

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != expectedType {
		if s.logger != nil {
			s.logger.Warn("token type mismatch",
				zap.String("expected_type", expectedType),
				zap.String("actual_type", claims.TokenType))
		}
		return nil, ErrInvalidTokenType
	}

	return claims, nil
}
