package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/pkg/config"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
)

// AuthService verifies access tokens issued by the platform's auth service.
// Token issuance, sessions, and password handling live outside this service.
type AuthService struct {
	cfg config.JWTConfig
}

// NewAuthService constructs the auth service.
func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{cfg: cfg}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
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
