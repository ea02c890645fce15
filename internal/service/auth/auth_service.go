package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kivop-be/internal/domain"
	"kivop-be/internal/service"
	apperrors "kivop-be/pkg/errors"
	"kivop-be/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// memberClaims are the claims carried by club member tokens
type memberClaims struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Service implements the AuthService interface
type Service struct {
	secret []byte
	issuer string
	now    func() time.Time
	logger *logger.Logger
}

// NewService creates a new auth service validating HS256 tokens signed with
// secret. An empty issuer accepts any issuer.
func NewService(secret, issuer string, logger *logger.Logger) service.AuthService {
	return &Service{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
		logger: logger,
	}
}

// ValidateToken validates a bearer token and returns the member behind it
func (s *Service) ValidateToken(ctx context.Context, token string) (*domain.UserProfile, error) {
	if len(s.secret) == 0 {
		s.logger.Error("JWT secret not configured")
		return nil, apperrors.NewAuthenticationError("Token validation not configured")
	}

	claims, err := s.parse(token)
	if err != nil {
		s.logger.WithError(err).Debug("Token rejected")
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.NewAuthenticationError("Token has expired")
		}
		return nil, apperrors.NewAuthenticationError("Invalid token")
	}

	if claims.Subject == "" {
		s.logger.Error("No user identifier found in token")
		return nil, apperrors.NewAuthenticationError("Invalid token: no user identifier")
	}

	profile := &domain.UserProfile{
		Sub:   claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Roles: claims.Roles,
	}

	s.logger.WithField("user_id", profile.Sub).Debug("Token validated")
	return profile, nil
}

func (s *Service) parse(token string) (*memberClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &memberClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}
