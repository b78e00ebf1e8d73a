package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/audit"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// UserStore looks up accounts
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthService handles user authentication
type AuthService struct {
	users   UserStore
	auditor audit.Recorder
	secret  []byte
	ttl     time.Duration
	clock   clock.Clock
	logger  logrus.FieldLogger
}

// NewAuthService creates a new auth service signing tokens with secret
func NewAuthService(users UserStore, auditor audit.Recorder, secret string, ttl time.Duration, clk clock.Clock, logger logrus.FieldLogger) *AuthService {
	return &AuthService{
		users:   users,
		auditor: auditor,
		secret:  []byte(secret),
		ttl:     ttl,
		clock:   clk,
		logger:  logger,
	}
}

// HashPassword hashes a new password with bcrypt
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must have at least %d characters", auctionerrors.ErrInvalidInput, minPasswordLength)
	}
	if len(password) > 72 {
		return "", fmt.Errorf("%w: password too long (max 72 characters)", auctionerrors.ErrInvalidInput)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Login verifies credentials of an ACTIVE user and generates a JWT
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (string, *models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", nil, fmt.Errorf("%w: email and password are required", auctionerrors.ErrInvalidInput)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, auctionerrors.ErrNotFound) {
			return "", nil, fmt.Errorf("auth.AuthService.Login: %w", err)
		}
		s.failed(ctx, "", email, ip, "unknown email")
		return "", nil, fmt.Errorf("%w: invalid email or password", auctionerrors.ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.failed(ctx, user.ID, email, ip, "wrong password")
		return "", nil, fmt.Errorf("%w: invalid email or password", auctionerrors.ErrUnauthorized)
	}
	if user.Status != models.UserActive {
		s.failed(ctx, user.ID, email, ip, "account "+string(user.Status))
		return "", nil, fmt.Errorf("%w: account is %s", auctionerrors.ErrForbidden, strings.ToLower(string(user.Status)))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    string(user.Role),
		"exp":     s.clock.Now().Add(s.ttl).Unix(),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}

	s.auditor.Record(ctx, models.AuditEntry{Action: audit.ActionLoginSuccess, UserID: user.ID, IP: ip})
	return tokenString, user, nil
}

func (s *AuthService) failed(ctx context.Context, userID, email, ip, reason string) {
	s.logger.WithFields(logrus.Fields{"email": email, "reason": reason}).Warn("Login failed")
	s.auditor.Record(ctx, models.AuditEntry{
		Action:   audit.ActionLoginFailed,
		UserID:   userID,
		IP:       ip,
		Metadata: map[string]any{"email": email, "reason": reason},
	})
}

// ParseToken extracts the caller identity from a JWT
func (s *AuthService) ParseToken(tokenString string) (models.Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return models.Caller{}, fmt.Errorf("%w: %v", auctionerrors.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Caller{}, fmt.Errorf("%w: invalid token", auctionerrors.ErrUnauthorized)
	}
	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	if userID == "" || (models.Role(role) != models.RoleAdmin && models.Role(role) != models.RoleBuyer) {
		return models.Caller{}, fmt.Errorf("%w: malformed token claims", auctionerrors.ErrUnauthorized)
	}
	return models.Caller{ID: userID, Role: models.Role(role)}, nil
}
