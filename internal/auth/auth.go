// Package auth issues dashboard session tokens and manages user accounts.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Roles a user may hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DefaultTokenTTL is the session length when none is configured.
const DefaultTokenTTL = 4 * time.Hour

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
}

// Service authenticates users against a UserStore and signs HS256 tokens.
type Service struct {
	users       domain.UserStore
	secret      []byte
	ttl         time.Duration
	minPassword int
	logger      *slog.Logger
}

// New creates a Service. A non-positive ttl uses DefaultTokenTTL.
func New(users domain.UserStore, secret string, ttl time.Duration, minPassword int, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{users: users, secret: []byte(secret), ttl: ttl, minPassword: minPassword, logger: logger}
}

// Login checks credentials and returns a signed bearer token. Unknown users
// and wrong passwords both return domain.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	u, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Token{}, domain.ErrInvalidCredentials
		}
		return Token{}, fmt.Errorf("login: %w", err)
	}
	if !checkPassword(u.PasswordHash, password) {
		return Token{}, domain.ErrInvalidCredentials
	}
	if !isBcrypt(u.PasswordHash) {
		s.logger.Warn("user has a plain-text password; recreate the account to hash it", "username", username)
	}

	signed, err := s.issue(username)
	if err != nil {
		return Token{}, fmt.Errorf("login: %w", err)
	}
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	return Token{AccessToken: signed, TokenType: "bearer", Role: role}, nil
}

func (s *Service) issue(subject string) (string, error) {
	now := domain.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses a token and returns its subject. Expired, malformed, or
// foreign-signed tokens return domain.ErrUnauthorized.
func (s *Service) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(domain.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	return claims.Subject, nil
}

// CreateUser stores a new account with a bcrypt-hashed password. Duplicate
// usernames return domain.ErrConflict.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("create user: %w: username is required", domain.ErrInvalidInput)
	}
	if len(password) < s.minPassword {
		return fmt.Errorf("create user: %w: password must be at least %d characters", domain.ErrInvalidInput, s.minPassword)
	}
	switch role {
	case "":
		role = RoleUser
	case RoleUser, RoleAdmin:
	default:
		return fmt.Errorf("create user: %w: role must be %s or %s", domain.ErrInvalidInput, RoleUser, RoleAdmin)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if err := s.users.CreateUser(ctx, domain.User{Username: username, PasswordHash: string(hash), Role: role}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", "username", username, "role", role)
	return nil
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

// checkPassword accepts bcrypt hashes and, for accounts created before
// hashing, an exact plain-text match.
func checkPassword(stored, password string) bool {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return stored != "" && subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}
