// Package admin gates the management panel behind a shared password.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"libris/api/internal/session"
	"libris/api/internal/util"
)

// ErrWrongPassword is returned when an unlock attempt fails.
var ErrWrongPassword = errors.New("wrong admin password")

// SessionStore persists unlocked sessions keyed by token hash.
type SessionStore interface {
	SaveAdminSession(ctx context.Context, tokenHash string, ttl time.Duration) error
	LookupAdminSession(ctx context.Context, tokenHash string) (session.AdminSession, error)
	RevokeAdminSession(ctx context.Context, tokenHash string) error
}

// Service checks the shared admin password and issues session tokens.
// The password hash is supplied at startup; plaintext never leaves the
// unlock request.
type Service struct {
	passwordHash []byte
	sessions     SessionStore
	ttl          time.Duration
}

// NewService builds the gate from a bcrypt hash of the admin password.
func NewService(passwordHash string, sessions SessionStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		passwordHash: []byte(passwordHash),
		sessions:     sessions,
		ttl:          ttl,
	}
}

// HashPassword produces the bcrypt hash stored in configuration.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Unlock verifies the password and returns a fresh session token. The
// token itself is handed to the client; only its hash is stored.
func (s *Service) Unlock(ctx context.Context, password string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", ErrWrongPassword
	}

	token := util.NewToken()
	if err := s.sessions.SaveAdminSession(ctx, util.HashToken(token), s.ttl); err != nil {
		return "", fmt.Errorf("save admin session: %w", err)
	}
	return token, nil
}

// Check reports whether the token belongs to an unlocked session.
func (s *Service) Check(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("missing admin token")
	}
	_, err := s.sessions.LookupAdminSession(ctx, util.HashToken(token))
	return err
}

// Lock revokes the session for the given token.
func (s *Service) Lock(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.RevokeAdminSession(ctx, util.HashToken(token))
}
