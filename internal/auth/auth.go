// Package auth verifies credentials against the account store and manages
// sessions.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sydlexius/millpond/internal/user"
)

const sessionDuration = 24 * time.Hour

// ErrInvalidCredentials is returned when a user resolves but the supplied
// credential does not verify.
var ErrInvalidCredentials = errors.New("invalid user or password")

// Result is the payload produced by a successful authentication.
type Result struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

// Service provides authentication operations.
type Service struct {
	db    *sql.DB
	users *user.Store
}

// NewService creates an auth service.
func NewService(db *sql.DB, users *user.Store) *Service {
	return &Service{db: db, users: users}
}

// Setup creates the initial administrator account if no users exist.
// Returns true if a new account was created.
func (s *Service) Setup(ctx context.Context, username, password string) (bool, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	u, err := s.users.Create(ctx, username, user.Configuration{IsAdministrator: true})
	if err != nil {
		return false, fmt.Errorf("creating admin user: %w", err)
	}
	if err := s.users.SetPassword(ctx, u.ID, password); err != nil {
		return false, fmt.Errorf("setting admin password: %w", err)
	}
	return true, nil
}

// Authenticate verifies a credential for the user with the given id. A user
// that does not resolve yields user.ErrNotFound; a credential mismatch yields
// ErrInvalidCredentials. Disabled or hidden accounts are not special-cased:
// a matching credential authenticates them like any other account.
func (s *Service) Authenticate(ctx context.Context, id, password string) (*Result, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, u, password)
}

// AuthenticateByName resolves the name case-insensitively and verifies the
// credential. The first match by name ordering wins.
func (s *Service) AuthenticateByName(ctx context.Context, name, password string) (*Result, error) {
	u, err := s.users.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, u, password)
}

func (s *Service) verify(ctx context.Context, u *user.User, password string) (*Result, error) {
	ok, err := s.users.VerifyPassword(ctx, u.ID, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, err := s.createSession(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &Result{User: *u, Token: token}, nil
}

// ChangePassword performs a self-service password change: the current
// credential is re-verified and only on success is the new one assigned.
func (s *Service) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.users.VerifyPassword(ctx, u.ID, currentPassword)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	return s.users.SetPassword(ctx, u.ID, newPassword)
}

// ResetPassword is the administrative reset: it bypasses current-credential
// verification and unconditionally assigns the new credential.
func (s *Service) ResetPassword(ctx context.Context, id, newPassword string) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return err
	}
	return s.users.SetPassword(ctx, id, newPassword)
}

// createSession mints a session token for the user.
func (s *Service) createSession(ctx context.Context, userID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	expiresAt := time.Now().Add(sessionDuration).UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, expires_at)
		VALUES (?, ?, ?)
	`, token, userID, expiresAt)
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return token, nil
}

// ValidateSession checks if a session token is valid and returns the user ID.
func (s *Service) ValidateSession(ctx context.Context, token string) (string, error) {
	var userID, expiresAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at FROM sessions WHERE id = ?
	`, token).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.New("invalid session")
	}
	if err != nil {
		return "", fmt.Errorf("querying session: %w", err)
	}

	expires, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return "", fmt.Errorf("parsing expiry: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_ = s.Logout(ctx, token)
		return "", errors.New("session expired")
	}

	return userID, nil
}

// Logout deletes a session.
func (s *Service) Logout(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (s *Service) CleanExpiredSessions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at < ?
	`, time.Now().UTC().Format(time.RFC3339))
	return err
}

// HasUsers returns true if at least one user account exists.
func (s *Service) HasUsers(ctx context.Context) (bool, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
