package user

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Account store failure modes surfaced to callers.
var (
	// ErrNotFound is returned when a user id or name does not resolve.
	ErrNotFound = errors.New("user not found")

	// ErrNameTaken rejects a create or rename that collides with an existing
	// account name (compared case-insensitively).
	ErrNameTaken = errors.New("user name already taken")
)

const userColumns = `id, name, password_hash, is_admin, is_disabled, is_hidden, created_at, updated_at`

// Store provides durable account storage backed by SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates an account store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new account with the given name and initial configuration.
func (s *Store) Create(ctx context.Context, name string, cfg Configuration) (*User, error) {
	if name == "" {
		return nil, fmt.Errorf("user name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if taken, err := nameTaken(ctx, tx, name, ""); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	u := &User{
		ID:            uuid.New().String(),
		Name:          name,
		Configuration: cfg,
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, name, password_hash, is_admin, is_disabled, is_hidden, created_at, updated_at)
		VALUES (?, ?, '', ?, ?, ?, ?, ?)
	`, u.ID, u.Name, boolInt(cfg.IsAdministrator), boolInt(cfg.IsDisabled), boolInt(cfg.IsHidden),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing user create: %w", err)
	}
	return u, nil
}

// GetByID retrieves an account by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetByName retrieves an account by name, compared case-insensitively. When
// the store somehow holds more than one match the first by name ordering wins.
func (s *Store) GetByName(ctx context.Context, name string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(name) = lower(?) ORDER BY name LIMIT 1`, name)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by name: %w", err)
	}
	return u, nil
}

// List returns accounts matching the filter, ordered by name.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []any
	if filter.IsHidden != nil {
		query += ` AND is_hidden = ?`
		args = append(args, boolInt(*filter.IsHidden))
	}
	if filter.IsDisabled != nil {
		query += ` AND is_disabled = ?`
		args = append(args, boolInt(*filter.IsDisabled))
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Count returns the total number of accounts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// Delete removes an account. Sessions are cleaned up by ON DELETE CASCADE.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// SetPassword assigns a new credential unconditionally.
func (s *Store) SetPassword(ctx context.Context, id, password string) error {
	hash, err := bcrypt.GenerateFromPassword(prehashPassword(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		string(hash), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("setting password: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// VerifyPassword checks a plaintext credential against the stored hash.
// An account with no password set accepts only the empty string.
func (s *Store) VerifyPassword(ctx context.Context, id, password string) (bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("querying password hash: %w", err)
	}

	if hash == "" {
		return password == "", nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), prehashPassword(password)) == nil, nil
}

// scanUser scans a database row into a User struct.
func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var hash string
	var isAdmin, isDisabled, isHidden int
	var createdAt, updatedAt string

	err := row.Scan(
		&u.ID, &u.Name, &hash, &isAdmin, &isDisabled, &isHidden,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Configuration = Configuration{
		IsAdministrator: isAdmin != 0,
		IsDisabled:      isDisabled != 0,
		IsHidden:        isHidden != 0,
	}
	u.HasPassword = hash != ""
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)

	return &u, nil
}

// nameTaken reports whether another account (excluding excludeID) already
// uses the name, compared case-insensitively.
func nameTaken(ctx context.Context, tx *sql.Tx, name, excludeID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE lower(name) = lower(?) AND id != ?`,
		name, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking name uniqueness: %w", err)
	}
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// prehashPassword hashes the password with SHA-256 before bcrypt to support
// passwords longer than bcrypt's 72-byte limit. The hex-encoded SHA-256
// digest is 64 bytes, safely within the limit.
func prehashPassword(password string) []byte {
	h := sha256.Sum256([]byte(password))
	return []byte(hex.EncodeToString(h[:]))
}

// parseTime parses a time string, handling both RFC3339 and SQLite datetime formats.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
