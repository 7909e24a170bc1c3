package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Safety-invariant violations. The store must always retain at least one
// administrator and at least one enabled account, and an administrator can
// never be disabled.
var (
	ErrLastAdmin = errors.New("there must be at least one user with administrative access")

	ErrAdminDisabled = errors.New("administrators cannot be disabled")

	ErrLastEnabled = errors.New("there must be at least one enabled user")
)

// UpdateRequest is the proposed new state for an existing account.
type UpdateRequest struct {
	Name          string        `json:"name"`
	Configuration Configuration `json:"configuration"`
}

// checkInvariants evaluates the proposed configuration against the current
// account and store counts. Rules run in order; each is independently
// sufficient to reject.
func checkInvariants(current *User, proposed Configuration, adminCount, enabledCount int) error {
	// Removing admin access from the only administrator.
	if !proposed.IsAdministrator && current.Configuration.IsAdministrator && adminCount == 1 {
		return ErrLastAdmin
	}

	// Disabling an administrator, regardless of how many exist.
	if proposed.IsDisabled && current.Configuration.IsAdministrator {
		return ErrAdminDisabled
	}

	// Disabling the only enabled account.
	if proposed.IsDisabled && !current.Configuration.IsDisabled && enabledCount == 1 {
		return ErrLastEnabled
	}

	return nil
}

// Update applies a proposed name and configuration to an existing account.
// The invariant check and the write run in a single transaction so that two
// racing updates cannot both observe a state that lets them violate the
// invariants. Observable order is rename, then configuration.
func (s *Store) Update(ctx context.Context, id string, req UpdateRequest) (*User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	current, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user for update: %w", err)
	}

	adminCount, enabledCount, err := countsTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := checkInvariants(current, req.Configuration, adminCount, enabledCount); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	// Rename first when the name changed (compared exactly; a case-only
	// change is still a rename).
	newName := current.Name
	if req.Name != "" && req.Name != current.Name {
		if taken, err := nameTaken(ctx, tx, req.Name, id); err != nil {
			return nil, err
		} else if taken {
			return nil, fmt.Errorf("%w: %s", ErrNameTaken, req.Name)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET name = ?, updated_at = ? WHERE id = ?`,
			req.Name, now, id); err != nil {
			return nil, fmt.Errorf("renaming user: %w", err)
		}
		newName = req.Name
	}

	cfg := req.Configuration
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET is_admin = ?, is_disabled = ?, is_hidden = ?, updated_at = ?
		WHERE id = ?
	`, boolInt(cfg.IsAdministrator), boolInt(cfg.IsDisabled), boolInt(cfg.IsHidden), now, id); err != nil {
		return nil, fmt.Errorf("updating user configuration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing user update: %w", err)
	}

	updated := *current
	updated.Name = newName
	updated.Configuration = cfg
	return &updated, nil
}

// countsTx reads the administrator and enabled-account totals inside the
// update transaction.
func countsTx(ctx context.Context, tx *sql.Tx) (adminCount, enabledCount int, err error) {
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE is_admin = 1`).Scan(&adminCount); err != nil {
		return 0, 0, fmt.Errorf("counting administrators: %w", err)
	}
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE is_disabled = 0`).Scan(&enabledCount); err != nil {
		return 0, 0, fmt.Errorf("counting enabled users: %w", err)
	}
	return adminCount, enabledCount, nil
}
