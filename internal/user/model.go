// Package user holds user accounts, their SQLite store, and the safety
// invariants enforced on configuration changes.
package user

import "time"

// Configuration holds the per-account flags an administrator can change.
type Configuration struct {
	IsAdministrator bool `json:"is_administrator"`
	IsDisabled      bool `json:"is_disabled"`
	IsHidden        bool `json:"is_hidden"`
}

// User is a single account. The password hash never leaves the store.
type User struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Configuration Configuration `json:"configuration"`
	HasPassword   bool          `json:"has_password"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ListFilter narrows a user listing. Nil fields match everything.
type ListFilter struct {
	IsHidden   *bool
	IsDisabled *bool
}
