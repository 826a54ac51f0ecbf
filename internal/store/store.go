package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// User represents a registered chat user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// UserStore persists user accounts for the auth provider.
type UserStore interface {
	// CreateUser inserts a new user with the given username and password hash.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// TouchLastLogin records a successful login for the user.
	TouchLastLogin(ctx context.Context, userID int64) error
}

// Store is the full persistence interface the application owns.
type Store interface {
	UserStore

	// Close releases underlying resources.
	Close() error
}
