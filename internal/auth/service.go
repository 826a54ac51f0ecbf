// Package auth provides the credential provider behind the chat
// handshake. The session engine only sees the Provider interface; the
// sqlite-backed Service is the default implementation.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/vrodas/lanchat-server/internal/store"
)

// Auth actions accepted by a Provider.
const (
	ActionLogin    = "login"
	ActionRegister = "register"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when a username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when a password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Provider turns credentials into a verdict. The message is relayed to
// the client verbatim in the auth_response frame.
type Provider interface {
	Authenticate(ctx context.Context, action, username, password string) (ok bool, message string)
}

// Service provides authentication operations backed by a user store.
type Service struct {
	store store.UserStore
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore) *Service {
	return &Service{store: userStore}
}

// Authenticate implements Provider. Unknown actions fail without
// touching the store.
func (s *Service) Authenticate(ctx context.Context, action, username, password string) (bool, string) {
	var err error
	switch action {
	case ActionRegister:
		err = s.Register(ctx, username, password)
		if err == nil {
			return true, "registration successful"
		}
	case ActionLogin:
		err = s.Login(ctx, username, password)
		if err == nil {
			return true, "login successful"
		}
	default:
		return false, "invalid auth action"
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUserExists),
		errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrInvalidPassword):
		return false, err.Error()
	default:
		return false, "authentication unavailable"
	}
}

// Register creates a new user with a hashed password.
func (s *Service) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return ErrInvalidUsername
	}
	if len(password) < 6 {
		return ErrInvalidPassword
	}

	if existing, err := s.store.GetUserByUsername(ctx, username); err == nil && existing != nil {
		return ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}

	if _, err := s.store.CreateUser(ctx, username, hashedPassword); err != nil {
		return err
	}
	return nil
}

// Login validates credentials and records the login time.
func (s *Service) Login(ctx context.Context, username, password string) error {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return ErrInvalidCredentials
	}

	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return ErrInvalidCredentials
	}

	return s.store.TouchLastLogin(ctx, user.ID)
}
