package services

import (
	"context"
	"errors"
	"fmt"

	"monuguard/internal/auth"
	"monuguard/internal/middleware"
)

// ErrUnauthorized is returned for failed logins
var ErrUnauthorized = errors.New("unauthorized")

// LoginResult carries a issued token
type LoginResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// AuthStatus reports whether auth is on and who is calling
type AuthStatus struct {
	Enabled       bool    `json:"enabled"`
	Authenticated bool    `json:"authenticated"`
	Username      *string `json:"username,omitempty"`
}

// AuthImplementation implements the auth service
type AuthImplementation struct {
	authenticator *auth.Authenticator
}

// NewAuthService creates a new auth service implementation
func NewAuthService(authenticator *auth.Authenticator) *AuthImplementation {
	return &AuthImplementation{
		authenticator: authenticator,
	}
}

// Login authenticates a user and returns a JWT token
func (a *AuthImplementation) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	token, expiresAt, err := a.authenticator.Authenticate(username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
		}
		if errors.Is(err, auth.ErrAuthDisabled) {
			return nil, fmt.Errorf("%w: authentication is disabled", ErrUnauthorized)
		}
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Status returns the current authentication status
func (a *AuthImplementation) Status(ctx context.Context) *AuthStatus {
	status := &AuthStatus{Enabled: a.authenticator.IsEnabled()}

	// Check if user is authenticated via middleware
	if claims := middleware.GetUserFromContext(ctx); claims != nil {
		status.Authenticated = true
		status.Username = &claims.Username
	}
	return status
}
