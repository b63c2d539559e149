// Package auth implements the authentication collaborator: sessions, sign-in,
// sign-up, and password reset, backed by the users and sessions tables.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the machine-readable classification of an auth failure. The
// HTTP layer maps kinds to user-facing copy.
type ErrorKind string

const (
	KindUserNotFound     ErrorKind = "user-not-found"
	KindWrongCredentials ErrorKind = "wrong-credentials"
	KindInvalidEmail     ErrorKind = "invalid-email"
	KindEmailInUse       ErrorKind = "email-in-use"
	KindRateLimited      ErrorKind = "rate-limited"
	KindNetworkFailure   ErrorKind = "network-failure"
	KindDisabledAccount  ErrorKind = "disabled-account"
	KindInvalidToken     ErrorKind = "invalid-token"
)

// Error wraps an auth failure with its kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, or KindNetworkFailure if err is not
// an auth error.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindNetworkFailure
}

// Session is the transient authenticated-viewer value. The core only observes
// it; establishment and teardown belong to the Provider.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LocalPart returns the text before the '@' of the session email, or "" when
// the email has no local part.
func (s *Session) LocalPart() string {
	for i, r := range s.Email {
		if r == '@' {
			return s.Email[:i]
		}
	}
	return ""
}

// Provider is the authentication collaborator of the application core.
type Provider interface {
	SignUp(ctx context.Context, name, email, password string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	// CurrentSession resolves an access token to its session, or an
	// invalid-token error when absent or expired.
	CurrentSession(ctx context.Context, accessToken string) (*Session, error)
	SendPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	// OnSessionChange registers a callback fired after every sign-in and
	// sign-out. The returned function removes the registration.
	OnSessionChange(fn func(*Session)) func()
}
