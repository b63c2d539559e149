package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/username/budgetwise/backend/src/logger"
	"github.com/username/budgetwise/backend/src/model"
	"github.com/username/budgetwise/backend/src/security"
)

// Mailer delivers password-reset messages. Delivery transport is out of scope
// here; see LogMailer.
type Mailer interface {
	SendPasswordResetEmail(email, name, resetURL string) error
}

// LogMailer writes reset links to the structured log instead of sending mail.
// Stands in for a real transport in development and tests.
type LogMailer struct{}

func (LogMailer) SendPasswordResetEmail(email, name, resetURL string) error {
	logger.L.Info("Password reset link issued", "email", email, "name", name, "url", resetURL)
	return nil
}

// LocalProvider implements Provider on top of the application database.
type LocalProvider struct {
	db           *sql.DB
	tokens       *security.AuthService
	mailer       Mailer
	resetBaseURL string
	resetExpiry  time.Duration
	refreshTTL   time.Duration

	mu        sync.Mutex
	listeners map[int]func(*Session)
	nextID    int
}

type LocalProviderConfig struct {
	ResetBaseURL  string
	ResetExpiry   time.Duration
	RefreshExpiry time.Duration
}

func NewLocalProvider(db *sql.DB, tokens *security.AuthService, mailer Mailer, cfg LocalProviderConfig) *LocalProvider {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &LocalProvider{
		db:           db,
		tokens:       tokens,
		mailer:       mailer,
		resetBaseURL: cfg.ResetBaseURL,
		resetExpiry:  cfg.ResetExpiry,
		refreshTTL:   cfg.RefreshExpiry,
		listeners:    make(map[int]func(*Session)),
	}
}

func (p *LocalProvider) SignUp(ctx context.Context, name, email, password string) (*Session, error) {
	_, err := model.GetUserByEmail(p.db, email)
	if err == nil {
		return nil, &Error{Kind: KindEmailInUse}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logger.L.Error("Error checking email uniqueness", "error", err)
		return nil, &Error{Kind: KindNetworkFailure, Err: err}
	}

	hashed, err := p.tokens.HashPassword(password)
	if err != nil {
		logger.L.Error("Failed to hash password", "error", err)
		return nil, &Error{Kind: KindNetworkFailure, Err: err}
	}

	user := &model.User{
		Name:     name,
		Email:    email,
		Password: hashed,
	}
	if err := user.CreateUser(p.db); err != nil {
		logger.L.Error("Failed to create user in DB", "error", err)
		return nil, &Error{Kind: KindNetworkFailure, Err: err}
	}

	logger.L.Info("User registered", "userID", user.ID)
	return p.openSession(user)
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := model.GetUserByEmail(p.db, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &Error{Kind: KindUserNotFound}
		}
		logger.L.Error("User lookup by email failed for login", "error", err)
		return nil, &Error{Kind: KindNetworkFailure, Err: err}
	}

	if user.IsDisabled {
		logger.L.Warn("Login attempt on disabled account", "userID", user.ID)
		return nil, &Error{Kind: KindDisabledAccount}
	}

	if err := user.CheckPassword(password); err != nil {
		logger.L.Warn("Password check failed for login", "userID", user.ID)
		return nil, &Error{Kind: KindWrongCredentials}
	}

	logger.L.Info("User login successful", "userID", user.ID)
	return p.openSession(user)
}

func (p *LocalProvider) openSession(user *model.User) (*Session, error) {
	userIDStr := strconv.FormatInt(user.ID, 10)

	accessToken, err := p.tokens.GenerateToken(userIDStr)
	if err != nil {
		logger.L.Error("Failed to generate access token", "userID", user.ID, "error", err)
		return nil, &Error{Kind: KindNetworkFailure, Err: err}
	}
	refreshToken, err := p.tokens.GenerateRefreshToken()
	if err != nil {
		logger.L.Error("Failed to generate refresh token", "userID", user.ID, "error", err)
		return nil, &Error{Kind: KindNetworkFailure, Err: err}
	}

	record := &model.Session{
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(p.refreshTTL),
	}
	if err := model.CreateSession(p.db, record); err != nil {
		logger.L.Error("Failed to create session", "userID", user.ID, "error", err)
		return nil, &Error{Kind: KindNetworkFailure, Err: err}
	}

	sess := &Session{
		UserID:       userIDStr,
		Email:        user.Email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    record.ExpiresAt,
	}
	p.notify(sess)
	return sess, nil
}

func (p *LocalProvider) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	if err := model.DeleteSessionByToken(p.db, accessToken); err != nil {
		logger.L.Warn("Failed to delete session on logout", "error", err)
		return &Error{Kind: KindNetworkFailure, Err: err}
	}
	p.notify(nil)
	return nil
}

func (p *LocalProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	oldSession, err := model.GetSessionByRefreshToken(p.db, refreshToken)
	if err != nil {
		logger.L.Warn("Refresh token lookup failed or token invalid/expired", "error", err)
		return nil, &Error{Kind: KindInvalidToken, Err: err}
	}

	if err := model.DeleteSessionByRefreshToken(p.db, refreshToken); err != nil {
		logger.L.Error("Failed to delete old session during refresh", "userID", oldSession.UserID, "error", err)
	}

	user, err := model.GetUserByID(p.db, oldSession.UserID)
	if err != nil {
		return nil, &Error{Kind: KindUserNotFound, Err: err}
	}
	return p.openSession(user)
}

func (p *LocalProvider) CurrentSession(ctx context.Context, accessToken string) (*Session, error) {
	userIDStr, err := p.tokens.ValidateToken(accessToken)
	if err != nil {
		return nil, &Error{Kind: KindInvalidToken, Err: err}
	}

	record, err := model.GetSessionByToken(p.db, accessToken)
	if err != nil {
		return nil, &Error{Kind: KindInvalidToken, Err: err}
	}

	user, err := model.GetUserByID(p.db, record.UserID)
	if err != nil {
		return nil, &Error{Kind: KindUserNotFound, Err: err}
	}
	if user.IsDisabled {
		return nil, &Error{Kind: KindDisabledAccount}
	}

	return &Session{
		UserID:       userIDStr,
		Email:        user.Email,
		AccessToken:  accessToken,
		RefreshToken: record.RefreshToken,
		ExpiresAt:    record.ExpiresAt,
	}, nil
}

func (p *LocalProvider) SendPasswordReset(ctx context.Context, email string) error {
	user, err := model.GetUserByEmail(p.db, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Do not leak account existence; the HTTP layer answers
			// generically either way.
			logger.L.Info("Password reset requested for unknown email")
			return &Error{Kind: KindUserNotFound}
		}
		return &Error{Kind: KindNetworkFailure, Err: err}
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		logger.L.Error("Failed to generate password reset token bytes", "error", err)
		return &Error{Kind: KindNetworkFailure, Err: err}
	}
	resetToken := hex.EncodeToString(tokenBytes)

	if err := user.SetPasswordResetToken(p.db, resetToken, time.Now().Add(p.resetExpiry)); err != nil {
		logger.L.Error("Failed to set password reset token in DB", "userID", user.ID, "error", err)
		return &Error{Kind: KindNetworkFailure, Err: err}
	}

	resetURL := p.resetBaseURL + "?token=" + resetToken
	if err := p.mailer.SendPasswordResetEmail(user.Email, user.Name, resetURL); err != nil {
		logger.L.Error("Failed to send password reset email", "userID", user.ID, "error", err)
	}

	logger.L.Info("Password reset initiated", "userID", user.ID)
	return nil
}

func (p *LocalProvider) ResetPassword(ctx context.Context, token, newPassword string) error {
	user, err := model.GetUserByPasswordResetToken(p.db, token)
	if err != nil {
		logger.L.Warn("Password reset token lookup failed or token expired", "error", err)
		return &Error{Kind: KindInvalidToken, Err: err}
	}

	hashed, err := p.tokens.HashPassword(newPassword)
	if err != nil {
		logger.L.Error("Failed to hash new password", "userID", user.ID, "error", err)
		return &Error{Kind: KindNetworkFailure, Err: err}
	}

	if err := user.UpdatePassword(p.db, hashed); err != nil {
		logger.L.Error("Failed to update password in DB", "userID", user.ID, "error", err)
		return &Error{Kind: KindNetworkFailure, Err: err}
	}

	logger.L.Info("Password reset completed", "userID", user.ID)
	return nil
}

func (p *LocalProvider) OnSessionChange(fn func(*Session)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *LocalProvider) notify(sess *Session) {
	p.mu.Lock()
	fns := make([]func(*Session), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(sess)
	}
}
