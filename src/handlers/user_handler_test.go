package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/budgetwise/backend/src/auth"
	"github.com/username/budgetwise/backend/src/services"
	"github.com/username/budgetwise/backend/src/store"
)

// fakeProvider is an in-memory auth.Provider for handler tests.
type fakeProvider struct {
	users       map[string]string // email -> password
	nextUserID  string
	signInErr   error
	signedOut   []string
	resetEmails []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{users: map[string]string{}, nextUserID: "u1"}
}

func (p *fakeProvider) session(email string) *auth.Session {
	return &auth.Session{UserID: p.nextUserID, Email: email, AccessToken: "access", RefreshToken: "refresh"}
}

func (p *fakeProvider) SignUp(ctx context.Context, name, email, password string) (*auth.Session, error) {
	if _, exists := p.users[email]; exists {
		return nil, &auth.Error{Kind: auth.KindEmailInUse, Err: errors.New("duplicate")}
	}
	p.users[email] = password
	return p.session(email), nil
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	stored, exists := p.users[email]
	if !exists {
		return nil, &auth.Error{Kind: auth.KindUserNotFound, Err: errors.New("no user")}
	}
	if stored != password {
		return nil, &auth.Error{Kind: auth.KindWrongCredentials, Err: errors.New("bad password")}
	}
	return p.session(email), nil
}

func (p *fakeProvider) SignOut(ctx context.Context, accessToken string) error {
	p.signedOut = append(p.signedOut, accessToken)
	return nil
}

func (p *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*auth.Session, error) {
	if refreshToken != "refresh" {
		return nil, &auth.Error{Kind: auth.KindInvalidToken, Err: errors.New("unknown token")}
	}
	return p.session("jane@x.com"), nil
}

func (p *fakeProvider) CurrentSession(ctx context.Context, accessToken string) (*auth.Session, error) {
	if accessToken != "access" {
		return nil, &auth.Error{Kind: auth.KindInvalidToken, Err: errors.New("unknown token")}
	}
	return p.session("jane@x.com"), nil
}

func (p *fakeProvider) SendPasswordReset(ctx context.Context, email string) error {
	p.resetEmails = append(p.resetEmails, email)
	return nil
}

func (p *fakeProvider) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token != "good-token" {
		return &auth.Error{Kind: auth.KindInvalidToken, Err: errors.New("unknown token")}
	}
	return nil
}

func (p *fakeProvider) OnSessionChange(fn func(*auth.Session)) func() {
	return func() {}
}

func newTestUserHandler() (*UserHandler, *fakeProvider, store.DocumentStore) {
	provider := newFakeProvider()
	st := store.NewMemoryStore()
	return NewUserHandler(provider, st, services.NewViewerService(st)), provider, st
}

func postJSON(target string, payload map[string]string) *http.Request {
	body, _ := json.Marshal(payload)
	r := httptest.NewRequest("POST", target, strings.NewReader(string(body)))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestRegisterCreatesProfile(t *testing.T) {
	h, _, st := newTestUserHandler()
	defer st.Close()

	w := httptest.NewRecorder()
	h.RegisterUserHandler(w, postJSON("/api/auth/register", map[string]string{
		"name":     "Jane Doe",
		"email":    "jane@x.com",
		"password": "secret123",
	}))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
		User        struct {
			DisplayName string `json:"displayName"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Jane Doe", resp.User.DisplayName)

	snap, err := st.List(context.Background(), services.ProfilesCollection, store.Filter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Len(t, snap, 1)
}

func TestRegisterValidation(t *testing.T) {
	h, _, st := newTestUserHandler()
	defer st.Close()

	tests := []struct {
		name    string
		payload map[string]string
		wantMsg string
	}{
		{"missing email", map[string]string{"password": "secret123"}, "Email is required"},
		{"bad email", map[string]string{"email": "not-an-email", "password": "secret123"}, "Please enter a valid email address"},
		{"short password", map[string]string{"email": "jane@x.com", "password": "12345"}, "Password must be at least 6 characters"},
		{"short name", map[string]string{"name": "J", "email": "jane@x.com", "password": "secret123"}, "Name must be at least 2 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.RegisterUserHandler(w, postJSON("/api/auth/register", tt.payload))
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantMsg)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h, provider, st := newTestUserHandler()
	defer st.Close()
	provider.users["jane@x.com"] = "secret123"

	w := httptest.NewRecorder()
	h.RegisterUserHandler(w, postJSON("/api/auth/register", map[string]string{
		"email":    "jane@x.com",
		"password": "secret123",
	}))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Email address already in use")
}

func TestLoginSuccess(t *testing.T) {
	h, provider, st := newTestUserHandler()
	defer st.Close()
	provider.users["jane@x.com"] = "secret123"

	w := httptest.NewRecorder()
	h.LoginUserHandler(w, postJSON("/api/auth/login", map[string]string{
		"email":    "jane@x.com",
		"password": "secret123",
	}))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
		User        struct {
			DisplayName string `json:"displayName"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "access", resp.AccessToken)
	// No profile document: the email local part serves as the display name.
	assert.Equal(t, "jane", resp.User.DisplayName)
}

func TestLoginErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		kind       auth.ErrorKind
		wantStatus int
		wantMsg    string
	}{
		{"unknown user", auth.KindUserNotFound, http.StatusUnauthorized, "No user found with this email."},
		{"wrong password", auth.KindWrongCredentials, http.StatusUnauthorized, "Incorrect password. Please try again."},
		{"rate limited", auth.KindRateLimited, http.StatusTooManyRequests, "Too many failed attempts. Please try again later."},
		{"disabled", auth.KindDisabledAccount, http.StatusForbidden, "This account has been disabled."},
		{"network", auth.KindNetworkFailure, http.StatusServiceUnavailable, "Network error. Please check your connection."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, provider, st := newTestUserHandler()
			defer st.Close()
			provider.signInErr = &auth.Error{Kind: tt.kind, Err: errors.New(tt.name)}

			w := httptest.NewRecorder()
			h.LoginUserHandler(w, postJSON("/api/auth/login", map[string]string{
				"email":    "jane@x.com",
				"password": "secret123",
			}))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantMsg)
		})
	}
}

func TestLogout(t *testing.T) {
	h, provider, st := newTestUserHandler()
	defer st.Close()

	r := httptest.NewRequest("POST", "/api/auth/logout", nil)
	r.Header.Set("Authorization", "Bearer access")
	w := httptest.NewRecorder()
	h.LogoutUserHandler(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"access"}, provider.signedOut)
}

func TestRequestPasswordResetNeverLeaks(t *testing.T) {
	h, provider, st := newTestUserHandler()
	defer st.Close()

	w := httptest.NewRecorder()
	h.RequestPasswordResetHandler(w, postJSON("/api/auth/request-password-reset", map[string]string{
		"email": "nobody@x.com",
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "If an account with that email exists")
	assert.Equal(t, []string{"nobody@x.com"}, provider.resetEmails)
}

func TestResetPassword(t *testing.T) {
	h, _, st := newTestUserHandler()
	defer st.Close()

	w := httptest.NewRecorder()
	h.ResetPasswordHandler(w, postJSON("/api/auth/reset-password", map[string]string{
		"token":        "good-token",
		"new_password": "newsecret",
	}))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ResetPasswordHandler(w, postJSON("/api/auth/reset-password", map[string]string{
		"token":        "bad-token",
		"new_password": "newsecret",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMe(t *testing.T) {
	h, _, st := newTestUserHandler()
	defer st.Close()

	w := httptest.NewRecorder()
	h.HandleGetMe(w, authedRequest("GET", "/api/me", "", testSession()))
	require.Equal(t, http.StatusOK, w.Code)

	var viewer struct {
		Authenticated bool   `json:"authenticated"`
		DisplayName   string `json:"displayName"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &viewer))
	assert.True(t, viewer.Authenticated)
	assert.Equal(t, "jane", viewer.DisplayName)
}

func TestUpdateProfile(t *testing.T) {
	h, _, st := newTestUserHandler()
	defer st.Close()
	sess := testSession()

	w := httptest.NewRecorder()
	h.HandleUpdateProfile(w, authedRequest("PUT", "/api/me/profile", `{"name":"Jane Doe"}`, sess))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.HandleGetMe(w, authedRequest("GET", "/api/me", "", sess))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Jane Doe")

	// A second update rewrites the same document.
	w = httptest.NewRecorder()
	h.HandleUpdateProfile(w, authedRequest("PUT", "/api/me/profile", `{"name":"Janet"}`, sess))
	require.Equal(t, http.StatusOK, w.Code)

	snap, err := st.List(context.Background(), services.ProfilesCollection, store.Filter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Len(t, snap, 1)
}
