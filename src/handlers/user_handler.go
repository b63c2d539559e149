// backend/src/handlers/user_handler.go

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/username/budgetwise/backend/src/auth"
	"github.com/username/budgetwise/backend/src/logger"
	"github.com/username/budgetwise/backend/src/models"
	"github.com/username/budgetwise/backend/src/security/validation"
	"github.com/username/budgetwise/backend/src/services"
	"github.com/username/budgetwise/backend/src/store"
)

type UserHandler struct {
	provider auth.Provider
	store    store.DocumentStore
	viewers  *services.ViewerService
}

func NewUserHandler(provider auth.Provider, documentStore store.DocumentStore, viewers *services.ViewerService) *UserHandler {
	return &UserHandler{
		provider: provider,
		store:    documentStore,
		viewers:  viewers,
	}
}

func sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func sendJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// signInErrorMessage maps an auth failure kind to the copy shown on the
// login form. Unknown kinds get the generic fallback.
func signInErrorMessage(err error) (string, int) {
	switch auth.KindOf(err) {
	case auth.KindUserNotFound:
		return "No user found with this email.", http.StatusUnauthorized
	case auth.KindWrongCredentials:
		return "Incorrect password. Please try again.", http.StatusUnauthorized
	case auth.KindInvalidEmail:
		return "Invalid email address.", http.StatusBadRequest
	case auth.KindRateLimited:
		return "Too many failed attempts. Please try again later.", http.StatusTooManyRequests
	case auth.KindDisabledAccount:
		return "This account has been disabled.", http.StatusForbidden
	case auth.KindNetworkFailure:
		return "Network error. Please check your connection.", http.StatusServiceUnavailable
	default:
		return "Login failed. Please try again.", http.StatusInternalServerError
	}
}

func sessionResponse(sess *auth.Session, displayName string) map[string]interface{} {
	return map[string]interface{}{
		"access_token":  sess.AccessToken,
		"refresh_token": sess.RefreshToken,
		"user": map[string]interface{}{
			"id":          sess.UserID,
			"email":       sess.Email,
			"displayName": displayName,
		},
	}
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Sanitization
	credentials.Name = validation.SanitizeText(strings.TrimSpace(credentials.Name))
	credentials.Email = strings.ToLower(validation.SanitizeText(strings.TrimSpace(credentials.Email)))
	credentials.Password = strings.TrimSpace(credentials.Password)

	// Validation. The display name is optional at registration; when absent
	// the email local part serves as the fallback.
	if credentials.Name != "" {
		if err := validation.ValidateName(credentials.Name); err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if err := validation.ValidateEmail(credentials.Email); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(credentials.Password); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.provider.SignUp(r.Context(), credentials.Name, credentials.Email, credentials.Password)
	if err != nil {
		if auth.KindOf(err) == auth.KindEmailInUse {
			sendJSONError(w, "Email address already in use", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to register user", "error", err)
		sendJSONError(w, "Failed to process registration", http.StatusInternalServerError)
		return
	}

	// Seed the profile document so the display name resolves without the
	// email fallback. A failure here is not fatal; the dashboard degrades
	// to the email local part.
	profile := models.Profile{
		Name:  credentials.Name,
		Email: credentials.Email,
	}
	data, _ := json.Marshal(profile)
	if _, err := h.store.Create(r.Context(), services.ProfilesCollection, sess.UserID, data); err != nil {
		logger.L.Error("Failed to create profile document for new user", "userID", sess.UserID, "error", err)
	}

	displayName := credentials.Name
	if displayName == "" {
		displayName = sess.LocalPart()
	}

	logger.L.Info("User registered", "userID", sess.UserID)
	sendJSON(w, http.StatusCreated, sessionResponse(sess, displayName))
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	logger.L.Debug("Login request received", "remoteAddr", r.RemoteAddr)

	var credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		logger.L.Warn("Invalid request body for login", "error", err)
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	credentials.Email = strings.ToLower(validation.SanitizeText(strings.TrimSpace(credentials.Email)))

	if err := validation.ValidateEmail(credentials.Email); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(credentials.Password); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.provider.SignIn(r.Context(), credentials.Email, credentials.Password)
	if err != nil {
		logger.L.Warn("Login attempt failed", "error", err)
		message, status := signInErrorMessage(err)
		sendJSONError(w, message, status)
		return
	}

	viewer := h.viewers.ResolveViewer(r.Context(), sess)

	logger.L.Info("User login successful, tokens generated", "userID", sess.UserID)
	sendJSON(w, http.StatusOK, sessionResponse(sess, viewer.DisplayName))
}

func (h *UserHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if requestBody.RefreshToken == "" {
		sendJSONError(w, "Refresh token is required", http.StatusBadRequest)
		return
	}

	sess, err := h.provider.Refresh(r.Context(), requestBody.RefreshToken)
	if err != nil {
		logger.L.Warn("Refresh token lookup failed or token invalid/expired", "error", err)
		sendJSONError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	logger.L.Info("Token refreshed successfully", "userID", sess.UserID)
	sendJSON(w, http.StatusOK, map[string]string{
		"access_token":  sess.AccessToken,
		"refresh_token": sess.RefreshToken,
	})
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	logger.L.Info("Logout request received")

	tokenString := bearerToken(r)
	if tokenString != "" {
		if err := h.provider.SignOut(r.Context(), tokenString); err != nil {
			logger.L.Warn("Failed to invalidate session on logout", "tokenPrefix", tokenString[:min(10, len(tokenString))], "error", err)
		} else {
			logger.L.Info("Session invalidated successfully on logout", "tokenPrefix", tokenString[:min(10, len(tokenString))])
		}
	} else {
		logger.L.Warn("Logout attempt with no token in Authorization header")
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) RequestPasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Email string `json:"email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	requestBody.Email = strings.ToLower(validation.SanitizeText(strings.TrimSpace(requestBody.Email)))
	if err := validation.ValidateEmail(requestBody.Email); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.provider.SendPasswordReset(r.Context(), requestBody.Email); err != nil {
		// The response never reveals whether the account exists; only
		// transport-level failures surface.
		if auth.KindOf(err) == auth.KindNetworkFailure {
			sendJSONError(w, "Failed to send reset email.", http.StatusServiceUnavailable)
			return
		}
		logger.L.Warn("Password reset request failed", "error", err)
	}

	sendJSON(w, http.StatusOK, map[string]string{
		"message": "If an account with that email exists, a password reset link has been sent.",
	})
}

func (h *UserHandler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if requestBody.Token == "" {
		sendJSONError(w, "Reset token is required", http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(strings.TrimSpace(requestBody.NewPassword)); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.provider.ResetPassword(r.Context(), requestBody.Token, strings.TrimSpace(requestBody.NewPassword)); err != nil {
		logger.L.Warn("Password reset failed", "error", err)
		sendJSONError(w, "Invalid or expired reset token.", http.StatusBadRequest)
		return
	}

	sendJSON(w, http.StatusOK, map[string]string{
		"message": "Password has been reset. You can now log in.",
	})
}

// HandleGetMe resolves the current viewer for the dashboard header.
func (h *UserHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	viewer := h.viewers.ResolveViewer(r.Context(), sess)
	if !viewer.Authenticated {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	sendJSON(w, http.StatusOK, viewer)
}

// HandleUpdateProfile sets the viewer's display name, creating the profile
// document on first use.
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r.Context())
	if sess == nil {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var requestBody struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	name := validation.SanitizeText(strings.TrimSpace(requestBody.Name))
	if err := validation.ValidateName(name); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile := models.Profile{
		Name:  name,
		Email: sess.Email,
	}
	data, err := json.Marshal(profile)
	if err != nil {
		sendJSONError(w, "Failed to save profile", http.StatusInternalServerError)
		return
	}

	existing, err := h.store.List(r.Context(), services.ProfilesCollection, store.Filter{OwnerID: sess.UserID})
	if err != nil {
		logger.L.Error("Failed to look up profile for update", "userID", sess.UserID, "error", err)
		sendJSONError(w, "Failed to save profile", http.StatusInternalServerError)
		return
	}

	if len(existing) > 0 {
		err = h.store.Update(r.Context(), services.ProfilesCollection, existing[0].ID, data)
	} else {
		_, err = h.store.Create(r.Context(), services.ProfilesCollection, sess.UserID, data)
	}
	if err != nil {
		logger.L.Error("Failed to save profile document", "userID", sess.UserID, "error", err)
		sendJSONError(w, "Failed to save profile", http.StatusInternalServerError)
		return
	}

	h.viewers.InvalidateProfile(sess.UserID)

	sendJSON(w, http.StatusOK, map[string]string{"displayName": name})
}
