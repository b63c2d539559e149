// backend/src/handlers/middleware.go
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/username/budgetwise/backend/src/auth"
	"github.com/username/budgetwise/backend/src/logger"
)

type contextKey string

const (
	requestIDContextKey contextKey = "requestID"
	sessionContextKey   contextKey = "session"
)

// ContextualLoggerMiddleware attaches a per-request logger carrying a fresh
// requestID to the request context.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		ctxLogger := logger.L.With(slog.String("requestID", requestID))

		ctx := logger.ToContext(r.Context(), ctxLogger)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the access token from the Authorization header. A bare
// token without the Bearer prefix is accepted too.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return authHeader
}

// AuthMiddleware resolves the bearer token to a session and injects it into
// the context. Requests without a valid session are rejected.
func (h *UserHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger := logger.FromContext(r.Context())

		tokenString := bearerToken(r)
		if tokenString == "" {
			ctxLogger.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
			sendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		sess, err := h.provider.CurrentSession(r.Context(), tokenString)
		if err != nil {
			ctxLogger.Warn("AuthMiddleware: session resolution failed", "path", r.URL.Path, "error", err)
			switch auth.KindOf(err) {
			case auth.KindDisabledAccount:
				sendJSONError(w, "This account has been disabled.", http.StatusForbidden)
			default:
				sendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			}
			return
		}

		enrichedLogger := ctxLogger.With(slog.String("userID", sess.UserID))
		ctx := logger.ToContext(r.Context(), enrichedLogger)
		ctx = context.WithValue(ctx, sessionContextKey, sess)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionFromContext returns the authenticated session placed by
// AuthMiddleware, or nil for unauthenticated requests.
func GetSessionFromContext(ctx context.Context) *auth.Session {
	sess, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return sess
}
