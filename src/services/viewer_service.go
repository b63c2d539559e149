// backend/src/services/viewer_service.go
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/budgetwise/backend/src/auth"
	"github.com/username/budgetwise/backend/src/logger"
	"github.com/username/budgetwise/backend/src/models"
	"github.com/username/budgetwise/backend/src/store"
)

// ProfilesCollection is the document collection holding one profile per user.
const ProfilesCollection = "profiles"

// Viewer is the resolved identity shown in the app header. When
// Authenticated is false the remaining fields are zero.
type Viewer struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
}

// ViewerService resolves sessions to viewers, caching the profile lookup so
// every request does not hit the store.
type ViewerService struct {
	store    store.DocumentStore
	profiles *cache.Cache
}

func NewViewerService(st store.DocumentStore) *ViewerService {
	return &ViewerService{
		store:    st,
		profiles: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// ResolveViewer gates on the session. A nil session yields the
// unauthenticated viewer; otherwise the display name falls back through
// profile name, email local part, then "User".
func (s *ViewerService) ResolveViewer(ctx context.Context, sess *auth.Session) Viewer {
	if sess == nil {
		return Viewer{}
	}

	name := s.profileName(ctx, sess.UserID)
	if name == "" {
		name = sess.LocalPart()
	}
	if name == "" {
		name = "User"
	}

	return Viewer{
		Authenticated: true,
		UserID:        sess.UserID,
		Email:         sess.Email,
		DisplayName:   name,
	}
}

// InvalidateProfile drops a user's cached profile, forcing the next resolve
// to hit the store. Call after the profile document changes.
func (s *ViewerService) InvalidateProfile(userID string) {
	s.profiles.Delete(userID)
}

func (s *ViewerService) profileName(ctx context.Context, userID string) string {
	if cached, ok := s.profiles.Get(userID); ok {
		return cached.(string)
	}

	snap, err := s.store.List(ctx, ProfilesCollection, store.Filter{OwnerID: userID})
	if err != nil {
		// A missing or unreadable profile is not fatal; fall back to the
		// email-derived name without caching.
		logger.L.Warn("Failed to load profile for viewer", "userID", userID, "error", err)
		return ""
	}

	name := ""
	if len(snap) > 0 {
		var p models.Profile
		if err := json.Unmarshal(snap[0].Data, &p); err != nil {
			logger.L.Warn("Failed to decode profile document", "userID", userID, "error", err)
		} else {
			name = p.Name
		}
	}

	s.profiles.Set(userID, name, cache.DefaultExpiration)
	return name
}
