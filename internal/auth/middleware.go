package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kuitang/blogs-e2e/internal/obs"
)

// LoginRequiredMessage is the API error body for unauthenticated calls.
const LoginRequiredMessage = "You must log in!"

type contextKey string

const userKey contextKey = "user"

// Middleware provides authentication middleware for HTTP handlers.
type Middleware struct {
	codec *SessionCodec
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(codec *SessionCodec) *Middleware {
	return &Middleware{codec: codec}
}

// RequireLogin rejects requests without a valid session with 401 and the JSON
// body {"error":"You must log in!"}.
func (m *Middleware) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.identify(r)
		if err != nil {
			obs.From(r.Context()).Debug("auth_rejected", "path", r.URL.Path, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": LoginRequiredMessage})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), id)))
	})
}

// OptionalAuth adds the user to the context when a valid session is present.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.identify(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), id)))
	})
}

func (m *Middleware) identify(r *http.Request) (Identity, error) {
	token, err := GetFromRequest(r)
	if err != nil {
		return Identity{}, err
	}
	claims, err := m.codec.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	return claims.Identity(), nil
}

// WithUser stores the authenticated identity in ctx.
func WithUser(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, userKey, id)
}

// UserFromContext returns the authenticated identity, if any.
func UserFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(userKey).(Identity)
	return id, ok && id.UserID != ""
}

// GetUserID returns the authenticated user id or "".
func GetUserID(ctx context.Context) string {
	id, _ := UserFromContext(ctx)
	return id.UserID
}

// UserIDFromRequest adapts GetUserID for per-user middleware such as the rate
// limiter.
func UserIDFromRequest(r *http.Request) string {
	return GetUserID(r.Context())
}
