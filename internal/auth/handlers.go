package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/kuitang/blogs-e2e/internal/obs"
)

const stateCookieName = "oauth_state"

// UserStore records users that complete a login.
type UserStore interface {
	UpsertUser(ctx context.Context, id Identity) error
}

// Handler provides HTTP handlers for authentication routes.
type Handler struct {
	oidcClient OIDCClient
	codec      *SessionCodec
	users      UserStore
	secure     bool
}

// NewHandler creates a new auth handler. secure controls the Secure flag on
// cookies and must be false for plain-HTTP deployments.
func NewHandler(oidcClient OIDCClient, codec *SessionCodec, users UserStore, secure bool) *Handler {
	return &Handler{
		oidcClient: oidcClient,
		codec:      codec,
		users:      users,
		secure:     secure,
	}
}

// RegisterRoutes registers all auth routes on the given mux. mw wraps the
// current-user endpoint so it sees the session. The login routes are only
// registered when an OIDC client is configured.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, mw *Middleware) {
	if h.oidcClient != nil {
		mux.HandleFunc("GET /auth/google", h.HandleLogin)
		mux.HandleFunc("GET /auth/google/callback", h.HandleCallback)
	}
	mux.Handle("GET /api/current_user", mw.OptionalAuth(http.HandlerFunc(h.HandleCurrentUser)))
	mux.HandleFunc("GET /api/logout", h.HandleLogout)
}

// HandleLogin redirects to the OIDC provider.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})

	http.Redirect(w, r, h.oidcClient.GetAuthURL(state), http.StatusFound)
}

// HandleCallback completes the login, sets the session cookie and sends the
// user to the blogs list.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	logger := obs.From(r.Context())

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		http.Error(w, ErrInvalidState.Error(), http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		http.Error(w, "Authentication failed: "+errParam, http.StatusUnauthorized)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	claims, err := h.oidcClient.ExchangeCode(r.Context(), code)
	if err != nil {
		logger.Warn("oidc_exchange_failed", "error", err)
		http.Error(w, "Failed to exchange code", http.StatusInternalServerError)
		return
	}

	id := Identity{UserID: claims.Sub, Email: claims.Email, Name: claims.Name}
	if h.users != nil {
		if err := h.users.UpsertUser(r.Context(), id); err != nil {
			logger.Error("user_upsert_failed", "error", err)
			http.Error(w, "Failed to record user", http.StatusInternalServerError)
			return
		}
	}

	token, err := h.codec.Sign(id)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, NewSessionCookie(token, h.codec.TTL(), h.secure))

	logger.Info("login_completed", "user_id", id.UserID)
	http.Redirect(w, r, "/blogs", http.StatusFound)
}

// HandleCurrentUser returns the signed-in identity, or JSON null.
func (h *Handler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, ok := UserFromContext(r.Context())
	if !ok {
		w.Write([]byte("null\n"))
		return
	}
	json.NewEncoder(w).Encode(id)
}

// HandleLogout clears the session and returns to the landing page.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearCookie(w, h.secure)
	http.Redirect(w, r, "/", http.StatusFound)
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
