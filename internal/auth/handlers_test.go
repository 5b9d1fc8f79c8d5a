package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]Identity
}

func (m *memoryUsers) UpsertUser(_ context.Context, id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		m.users = make(map[string]Identity)
	}
	m.users[id.UserID] = id
	return nil
}

type loginFixture struct {
	server   *httptest.Server
	provider *MockProvider
	codec    *SessionCodec
	users    *memoryUsers
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()

	provider, err := StartMockProvider()
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown() })

	codec := newTestCodec(t)
	users := &memoryUsers{}
	mw := NewMiddleware(codec)

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := provider.Client(t.Context(), server.URL+"/auth/google/callback")
	require.NoError(t, err)

	NewHandler(client, codec, users, false).RegisterRoutes(mux, mw)
	mux.Handle("GET /api/blogs", mw.RequireLogin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"user": GetUserID(r.Context())})
	})))
	mux.HandleFunc("GET /blogs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>blogs</body></html>"))
	})

	return &loginFixture{server: server, provider: provider, codec: codec, users: users}
}

func TestRequireLogin_RejectsWithJSONError(t *testing.T) {
	t.Parallel()
	mw := NewMiddleware(newTestCodec(t))
	handler := mw.RequireLogin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a session")
	}))

	for _, cookie := range []*http.Cookie{nil, {Name: SessionCookieName, Value: "forged"}} {
		req := httptest.NewRequest(http.MethodPost, "/api/blogs", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"error":"You must log in!"}`, rec.Body.String())
	}
}

func TestRequireLogin_PassesIdentityThrough(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t)
	token, err := codec.Sign(Identity{UserID: "u1", Email: "u1@example.com"})
	require.NoError(t, err)

	var got Identity
	handler := NewMiddleware(codec).RequireLogin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/blogs", nil)
	req.AddCookie(NewSessionCookie(token, time.Hour, false))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u1", got.UserID)
	require.Equal(t, "u1", UserIDFromRequest(req.WithContext(WithUser(req.Context(), got))))
}

func TestOIDCIssuer_WalksRedirectChain(t *testing.T) {
	t.Parallel()
	fx := newLoginFixture(t)

	issuer := &OIDCIssuer{BaseURL: fx.server.URL, Prepare: fx.provider.QueueIdentity}
	id := Identity{UserID: "oidc-user-1", Email: "oidc@example.com", Name: "oidc"}

	cred, err := issuer.Issue(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, MechanismOIDC, cred.Mechanism)
	assert.Equal(t, "oidc-user-1", cred.UserID)
	require.Len(t, cred.Cookies, 1)
	assert.Equal(t, SessionCookieName, cred.Cookies[0].Name)

	claims, err := fx.codec.Verify(cred.Cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "oidc@example.com", claims.Email)
	assert.Contains(t, fx.users.users, "oidc-user-1")

	req, err := http.NewRequest(http.MethodGet, fx.server.URL+"/api/blogs", nil)
	require.NoError(t, err)
	req.AddCookie(cred.Cookies[0])
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOIDCIssuer_FailsWhenChainSetsNoSession(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	_, err := (&OIDCIssuer{BaseURL: server.URL}).Issue(t.Context(), Identity{UserID: "u"})
	require.Error(t, err)
}

func TestHandleCallback_RejectsStateMismatch(t *testing.T) {
	t.Parallel()
	h := NewHandler(nil, newTestCodec(t), nil, false)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=a&code=c", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "b"})
	rec := httptest.NewRecorder()
	h.HandleCallback(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCurrentUser_NullWithoutSession(t *testing.T) {
	t.Parallel()
	h := NewHandler(nil, newTestCodec(t), nil, false)
	rec := httptest.NewRecorder()
	h.HandleCurrentUser(rec, httptest.NewRequest(http.MethodGet, "/api/current_user", nil))
	require.JSONEq(t, "null", rec.Body.String())
}

func TestHandleLogout_ClearsSession(t *testing.T) {
	t.Parallel()
	h := NewHandler(nil, newTestCodec(t), nil, false)
	rec := httptest.NewRecorder()
	h.HandleLogout(rec, httptest.NewRequest(http.MethodGet, "/api/logout", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	require.Contains(t, rec.Header().Get("Set-Cookie"), SessionCookieName+"=;")
}
