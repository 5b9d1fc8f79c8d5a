package blogs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/db"
	"github.com/kuitang/blogs-e2e/internal/ratelimit"
)

const testSecret = "test-session-secret-32-bytes-long"

type appFixture struct {
	mux   *http.ServeMux
	codec *auth.SessionCodec
}

func newAppFixture(t *testing.T, limiter *ratelimit.RateLimiter) *appFixture {
	t.Helper()

	store, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	codec, err := auth.NewSessionCodec(testSecret, time.Hour)
	require.NoError(t, err)
	renderer, err := NewRenderer()
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewHandler(NewService(store), renderer, auth.NewMiddleware(codec), limiter).RegisterRoutes(mux)
	return &appFixture{mux: mux, codec: codec}
}

func (fx *appFixture) do(t *testing.T, method, target, body string, user *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != nil {
		token, err := fx.codec.Sign(*user)
		require.NoError(t, err)
		req.AddCookie(auth.NewSessionCookie(token, time.Hour, false))
	}
	rec := httptest.NewRecorder()
	fx.mux.ServeHTTP(rec, req)
	return rec
}

func parseHTML(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	return doc
}

var alice = &auth.Identity{UserID: "alice", Email: "alice@example.com", Name: "Alice"}

func TestLandingPage_ShowsLoginWhenAnonymous(t *testing.T) {
	t.Parallel()
	fx := newAppFixture(t, nil)

	doc := parseHTML(t, fx.do(t, http.MethodGet, "/", "", nil))
	assert.Equal(t, 1, doc.Find(`a[href="/auth/google"]`).Length())
	assert.Equal(t, 0, doc.Find(`a[href="/api/logout"]`).Length())
	assert.Equal(t, "Blogster!", doc.Find("h1").Text())

	doc = parseHTML(t, fx.do(t, http.MethodGet, "/", "", alice))
	assert.Equal(t, 1, doc.Find(`a[href="/api/logout"]`).Length())
}

func TestListPage_CreateButtonOnlyWhenLoggedIn(t *testing.T) {
	t.Parallel()
	fx := newAppFixture(t, nil)

	doc := parseHTML(t, fx.do(t, http.MethodGet, "/blogs", "", alice))
	assert.Equal(t, "add", strings.TrimSpace(doc.Find(`a[href="/blogs/new"] i.material-icons`).Text()))
	assert.Equal(t, 1, doc.Find("#blog-list").Length())
	assert.Equal(t, 0, doc.Find(".card").Length(), "cards are rendered client-side")

	doc = parseHTML(t, fx.do(t, http.MethodGet, "/blogs", "", nil))
	assert.Equal(t, 0, doc.Find(`a[href="/blogs/new"]`).Length())
}

func TestNewPage_FormStructure(t *testing.T) {
	t.Parallel()
	fx := newAppFixture(t, nil)

	doc := parseHTML(t, fx.do(t, http.MethodGet, "/blogs/new", "", alice))
	assert.Equal(t, "Blog Title", strings.TrimSpace(doc.Find("form .title label").First().Text()))
	assert.Equal(t, 1, doc.Find("form .title input").Length())
	assert.Equal(t, 1, doc.Find("form .content input").Length())
	assert.Equal(t, 1, doc.Find(`form button[type="submit"]`).Length())
	assert.Equal(t, 0, doc.Find(".red-text").Length(), "errors appear only after a failed submit")

	rec := fx.do(t, http.MethodGet, "/blogs/new", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestAPI_RejectsAnonymousCalls(t *testing.T) {
	t.Parallel()
	fx := newAppFixture(t, nil)

	for _, tc := range []struct{ method, body string }{
		{http.MethodGet, ""},
		{http.MethodPost, `{"title":"Sneaky Title","content":"Sneaky Body"}`},
	} {
		rec := fx.do(t, tc.method, "/api/blogs", tc.body, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"You must log in!"}`, rec.Body.String())
	}
}

func TestAPI_CreateThenListInOrder(t *testing.T) {
	t.Parallel()
	fx := newAppFixture(t, nil)

	titles := []string{"first", "second", "third"}
	for _, title := range titles {
		rec := fx.do(t, http.MethodPost, "/api/blogs", `{"title":"`+title+`","content":"body of `+title+`"}`, alice)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := fx.do(t, http.MethodGet, "/api/blogs", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []Blog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	for i, b := range got {
		assert.Equal(t, titles[i], b.Title)
		assert.Equal(t, "<p>body of "+titles[i]+"</p>", string(b.ContentHTML))
	}

	one := fx.do(t, http.MethodGet, "/api/blogs/"+got[0].ID, "", alice)
	assert.Equal(t, http.StatusOK, one.Code)

	bob := &auth.Identity{UserID: "bob"}
	assert.Equal(t, http.StatusNotFound, fx.do(t, http.MethodGet, "/api/blogs/"+got[0].ID, "", bob).Code)

	show := parseHTML(t, fx.do(t, http.MethodGet, "/blogs/"+got[0].ID, "", alice))
	assert.Equal(t, "first", show.Find("article h3").Text())
}

func TestAPI_ValidationErrors(t *testing.T) {
	t.Parallel()
	fx := newAppFixture(t, nil)

	rec := fx.do(t, http.MethodPost, "/api/blogs", `{"title":"  ","content":"x"}`, alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"You must provide a value"}`, rec.Body.String())

	rec = fx.do(t, http.MethodPost, "/api/blogs", `not json`, alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RateLimitedPerUser(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.NewRateLimiter(ratelimit.Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	t.Cleanup(limiter.Stop)
	fx := newAppFixture(t, limiter)

	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodGet, "/api/blogs", "", alice).Code)
	rec := fx.do(t, http.MethodGet, "/api/blogs", "", alice)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Anonymous calls still get the login error, not a 429.
	assert.Equal(t, http.StatusUnauthorized, fx.do(t, http.MethodGet, "/api/blogs", "", nil).Code)
}

func TestHealthAndStatic(t *testing.T) {
	t.Parallel()
	fx := newAppFixture(t, nil)

	rec := fx.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = fx.do(t, http.MethodGet, "/static/app.js", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You must provide a value")
}
