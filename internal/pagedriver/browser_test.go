package pagedriver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/errs"
)

const testSecret = "test-session-secret-32-bytes-long"

const fixturePage = `<!doctype html>
<html><body>
<h1>  Blogster!  </h1>
<form id="f" onsubmit="event.preventDefault(); document.getElementById('out').textContent = document.getElementById('title').value;">
  <input id="title" name="title">
  <button id="go" type="submit">Go</button>
</form>
<div id="out"></div>
<button id="later" onclick="setTimeout(function(){var d=document.createElement('div');d.className='late';d.textContent='arrived';document.body.appendChild(d);}, 200)">Later</button>
<a id="next" href="/next">Next</a>
</body></html>`

// newFixtureServer serves a small page plus a session-protected JSON route.
func newFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	codec, err := auth.NewSessionCodec(testSecret, time.Hour)
	require.NoError(t, err)
	mw := auth.NewMiddleware(codec)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fixturePage))
	})
	mux.HandleFunc("GET /next", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><h2 id="who">next page</h2></body></html>`))
	})
	mux.Handle("GET /api/me", mw.RequireLogin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": auth.GetUserID(r.Context())})
	})))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func openTestSession(t *testing.T, baseURL string) *Session {
	t.Helper()
	s, err := Open(context.Background(), Options{BaseURL: baseURL, Headless: true, Timeout: 3 * time.Second})
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBrowser_NavigateAndReadText(t *testing.T) {
	srv := newFixtureServer(t)
	s := openTestSession(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, "/"))
	text, err := s.GetText(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, "Blogster!", text)

	require.NoError(t, s.Click(ctx, "#next"))
	text, err = s.GetText(ctx, "#who")
	require.NoError(t, err)
	require.Equal(t, "next page", text)
	require.Equal(t, srv.URL+"/next", s.URL())
}

func TestBrowser_TypeTextAppends(t *testing.T) {
	srv := newFixtureServer(t)
	s := openTestSession(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, ""))
	require.NoError(t, s.TypeText(ctx, "#title", "Hello"))
	require.NoError(t, s.TypeText(ctx, "#title", " world"))
	require.NoError(t, s.Click(ctx, "#go"))

	text, err := s.GetText(ctx, "#out")
	require.NoError(t, err)
	require.Equal(t, "Hello world", text)
}

func TestBrowser_WaitForSelectorWaitsForLateElements(t *testing.T) {
	srv := newFixtureServer(t)
	s := openTestSession(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, "/"))
	require.NoError(t, s.Click(ctx, "#later"))
	require.NoError(t, s.WaitForSelector(ctx, ".late"))

	text, err := s.GetText(ctx, ".late")
	require.NoError(t, err)
	require.Equal(t, "arrived", text)
}

func TestBrowser_MissingElements(t *testing.T) {
	srv := newFixtureServer(t)
	s := openTestSession(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "/"))

	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	err := s.Click(short, "button.green")
	require.True(t, errs.Is(err, errs.ElementNotFound) || errs.Is(err, errs.Timeout), "got %v", err)

	short2, cancel2 := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel2()
	err = s.WaitForSelector(short2, ".never")
	require.True(t, errs.Is(err, errs.Timeout), "got %v", err)
}

func TestBrowser_NavigationFailure(t *testing.T) {
	srv := newFixtureServer(t)
	s := openTestSession(t, srv.URL)

	err := s.Navigate(context.Background(), "http://127.0.0.1:1/")
	require.True(t, errs.Is(err, errs.Navigation), "got %v", err)
}

func TestBrowser_LoginBridgesCookiesToRequests(t *testing.T) {
	srv := newFixtureServer(t)
	s := openTestSession(t, srv.URL)
	ctx := context.Background()

	_, err := s.ExecRequests(ctx, []ActionRequest{{Method: "get", Path: "/api/me"}})
	require.True(t, errs.Is(err, errs.RequestExecution), "requests before any page load must fail")

	issuer, err := auth.NewTokenIssuer(testSecret, time.Hour, false)
	require.NoError(t, err)
	require.NoError(t, s.Login(ctx, issuer, auth.Identity{UserID: "alice", Email: "alice@example.com"}, "next"))
	require.Equal(t, srv.URL+"/next", s.URL())

	results, err := s.ExecRequests(ctx, []ActionRequest{{Method: "GET", Path: "/api/me"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, results[0].Status)
	require.Equal(t, map[string]any{"id": "alice"}, results[0].Body)
}

func TestBrowser_ArtifactsAndClose(t *testing.T) {
	srv := newFixtureServer(t)
	s := openTestSession(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "/"))

	png, err := s.Screenshot(ctx)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	require.Equal(t, "\x89PNG", string(png[:4]))

	html, err := s.Content(ctx)
	require.NoError(t, err)
	require.Contains(t, html, "Blogster!")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.True(t, s.Closed())
	require.True(t, errs.Is(s.Navigate(ctx, "/"), errs.Navigation))
}

func TestWith_ClosesSession(t *testing.T) {
	srv := newFixtureServer(t)
	var opened *Session
	err := With(context.Background(), Options{BaseURL: srv.URL, Headless: true}, func(ctx context.Context, s *Session) error {
		opened = s
		return s.Navigate(ctx, "/")
	})
	if opened == nil {
		t.Skip("Playwright not available:", err)
	}
	require.NoError(t, err)
	require.True(t, opened.Closed())
}
