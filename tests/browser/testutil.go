// Package browser contains the Playwright scenarios for the blogs UI. Each
// test opens its own page driver session against an in-process blogs server.
//
// Prerequisites:
// - Install Playwright browsers: go run github.com/playwright-community/playwright-go/cmd/playwright install chromium
// - Run tests with: go test -v ./tests/browser/...
//
// Tests skip when no browser can be launched.
package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/kuitang/blogs-e2e/internal/artifacts"
	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/blogs"
	"github.com/kuitang/blogs-e2e/internal/config"
	"github.com/kuitang/blogs-e2e/internal/db"
	"github.com/kuitang/blogs-e2e/internal/harness"
)

const (
	browserTestSecret     = "browser-test-session-secret-32b"
	browserTestBucketName = "e2e-artifacts"
)

// BrowserTestEnv is a blogs server with mock OIDC and an in-memory artifact
// bucket, plus the harness settings pointing at it.
type BrowserTestEnv struct {
	Server    *httptest.Server
	BaseURL   string
	Store     *db.Store
	MockOIDC  *auth.MockProvider
	Artifacts *artifacts.Store
	*harness.Env
}

// SetupBrowserTestEnv starts a fresh server for t. LOGIN_MECHANISM=oidc makes
// logins go through the mock provider instead of a locally signed cookie.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	store, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	codec, err := auth.NewSessionCodec(browserTestSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create session codec: %v", err)
	}

	provider, err := auth.StartMockProvider()
	if err != nil {
		t.Fatalf("Failed to start mock OIDC: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown() })

	// The OIDC redirect URL depends on the server address, so the handler is
	// installed after the server starts.
	var handler http.Handler = http.NotFoundHandler()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	oidcClient, err := provider.Client(context.Background(), server.URL+"/auth/google/callback")
	if err != nil {
		t.Fatalf("Failed to create OIDC client: %v", err)
	}
	app, err := blogs.NewApp(blogs.AppConfig{Store: store, Codec: codec, OIDC: oidcClient})
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	t.Cleanup(app.Close)
	handler = app.Handler

	cfg := &config.Harness{
		BaseURL:        server.URL,
		Headless:       os.Getenv("HEADLESS") != "false",
		Browser:        "chromium",
		BrowserTimeout: 5 * time.Second,
		TestTimeout:    30 * time.Second,
		SessionSecret:  browserTestSecret,
		LoginMechanism: config.LoginMock,
		RunID:          "browser-tests",
		Identity:       config.Identity{UserID: "e2e-user", Email: "e2e-user@example.com", Name: "E2E User"},
	}
	if b := os.Getenv("BROWSER"); b != "" {
		cfg.Browser = b
	}
	if os.Getenv("LOGIN_MECHANISM") == config.LoginOIDC {
		cfg.LoginMechanism = config.LoginOIDC
	}

	hEnv, err := harness.NewEnv(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create harness env: %v", err)
	}
	if oidcIssuer, ok := hEnv.Issuer.(*auth.OIDCIssuer); ok {
		oidcIssuer.Prepare = provider.QueueIdentity
	}
	hEnv.Store = artifacts.TestStore(t, browserTestBucketName)

	return &BrowserTestEnv{
		Server:    server,
		BaseURL:   server.URL,
		Store:     store,
		MockOIDC:  provider,
		Artifacts: hEnv.Store,
		Env:       hEnv,
	}
}
