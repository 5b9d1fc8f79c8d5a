// Package e2e exercises the blogs API authorization rules over HTTP, using
// the credential issuers and the request executor without a browser.
package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/blogs"
	"github.com/kuitang/blogs-e2e/internal/db"
	"github.com/kuitang/blogs-e2e/internal/pagedriver"
	"github.com/kuitang/blogs-e2e/internal/ratelimit"
)

const e2eSecret = "e2e-test-session-secret-32-bytes"

type apiFixture struct {
	server   *httptest.Server
	provider *auth.MockProvider
}

func setupAPIFixture(t *testing.T, limit ratelimit.Config) *apiFixture {
	t.Helper()

	store, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	codec, err := auth.NewSessionCodec(e2eSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create codec: %v", err)
	}

	provider, err := auth.StartMockProvider()
	if err != nil {
		t.Fatalf("Failed to start mock OIDC: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown() })

	var handler http.Handler = http.NotFoundHandler()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	oidcClient, err := provider.Client(context.Background(), server.URL+"/auth/google/callback")
	if err != nil {
		t.Fatalf("Failed to create OIDC client: %v", err)
	}
	app, err := blogs.NewApp(blogs.AppConfig{Store: store, Codec: codec, OIDC: oidcClient, RateLimit: limit})
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	t.Cleanup(app.Close)
	handler = app.Handler

	return &apiFixture{server: server, provider: provider}
}

// credentialJar presents an issued credential the way a browser context
// would, so the executor can be driven without Playwright.
type credentialJar struct {
	cred *auth.Credential
}

func (j credentialJar) Cookies(...string) ([]playwright.Cookie, error) {
	if j.cred == nil {
		return nil, nil
	}
	out := make([]playwright.Cookie, 0, len(j.cred.Cookies))
	for _, c := range j.cred.Cookies {
		out = append(out, playwright.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	return out, nil
}

func (fx *apiFixture) executor(cred *auth.Credential) *pagedriver.Executor {
	return &pagedriver.Executor{
		BaseURL: fx.server.URL,
		Client:  fx.server.Client(),
		Cookies: credentialJar{cred: cred},
		Timeout: 5 * time.Second,
	}
}

func (fx *apiFixture) oidcLogin(t *testing.T, id auth.Identity) *auth.Credential {
	t.Helper()
	issuer := &auth.OIDCIssuer{BaseURL: fx.server.URL, Prepare: fx.provider.QueueIdentity, Timeout: 5 * time.Second}
	cred, err := issuer.Issue(context.Background(), id)
	if err != nil {
		t.Fatalf("OIDC login failed: %v", err)
	}
	return cred
}

func tokenLogin(t *testing.T, id auth.Identity) *auth.Credential {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(e2eSecret, time.Hour, false)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	cred, err := issuer.Issue(context.Background(), id)
	if err != nil {
		t.Fatalf("token login failed: %v", err)
	}
	return cred
}
