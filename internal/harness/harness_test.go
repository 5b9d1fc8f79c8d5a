package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/config"
)

func testConfig() *config.Harness {
	return &config.Harness{
		BaseURL:        "http://localhost:3000",
		Headless:       true,
		Browser:        "chromium",
		BrowserTimeout: 2 * time.Second,
		TestTimeout:    10 * time.Second,
		SessionSecret:  "test-session-secret-32-bytes-long",
		LoginMechanism: config.LoginMock,
		Identity:       config.Identity{UserID: "e2e-user", Email: "e2e@example.com", Name: "E2E"},
	}
}

func TestNewEnv_MockIssuer(t *testing.T) {
	cfg := testConfig()
	env, err := NewEnv(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.RunID, "empty RUN_ID is replaced")
	require.Nil(t, env.Store)

	cred, err := env.Issuer.Issue(context.Background(), env.Identity())
	require.NoError(t, err)
	require.Equal(t, auth.MechanismMock, cred.Mechanism)
	require.Equal(t, "e2e-user", cred.UserID)
	require.Len(t, cred.Cookies, 1)
	require.False(t, cred.Cookies[0].Secure)
}

func TestNewIssuer_Selection(t *testing.T) {
	cfg := testConfig()
	cfg.LoginMechanism = config.LoginOIDC
	issuer, err := NewIssuer(cfg)
	require.NoError(t, err)
	oidc, ok := issuer.(*auth.OIDCIssuer)
	require.True(t, ok)
	require.Equal(t, cfg.BaseURL, oidc.BaseURL)

	cfg.LoginMechanism = "saml"
	_, err = NewIssuer(cfg)
	require.Error(t, err)

	cfg.LoginMechanism = config.LoginMock
	cfg.SessionSecret = "short"
	_, err = NewIssuer(cfg)
	require.Error(t, err)
}

func TestEnv_Options(t *testing.T) {
	env := &Env{Config: testConfig()}
	opts := env.Options()
	require.Equal(t, "http://localhost:3000", opts.BaseURL)
	require.Equal(t, 2*time.Second, opts.Timeout)
	require.True(t, opts.Headless)
}
