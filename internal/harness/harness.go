// Package harness gives each go test its own page driver session, bounded by
// the configured test timeout and torn down on every exit path.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/blogs-e2e/internal/artifacts"
	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/config"
	"github.com/kuitang/blogs-e2e/internal/errs"
	"github.com/kuitang/blogs-e2e/internal/obs"
	"github.com/kuitang/blogs-e2e/internal/pagedriver"
)

// Env is the shared, read-only setup for a test binary.
type Env struct {
	Config *config.Harness
	Issuer auth.Issuer
	// Store receives failure artifacts. Nil disables capture.
	Store *artifacts.Store
}

// NewEnv builds the issuer and, when a bucket is configured, the artifact
// store for cfg. An empty RUN_ID is replaced by a random one so artifacts
// of concurrent runs never collide.
func NewEnv(ctx context.Context, cfg *config.Harness) (*Env, error) {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	issuer, err := NewIssuer(cfg)
	if err != nil {
		return nil, err
	}

	env := &Env{Config: cfg, Issuer: issuer}
	if cfg.Artifacts.Enabled() {
		store, err := artifacts.New(ctx, cfg.Artifacts)
		if err != nil {
			return nil, err
		}
		env.Store = store
	}
	return env, nil
}

// FromEnvironment loads harness configuration from environment variables and
// fails the test on invalid settings.
func FromEnvironment(t testing.TB) *Env {
	t.Helper()
	cfg, err := config.LoadHarness()
	if err != nil {
		t.Fatalf("harness config: %v", err)
	}
	env, err := NewEnv(context.Background(), cfg)
	if err != nil {
		t.Fatalf("harness env: %v", err)
	}
	return env
}

// NewIssuer picks the credential issuer named by LOGIN_MECHANISM.
func NewIssuer(cfg *config.Harness) (auth.Issuer, error) {
	switch cfg.LoginMechanism {
	case config.LoginMock, "":
		secure := strings.HasPrefix(cfg.BaseURL, "https://")
		return auth.NewTokenIssuer(cfg.SessionSecret, auth.DefaultSessionDuration, secure)
	case config.LoginOIDC:
		return &auth.OIDCIssuer{BaseURL: cfg.BaseURL, Timeout: cfg.BrowserTimeout}, nil
	default:
		return nil, fmt.Errorf("unknown login mechanism %q", cfg.LoginMechanism)
	}
}

// Identity is the configured test user.
func (e *Env) Identity() auth.Identity {
	id := e.Config.Identity
	return auth.Identity{UserID: id.UserID, Email: id.Email, Name: id.Name}
}

// Options returns page driver options for one session.
func (e *Env) Options() pagedriver.Options {
	return pagedriver.Options{
		BaseURL:  e.Config.BaseURL,
		Headless: e.Config.Headless,
		Timeout:  e.Config.BrowserTimeout,
		Browser:  e.Config.Browser,
	}
}

// Begin opens a session for t, loads the base URL and returns a context
// bounded by TEST_TIMEOUT. Teardown is registered with t.Cleanup: when t
// failed and a store is configured the page is captured first, then the
// session is closed.
//
// Begin skips t when no browser can be launched.
func (e *Env) Begin(t testing.TB) (context.Context, *pagedriver.Session) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), e.Config.TestTimeout)
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: e.Config.RunID, Test: t.Name()})

	s, err := pagedriver.Open(ctx, e.Options())
	if err != nil {
		cancel()
		if errs.Is(err, errs.Launch) {
			t.Skip("Playwright not available:", err)
		}
		t.Fatalf("open session: %v", err)
	}

	t.Cleanup(func() {
		defer cancel()
		if t.Failed() && e.Store != nil {
			e.capture(t, s)
		}
		if err := s.Close(); err != nil {
			t.Errorf("close session: %v", err)
		}
	})

	if err := s.Navigate(ctx, "/"); err != nil {
		t.Fatalf("load base URL: %v", err)
	}
	return ctx, s
}

// Login signs s in as the configured identity and opens redirectPath.
func (e *Env) Login(ctx context.Context, s *pagedriver.Session, redirectPath string) error {
	return s.Login(ctx, e.Issuer, e.Identity(), redirectPath)
}

func (e *Env) capture(t testing.TB, s *pagedriver.Session) {
	// The test context may already be past its deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 2*e.Config.BrowserTimeout+5*time.Second)
	defer cancel()
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: e.Config.RunID, Test: t.Name(), SessionID: s.ID()})

	prefix := artifacts.Prefix(e.Config.RunID, t.Name())
	keys, err := artifacts.Capture(ctx, e.Store, s, prefix)
	for _, key := range keys {
		t.Logf("artifact: s3://%s/%s", e.Store.BucketName(), key)
	}
	if err != nil {
		obs.From(ctx).Warn("artifact_capture_incomplete", "prefix", prefix, "error", err)
		if len(keys) == 0 && !errors.Is(err, context.DeadlineExceeded) {
			t.Logf("artifact capture failed: %v", err)
		}
	}
}
