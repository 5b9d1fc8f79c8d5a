package blogs

import (
	"net/http"

	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/db"
	"github.com/kuitang/blogs-e2e/internal/obs"
	"github.com/kuitang/blogs-e2e/internal/ratelimit"
)

// AppConfig wires the complete application.
type AppConfig struct {
	Store *db.Store
	Codec *auth.SessionCodec
	// OIDC backs /auth/google. Nil leaves the login routes unregistered;
	// sessions can then only come from a shared-secret issuer.
	OIDC          auth.OIDCClient
	SecureCookies bool
	// RateLimit of zero RPS disables API rate limiting.
	RateLimit ratelimit.Config
}

// App is the assembled HTTP application.
type App struct {
	Handler http.Handler
	Service *Service
	limiter *ratelimit.RateLimiter
}

// NewApp registers the blog, auth and health routes on one mux, wrapped with
// request correlation and access logging.
func NewApp(cfg AppConfig) (*App, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	svc := NewService(cfg.Store)
	mw := auth.NewMiddleware(cfg.Codec)

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = ratelimit.NewRateLimiter(cfg.RateLimit)
	}

	mux := http.NewServeMux()
	NewHandler(svc, renderer, mw, limiter).RegisterRoutes(mux)
	auth.NewHandler(cfg.OIDC, cfg.Codec, svc, cfg.SecureCookies).RegisterRoutes(mux, mw)

	handler := obs.RequestContextMiddleware(obs.AccessLogMiddleware("http", mux))
	return &App{Handler: handler, Service: svc, limiter: limiter}, nil
}

// Close stops background work.
func (a *App) Close() {
	if a.limiter != nil {
		a.limiter.Stop()
	}
}
