// Package config loads configuration for the E2E harness and for the fixture
// blogs server from environment variables and CLI flags, validates required
// fields, and provides defaults.
//
// The harness reads only environment variables so `go test` needs no flags.
// The server additionally accepts --addr and --mock-oidc.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/blogs-e2e/internal/ratelimit"
	"github.com/kuitang/blogs-e2e/internal/urlutil"
)

// Login mechanisms accepted by LOGIN_MECHANISM.
const (
	LoginMock = "mock"
	LoginOIDC = "oidc"
)

const (
	defaultBaseURL        = "http://localhost:3000"
	defaultBrowserTimeout = 5 * time.Second
	defaultTestTimeout    = 30 * time.Second
	minSessionSecretLen   = 16
)

// Identity is the configured user the login shortcut signs in as.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Artifacts configures where failure screenshots are uploaded. Empty Bucket
// disables uploads.
type Artifacts struct {
	Bucket          string // ARTIFACT_BUCKET
	Endpoint        string // AWS_ENDPOINT_URL_S3
	Region          string // AWS_REGION
	AccessKeyID     string // AWS_ACCESS_KEY_ID
	SecretAccessKey string // AWS_SECRET_ACCESS_KEY
	UsePathStyle    bool   // ARTIFACT_PATH_STYLE
}

// Enabled reports whether artifact upload is configured.
func (a Artifacts) Enabled() bool {
	return a.Bucket != ""
}

// Harness holds the configuration of the page driver and test wiring.
type Harness struct {
	BaseURL        string
	Headless       bool
	Browser        string
	BrowserTimeout time.Duration // bound of each browser suspend point
	TestTimeout    time.Duration // bound of a whole test
	SessionSecret  string
	LoginMechanism string
	Identity       Identity
	RunID          string
	LogLevel       string
	Artifacts      Artifacts
}

// Server holds the configuration of the fixture blogs application.
type Server struct {
	ListenAddr      string
	BaseURL         string
	DatabasePath    string
	DatabaseKey     string // optional SQLCipher key, 64 hex chars
	SessionSecret   string
	SessionDuration time.Duration
	SecureCookies   bool
	LogLevel        string

	MockOIDC         bool // start an in-process mockoidc provider (--mock-oidc)
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string

	RateLimitConfig ratelimit.Config
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadHarness loads harness configuration from the environment.
func LoadHarness() (*Harness, error) {
	cfg := &Harness{}

	cfg.BaseURL = urlutil.NormalizeBaseURL(getEnvOrDefault("BASE_URL", defaultBaseURL))
	cfg.Headless = !strings.EqualFold(strings.TrimSpace(os.Getenv("HEADLESS")), "false")
	cfg.Browser = strings.ToLower(getEnvOrDefault("BROWSER", "chromium"))
	cfg.BrowserTimeout = parseDurationOrDefault("BROWSER_TIMEOUT", defaultBrowserTimeout)
	cfg.TestTimeout = parseDurationOrDefault("TEST_TIMEOUT", defaultTestTimeout)
	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	cfg.LoginMechanism = strings.ToLower(getEnvOrDefault("LOGIN_MECHANISM", LoginMock))
	cfg.RunID = strings.TrimSpace(os.Getenv("RUN_ID"))
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.Identity = Identity{
		UserID: getEnvOrDefault("E2E_USER_ID", "e2e-user"),
		Email:  getEnvOrDefault("E2E_USER_EMAIL", "e2e-user@example.com"),
		Name:   getEnvOrDefault("E2E_USER_NAME", "E2E User"),
	}

	cfg.Artifacts = Artifacts{
		Bucket:          strings.TrimSpace(os.Getenv("ARTIFACT_BUCKET")),
		Endpoint:        strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3")),
		Region:          getEnvOrDefault("AWS_REGION", "us-east-1"),
		AccessKeyID:     strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")),
		UsePathStyle:    parseBoolOrDefault("ARTIFACT_PATH_STYLE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks harness configuration.
func (c *Harness) Validate() error {
	var errs []string

	if _, err := urlutil.ParseBase(c.BaseURL); err != nil {
		errs = append(errs, "BASE_URL must be an http(s) URL")
	}
	switch c.Browser {
	case "chromium", "firefox", "webkit":
	default:
		errs = append(errs, "BROWSER must be one of chromium, firefox, webkit")
	}
	if c.BrowserTimeout <= 0 {
		errs = append(errs, "BROWSER_TIMEOUT must be positive")
	}
	if c.TestTimeout < c.BrowserTimeout {
		errs = append(errs, "TEST_TIMEOUT must not be shorter than BROWSER_TIMEOUT")
	}
	switch c.LoginMechanism {
	case LoginMock:
		if len(c.SessionSecret) < minSessionSecretLen {
			errs = append(errs, fmt.Sprintf("SESSION_SECRET must be at least %d characters for LOGIN_MECHANISM=mock", minSessionSecretLen))
		}
	case LoginOIDC:
	default:
		errs = append(errs, "LOGIN_MECHANISM must be mock or oidc")
	}
	if c.Identity.UserID == "" {
		errs = append(errs, "E2E_USER_ID must not be empty")
	}
	if c.Artifacts.Enabled() && c.Artifacts.Region == "" {
		errs = append(errs, "AWS_REGION is required when ARTIFACT_BUCKET is set")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ParseServerFlags registers and parses the fixture server flags.
func ParseServerFlags() (mockOIDC bool, addr string) {
	flag.BoolVar(&mockOIDC, "mock-oidc", false, "Start an in-process mock OIDC provider")
	flag.StringVar(&addr, "addr", "", "Listen address (default :3000, overrides LISTEN_ADDR env var)")
	flag.Parse()
	return mockOIDC, addr
}

// LoadServer loads fixture server configuration from the environment and
// flag values.
func LoadServer(mockOIDC bool, addr string) (*Server, error) {
	cfg := &Server{MockOIDC: mockOIDC}

	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":3000")
	if addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.BaseURL = urlutil.NormalizeBaseURL(os.Getenv("BASE_URL"))
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", "./data/blogs.db")
	cfg.DatabaseKey = strings.TrimSpace(os.Getenv("DATABASE_KEY"))
	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	cfg.SessionDuration = parseDurationOrDefault("SESSION_DURATION", 24*time.Hour)
	cfg.SecureCookies = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.OIDCIssuerURL = strings.TrimSpace(os.Getenv("OIDC_ISSUER_URL"))
	cfg.OIDCClientID = strings.TrimSpace(os.Getenv("OIDC_CLIENT_ID"))
	cfg.OIDCClientSecret = strings.TrimSpace(os.Getenv("OIDC_CLIENT_SECRET"))

	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks server configuration.
func (c *Server) Validate() error {
	var errs []string

	if len(c.SessionSecret) < minSessionSecretLen {
		errs = append(errs, fmt.Sprintf("SESSION_SECRET is required (at least %d characters)", minSessionSecretLen))
	}
	if c.DatabaseKey != "" && len(c.DatabaseKey) != 64 {
		errs = append(errs, "DATABASE_KEY must be 64 hex characters (32 bytes)")
	}
	if c.SessionDuration <= 0 {
		errs = append(errs, "SESSION_DURATION must be positive")
	}
	if !c.MockOIDC {
		if c.OIDCIssuerURL == "" {
			errs = append(errs, "OIDC_ISSUER_URL is required (set env var or use --mock-oidc)")
		}
		if c.OIDCClientID == "" {
			errs = append(errs, "OIDC_CLIENT_ID is required (set env var or use --mock-oidc)")
		}
		if c.OIDCClientSecret == "" {
			errs = append(errs, "OIDC_CLIENT_SECRET is required (set env var or use --mock-oidc)")
		}
	}
	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// CallbackURL is the OIDC redirect URL registered for the server.
func (c *Server) CallbackURL() string {
	return c.BaseURL + "/auth/google/callback"
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Server) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "blogs fixture server starting...")
	if c.MockOIDC {
		fmt.Fprintln(os.Stderr, "  Auth:     Mock OIDC (--mock-oidc)")
	} else {
		fmt.Fprintf(os.Stderr, "  Auth:     OIDC (issuer: %s)\n", c.OIDCIssuerURL)
	}
	fmt.Fprintf(os.Stderr, "  Database: %s\n", c.DatabasePath)
	fmt.Fprintf(os.Stderr, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintf(os.Stderr, "  Base:     %s\n", c.BaseURL)
	fmt.Fprintln(os.Stderr, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadServer loads server configuration and panics if validation fails.
func MustLoadServer(mockOIDC bool, addr string) *Server {
	cfg, err := LoadServer(mockOIDC, addr)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
