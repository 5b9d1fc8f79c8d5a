package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/kuitang/blogs-e2e/internal/logutil"
	"github.com/kuitang/blogs-e2e/internal/obs"
	"github.com/kuitang/blogs-e2e/internal/urlutil"
)

const maxLoginHops = 8

// OIDCIssuer obtains a session by walking the application's real login
// redirect chain (/auth/google → provider → callback) over plain HTTP.
type OIDCIssuer struct {
	// BaseURL is the application origin, e.g. http://localhost:3000.
	BaseURL string
	// Prepare runs before each login, e.g. to queue the identity at a mock
	// provider. Optional.
	Prepare func(ctx context.Context, id Identity) error
	// Timeout bounds the whole redirect chain. Zero means 10s.
	Timeout time.Duration
}

// Issue logs id in through the provider and returns the session cookie the
// application set.
func (i *OIDCIssuer) Issue(ctx context.Context, id Identity) (*Credential, error) {
	logger := obs.From(ctx).With("pkg", "auth", "mechanism", MechanismOIDC)

	base, err := urlutil.ParseBase(i.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	if i.Prepare != nil {
		if err := i.Prepare(ctx, id); err != nil {
			return nil, fmt.Errorf("auth: prepare login: %w", err)
		}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	timeout := i.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{
		Jar:     jar,
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	next, err := url.Parse(urlutil.BuildAbsolute(base.String(), "/auth/google"))
	if err != nil {
		return nil, err
	}
	var session *http.Cookie
	for hop := 0; hop < maxLoginHops && session == nil; hop++ {
		resp, err := get(ctx, client, next.String())
		if err != nil {
			return nil, fmt.Errorf("auth: login hop %d (%s): %w", hop, logutil.RedactURLForLog(next), err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		logger.Debug("login_hop", "hop", hop, "url", logutil.RedactURLForLog(next), "status", resp.StatusCode,
			"set_cookie", logutil.FormatCookiesForLog(resp.Cookies()))

		for _, c := range resp.Cookies() {
			if c.Name == SessionCookieName && c.Value != "" {
				session = c
			}
		}
		if session != nil {
			break
		}
		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			return nil, fmt.Errorf("auth: login chain stopped at %s with status %d", next.Path, resp.StatusCode)
		}
		loc, err := next.Parse(resp.Header.Get("Location"))
		if err != nil {
			return nil, fmt.Errorf("auth: bad redirect from %s: %w", next.Path, err)
		}
		next = loc
	}
	if session == nil {
		return nil, errors.New("auth: login chain did not set a session cookie")
	}

	userID, err := i.resolveUser(ctx, client, base, session)
	if err != nil {
		return nil, err
	}

	session.Domain = ""
	logger.Info("oidc_login_completed", "user_id", userID)
	return &Credential{
		Cookies:   []*http.Cookie{session},
		UserID:    userID,
		Mechanism: MechanismOIDC,
	}, nil
}

func (i *OIDCIssuer) resolveUser(ctx context.Context, client *http.Client, base *url.URL, session *http.Cookie) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlutil.BuildAbsolute(base.String(), "/api/current_user"), nil)
	if err != nil {
		return "", err
	}
	req.AddCookie(&http.Cookie{Name: session.Name, Value: session.Value})

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: resolve current user: %w", err)
	}
	defer resp.Body.Close()

	var current *Identity
	if err := json.NewDecoder(resp.Body).Decode(&current); err != nil {
		return "", fmt.Errorf("auth: decode current user: %w", err)
	}
	if current == nil || current.UserID == "" {
		return "", errors.New("auth: session cookie not accepted by application")
	}
	return current.UserID, nil
}

func get(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}
