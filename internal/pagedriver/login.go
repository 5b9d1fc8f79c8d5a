package pagedriver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/blogs-e2e/internal/auth"
	"github.com/kuitang/blogs-e2e/internal/errs"
	"github.com/kuitang/blogs-e2e/internal/logutil"
	"github.com/kuitang/blogs-e2e/internal/urlutil"
)

// Login signs the session in as id without going through the login UI and
// then opens redirectPath ("blogs", "/blogs/new", ...).
//
// The issuer decides how the credential is produced; the session only writes
// the returned cookies into its browser context for the base origin and
// checks they can be read back.
func (s *Session) Login(ctx context.Context, issuer auth.Issuer, id auth.Identity, redirectPath string) error {
	step := fmt.Sprintf("login as %q", id.UserID)
	if err := s.checkOpen(step); err != nil {
		return err
	}
	if issuer == nil {
		return errs.Step(errs.AuthInjection, step, errors.New("no credential issuer configured"))
	}

	cred, err := issuer.Issue(ctx, id)
	if err != nil {
		return errs.Step(errs.AuthInjection, step, err)
	}
	if cred == nil || len(cred.Cookies) == 0 {
		return errs.Step(errs.AuthInjection, step, errors.New("issuer returned no cookies"))
	}

	if err := s.injectCookies(ctx, step, cred.Cookies); err != nil {
		return err
	}
	s.logger.Info("login_injected",
		"user_id", cred.UserID,
		"mechanism", cred.Mechanism,
		"cookies", logutil.FormatCookiesForLog(cred.Cookies),
	)

	return s.Navigate(ctx, redirectPath)
}

func (s *Session) origin() string {
	return urlutil.Origin(s.base)
}

// cookieMatchesHost reports whether a cookie Domain attribute covers host.
// An empty domain is a host-only cookie for whatever origin it is set on.
func cookieMatchesHost(domain, host string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	host = strings.ToLower(host)
	if domain == "" {
		return true
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func sameSite(mode http.SameSite) *playwright.SameSiteAttribute {
	switch mode {
	case http.SameSiteStrictMode:
		return playwright.SameSiteAttributeStrict
	case http.SameSiteNoneMode:
		return playwright.SameSiteAttributeNone
	default:
		return playwright.SameSiteAttributeLax
	}
}

func (s *Session) injectCookies(ctx context.Context, step string, cookies []*http.Cookie) error {
	origin := s.origin()
	host := s.base.Hostname()

	toAdd := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			return errs.Step(errs.AuthInjection, step, errors.New("credential contains an unnamed cookie"))
		}
		if !cookieMatchesHost(c.Domain, host) {
			return errs.Step(errs.AuthInjection, step,
				fmt.Errorf("cookie %q is scoped to domain %q, not %q", c.Name, c.Domain, host))
		}
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			URL:      playwright.String(origin),
			HttpOnly: playwright.Bool(c.HttpOnly),
			Secure:   playwright.Bool(c.Secure && s.base.Scheme == "https"),
			SameSite: sameSite(c.SameSite),
		}
		if c.MaxAge > 0 {
			oc.Expires = playwright.Float(float64(time.Now().Add(time.Duration(c.MaxAge) * time.Second).Unix()))
		}
		toAdd = append(toAdd, oc)
	}

	err := awaitErr(ctx, step, func() error {
		if err := s.bctx.AddCookies(toAdd); err != nil {
			return errs.Step(errs.AuthInjection, step, err)
		}
		jar, err := s.bctx.Cookies(origin)
		if err != nil {
			return errs.Step(errs.AuthInjection, step, err)
		}
		present := make(map[string]string, len(jar))
		for _, c := range jar {
			present[c.Name] = c.Value
		}
		for _, c := range cookies {
			if v, ok := present[c.Name]; !ok || v != c.Value {
				return errs.Step(errs.AuthInjection, step, fmt.Errorf("cookie %q not readable after injection", c.Name))
			}
		}
		return nil
	})
	if err != nil && !errs.Is(err, errs.AuthInjection) {
		return errs.Recode(errs.AuthInjection, step, err)
	}
	return err
}
