// Package pagedriver drives one isolated browser session against the blogs
// application: navigation, DOM interaction, login shortcuts and API requests
// that reuse the browser's cookies.
//
// Every operation that reads or acts on the page first waits for its
// precondition (element attached, visible, page loaded) within a bounded
// time, so callers never sleep or poll.
package pagedriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/blogs-e2e/internal/errs"
	"github.com/kuitang/blogs-e2e/internal/obs"
	"github.com/kuitang/blogs-e2e/internal/urlutil"
)

// DefaultTimeout bounds each suspend point when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Options configures a session.
type Options struct {
	BaseURL  string
	Headless bool
	// Timeout bounds every wait, navigation and request.
	Timeout time.Duration
	// Browser is chromium (default), firefox or webkit.
	Browser string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Browser == "" {
		o.Browser = "chromium"
	}
	o.BaseURL = urlutil.NormalizeBaseURL(o.BaseURL)
	return o
}

// Session owns one Playwright driver, one browser process, one browser
// context and one page. A session is used by one test at a time and is never
// shared.
type Session struct {
	id     string
	opts   Options
	base   *url.URL
	logger *slog.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page

	mu      sync.Mutex
	closed  bool
	visited bool
}

// Open starts a dedicated browser and returns a session with a blank page.
// Anything already started is torn down if a later step fails.
func Open(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	base, err := urlutil.ParseBase(opts.BaseURL)
	if err != nil {
		return nil, errs.Step(errs.Launch, "open", err)
	}

	s := &Session{id: uuid.NewString(), opts: opts, base: base}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{SessionID: s.id})
	s.logger = obs.From(ctx).With("pkg", "pagedriver")

	if err := s.launch(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Info("session_opened", "browser", opts.Browser, "headless", opts.Headless, "base_url", opts.BaseURL)
	return s, nil
}

func (s *Session) launch(ctx context.Context) error {
	fail := func(step string, err error) error {
		return errs.Step(errs.Launch, step, err)
	}
	if err := ctx.Err(); err != nil {
		return fail("start driver", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return fail("start driver", err)
	}
	s.pw = pw

	var browserType playwright.BrowserType
	switch s.opts.Browser {
	case "chromium":
		browserType = pw.Chromium
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		return fail("launch browser", fmt.Errorf("unknown browser %q", s.opts.Browser))
	}

	if err := ctx.Err(); err != nil {
		return fail("launch browser", err)
	}
	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.opts.Headless),
		Timeout:  newBudget(ctx, 6*s.opts.Timeout).ms(),
	})
	if err != nil {
		return fail("launch browser", err)
	}
	s.browser = browser

	bctx, err := browser.NewContext()
	if err != nil {
		return fail("new context", err)
	}
	s.bctx = bctx

	page, err := bctx.NewPage()
	if err != nil {
		return fail("new page", err)
	}
	timeoutMS := float64(s.opts.Timeout) / float64(time.Millisecond)
	page.SetDefaultTimeout(timeoutMS)
	page.SetDefaultNavigationTimeout(timeoutMS)
	s.page = page
	return nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// BaseURL is the origin every relative target resolves against.
func (s *Session) BaseURL() string { return s.opts.BaseURL }

// URL is the page's current URL.
func (s *Session) URL() string {
	if s.page == nil {
		return ""
	}
	return s.page.URL()
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) checkOpen(step string) error {
	if s.Closed() {
		return errs.Step(errs.Navigation, step, errors.New("session is closed"))
	}
	return nil
}

// resolve turns target into an absolute URL. Relative paths ("blogs",
// "/blogs/new") resolve against the root of the base URL.
func (s *Session) resolve(target string) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return ref, nil
	}
	if !strings.HasPrefix(ref.Path, "/") {
		ref.Path = "/" + ref.Path
	}
	return s.base.ResolveReference(ref), nil
}

func (s *Session) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, s.base.Scheme) && strings.EqualFold(u.Host, s.base.Host)
}

// Navigate loads target and returns once the load event has fired.
func (s *Session) Navigate(ctx context.Context, target string) error {
	u, err := s.resolve(target)
	step := fmt.Sprintf("navigate %q", target)
	if err != nil {
		return errs.Step(errs.Navigation, step, err)
	}
	if err := s.checkOpen(step); err != nil {
		return err
	}

	b := newBudget(ctx, s.opts.Timeout)
	start := time.Now()
	err = awaitErr(ctx, step, func() error {
		_, err := s.page.Goto(u.String(), playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateLoad,
			Timeout:   b.ms(),
		})
		return err
	})
	if err != nil {
		s.logger.Warn("navigate_failed", "url", u.String(), "error", err)
		return errs.Recode(errs.Navigation, step, err)
	}

	if s.sameOrigin(u) {
		s.mu.Lock()
		s.visited = true
		s.mu.Unlock()
	}
	s.logger.Debug("navigated", "url", u.String(), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Close releases the page, context, browser and driver. It is safe to call
// more than once; later calls return nil.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var closeErrs []error
	if s.page != nil {
		if err := s.page.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			closeErrs = append(closeErrs, fmt.Errorf("close page: %w", err))
		}
	}
	if s.bctx != nil {
		if err := s.bctx.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			closeErrs = append(closeErrs, fmt.Errorf("close context: %w", err))
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			closeErrs = append(closeErrs, fmt.Errorf("close browser: %w", err))
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("stop driver: %w", err))
		}
	}

	if s.logger != nil {
		s.logger.Info("session_closed", "errors", len(closeErrs))
	}
	return errors.Join(closeErrs...)
}

// With opens a session, runs fn and closes the session on every exit path,
// including panics.
func With(ctx context.Context, opts Options, fn func(ctx context.Context, s *Session) error) (err error) {
	s, err := Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, s)
}
