package pagedriver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/blogs-e2e/internal/errs"
	"github.com/kuitang/blogs-e2e/internal/logutil"
	"github.com/kuitang/blogs-e2e/internal/obs"
	"github.com/kuitang/blogs-e2e/internal/urlutil"
)

const (
	maxResponseBytes = 1 << 20
	logBodyBytes     = 512
)

// ActionRequest is one API call to replay with the browser's credentials.
type ActionRequest struct {
	Method string         `yaml:"method" json:"method"`
	Path   string         `yaml:"path" json:"path"`
	Data   map[string]any `yaml:"data,omitempty" json:"data,omitempty"`
	Label  string         `yaml:"label" json:"label"`
}

// ActionResult is the outcome of the request at the same index.
type ActionResult struct {
	Index  int
	Label  string
	Status int
	// Body is the decoded JSON body, or the raw text when it was not JSON.
	Body any
	Err  error
}

// BatchError lists the requests of a batch that failed.
type BatchError struct {
	Failed []int
	Errs   []error
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for i, err := range e.Errs {
		parts = append(parts, fmt.Sprintf("#%d: %v", e.Failed[i], err))
	}
	return strings.Join(parts, "; ")
}

func (e *BatchError) Unwrap() []error {
	return e.Errs
}

// CookieSource supplies cookies for a URL. playwright.BrowserContext
// satisfies it.
type CookieSource interface {
	Cookies(urls ...string) ([]playwright.Cookie, error)
}

// Executor replays ActionRequests over plain HTTP using cookies read from a
// CookieSource. Requests run one at a time in slice order.
type Executor struct {
	BaseURL string
	Client  *http.Client
	Cookies CookieSource
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
	// RequestIDPrefix tags each request's X-Request-Id as <prefix>-<index>.
	RequestIDPrefix string
}

// Exec runs reqs in order. The cookie jar is read once, before the first
// request, so every request carries the same credential state.
//
// A failing request does not stop the batch: its ActionResult.Err is set and
// the next request runs. When any request failed, Exec returns every result
// together with an errs.RequestExecution error wrapping a *BatchError. If ctx
// ends, the remaining requests are marked with errs.Timeout.
func (e *Executor) Exec(ctx context.Context, reqs []ActionRequest) ([]ActionResult, error) {
	results := make([]ActionResult, len(reqs))
	if len(reqs) == 0 {
		return results, nil
	}

	base, err := urlutil.ParseBase(e.BaseURL)
	if err != nil {
		return nil, errs.Step(errs.RequestExecution, "exec requests", err)
	}
	origin := urlutil.Origin(base)

	cookies, err := e.readCookies(ctx, origin)
	if err != nil {
		return nil, err
	}

	logger := obs.From(ctx).With("pkg", "pagedriver")
	logger.Debug("exec_requests_start", "count", len(reqs), "cookies", logutil.FormatCookiesForLog(cookies))

	batch := &BatchError{}
	for i, req := range reqs {
		results[i] = ActionResult{Index: i, Label: req.Label}
		if ctx.Err() != nil {
			results[i].Err = errs.Step(errs.Timeout, requestStep(i, req), ctx.Err())
		} else {
			e.do(ctx, base, cookies, req, &results[i])
		}
		if results[i].Err != nil {
			batch.Failed = append(batch.Failed, i)
			batch.Errs = append(batch.Errs, results[i].Err)
		}
	}

	if len(batch.Failed) > 0 {
		logger.Warn("exec_requests_failed", "failed", batch.Failed, "count", len(reqs))
		return results, errs.Wrap(errs.RequestExecution,
			fmt.Sprintf("%d of %d requests failed", len(batch.Failed), len(reqs)), batch)
	}
	return results, nil
}

func (e *Executor) readCookies(ctx context.Context, origin string) ([]*http.Cookie, error) {
	const step = "read cookies"
	if e.Cookies == nil {
		return nil, nil
	}
	jar, err := await(ctx, step, func() ([]playwright.Cookie, error) {
		return e.Cookies.Cookies(origin)
	})
	if err != nil {
		return nil, errs.Recode(errs.RequestExecution, step, err)
	}

	cookies := make([]*http.Cookie, 0, len(jar))
	for _, c := range jar {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}

func requestStep(i int, req ActionRequest) string {
	return fmt.Sprintf("request #%d %s %s", i, strings.ToUpper(req.Method), req.Path)
}

func (e *Executor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultTimeout
}

func (e *Executor) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

func (e *Executor) do(ctx context.Context, base *url.URL, cookies []*http.Cookie, req ActionRequest, res *ActionResult) {
	step := requestStep(res.Index, req)
	fail := func(code errs.Code, err error) {
		res.Err = errs.Step(code, step, err)
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method != http.MethodGet && method != http.MethodPost {
		fail(errs.InvalidArgument, fmt.Errorf("unsupported method %q", req.Method))
		return
	}
	ref, err := url.Parse(req.Path)
	if err != nil {
		fail(errs.InvalidArgument, err)
		return
	}
	// Scheme-relative ("//host/x") and absolute paths resolve too, so the
	// check runs on the resolved URL. Cookies never leave the base origin.
	target := base.ResolveReference(ref)
	if !strings.EqualFold(urlutil.Origin(target), urlutil.Origin(base)) {
		fail(errs.InvalidArgument, fmt.Errorf("path %q leaves base origin", req.Path))
		return
	}

	var body io.Reader
	if req.Data != nil {
		payload, err := json.Marshal(req.Data)
		if err != nil {
			fail(errs.InvalidArgument, fmt.Errorf("encode body: %w", err))
			return
		}
		body = bytes.NewReader(payload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, stepTimeout(ctx, e.timeout()))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, method, target.String(), body)
	if err != nil {
		fail(errs.InvalidArgument, err)
		return
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		httpReq.AddCookie(c)
	}
	corr := obs.CorrelationFromContext(ctx)
	if e.RequestIDPrefix != "" {
		httpReq.Header.Set(obs.HeaderRequestID, e.RequestIDPrefix+"-"+strconv.Itoa(res.Index))
	}
	if corr.Test != "" {
		httpReq.Header.Set(obs.HeaderTest, corr.Test)
	}
	if corr.RunID != "" {
		httpReq.Header.Set(obs.HeaderRunID, corr.RunID)
	}

	logger := obs.From(ctx).With("pkg", "pagedriver", "step", step)
	logger.Debug("request_send", "headers", logutil.FormatHeadersForLog(httpReq.Header))

	start := time.Now()
	resp, err := e.client().Do(httpReq)
	if err != nil {
		code := errs.RequestExecution
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			code = errs.Timeout
		}
		fail(code, err)
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		fail(errs.RequestExecution, fmt.Errorf("read body: %w", err))
		return
	}
	truncated := len(raw) > maxResponseBytes
	if truncated {
		raw = raw[:maxResponseBytes]
	}
	res.Status = resp.StatusCode

	contentType := resp.Header.Get("Content-Type")
	logger.Debug("request_done",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"body", logutil.FormatBodyForLog(contentType, raw, logBodyBytes, truncated),
	)

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		res.Body = string(raw)
		fail(errs.RequestExecution, fmt.Errorf("status %d: body is not JSON: %s", resp.StatusCode, logutil.TruncateForLog(string(raw), 120)))
		return
	}
	res.Body = decoded
}

// ExecRequests replays reqs against the base URL using this session's
// cookies. The page must already have loaded a page on the base origin so the
// browser holds that origin's cookies. See Executor.Exec for the failure
// contract.
func (s *Session) ExecRequests(ctx context.Context, reqs []ActionRequest) ([]ActionResult, error) {
	const step = "exec requests"
	if s.Closed() {
		return nil, errs.Step(errs.RequestExecution, step, errors.New("session is closed"))
	}
	s.mu.Lock()
	visited := s.visited
	s.mu.Unlock()
	if !visited {
		return nil, errs.Step(errs.RequestExecution, step, fmt.Errorf("page has not visited %s", s.origin()))
	}

	exec := &Executor{
		BaseURL:         s.opts.BaseURL,
		Client:          &http.Client{},
		Cookies:         s.bctx,
		Timeout:         s.opts.Timeout,
		RequestIDPrefix: s.id,
	}
	return exec.Exec(obs.WithCorrelation(ctx, obs.Correlation{SessionID: s.id}), reqs)
}
