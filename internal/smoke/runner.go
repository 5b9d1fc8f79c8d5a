// Package smoke runs the blogs browser scenarios against a deployed
// application outside of go test and reports the outcome on the console.
package smoke

import (
	"context"
	"regexp"
	"time"

	"github.com/kuitang/blogs-e2e/internal/artifacts"
	"github.com/kuitang/blogs-e2e/internal/errs"
	"github.com/kuitang/blogs-e2e/internal/harness"
	"github.com/kuitang/blogs-e2e/internal/obs"
	"github.com/kuitang/blogs-e2e/internal/pagedriver"
)

// Result is the outcome of one scenario.
type Result struct {
	Name     string
	Err      error
	Skipped  bool
	Duration time.Duration
	// Artifacts lists keys captured for a failed scenario.
	Artifacts []string
}

// Results is the outcome of a run.
type Results struct {
	All      []Result
	Failures []Result
}

// OK reports whether no scenario failed.
func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// ExitCode is the process status for a run: 1 when any scenario failed,
// otherwise 2 when any was skipped, otherwise 0.
func (r Results) ExitCode() int {
	if !r.OK() {
		return 1
	}
	for _, res := range r.All {
		if res.Skipped {
			return 2
		}
	}
	return 0
}

// Runner runs scenarios, each in its own session.
type Runner struct {
	Env      *harness.Env
	Reporter Reporter
	// Filter, when set, selects scenarios by name.
	Filter *regexp.Regexp
}

// Login signs s in as the configured identity.
func (r *Runner) Login(ctx context.Context, s *pagedriver.Session, redirectPath string) error {
	return r.Env.Login(ctx, s, redirectPath)
}

// Run executes scenarios sequentially. A scenario that cannot launch a
// browser is reported as skipped.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) Results {
	reporter := r.Reporter
	if reporter == nil {
		reporter = nullReporter{}
	}

	var results Results
	for _, sc := range scenarios {
		if r.Filter != nil && !r.Filter.MatchString(sc.Name) {
			continue
		}
		reporter.Started(sc.Name)
		res := r.runOne(ctx, sc)
		results.All = append(results.All, res)

		switch {
		case res.Skipped:
			reporter.Skipped(sc.Name, res.Err.Error())
		case res.Err != nil:
			results.Failures = append(results.Failures, res)
			reporter.Failed(sc.Name, res.Err, res.Artifacts)
		default:
			reporter.Passed(sc.Name, res.Duration)
		}
	}
	return results
}

func (r *Runner) runOne(parent context.Context, sc Scenario) (res Result) {
	res.Name = sc.Name
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	cfg := r.Env.Config
	ctx, cancel := context.WithTimeout(parent, cfg.TestTimeout)
	defer cancel()
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: cfg.RunID, Test: sc.Name})
	logger := obs.From(ctx).With("pkg", "smoke")

	s, err := pagedriver.Open(ctx, r.Env.Options())
	if err != nil {
		res.Err = err
		res.Skipped = errs.Is(err, errs.Launch)
		return res
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			logger.Warn("session_close_failed", "error", closeErr)
		}
	}()

	err = s.Navigate(ctx, "/")
	if err == nil {
		err = sc.Run(ctx, r, s)
	}
	if err != nil {
		res.Err = err
		logger.Error("scenario_failed", "code", errs.CodeOf(err), "step", errs.StepOf(err), "error", err)
		if r.Env.Store != nil {
			res.Artifacts = r.capture(parent, sc.Name, s)
		}
		return res
	}
	logger.Info("scenario_passed", "duration_ms", time.Since(start).Milliseconds())
	return res
}

func (r *Runner) capture(parent context.Context, name string, s *pagedriver.Session) []string {
	cfg := r.Env.Config
	ctx, cancel := context.WithTimeout(parent, 2*cfg.BrowserTimeout+5*time.Second)
	defer cancel()

	keys, err := artifacts.Capture(ctx, r.Env.Store, s, artifacts.Prefix(cfg.RunID, name))
	if err != nil {
		obs.From(ctx).Warn("artifact_capture_incomplete", "scenario", name, "error", err)
	}
	return keys
}
