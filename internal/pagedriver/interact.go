package pagedriver

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/blogs-e2e/internal/errs"
)

// waitFor suspends until the first match of selector reaches state. A miss is
// reported with missCode so callers can tell "element never appeared" from a
// plain timeout.
func (s *Session) waitFor(b budget, step, selector string, state *playwright.WaitForSelectorState, missCode errs.Code) (playwright.Locator, error) {
	loc := s.page.Locator(selector).First()
	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   state,
		Timeout: b.ms(),
	})
	if err != nil {
		return nil, errs.Step(missCode, step, err)
	}
	return loc, nil
}

// Click waits for selector to be visible, clicks the first match and waits
// for the page to reach DOMContentLoaded, which covers clicks that navigate.
func (s *Session) Click(ctx context.Context, selector string) error {
	step := fmt.Sprintf("click %q", selector)
	if err := s.checkOpen(step); err != nil {
		return err
	}

	b := newBudget(ctx, s.opts.Timeout)
	err := awaitErr(ctx, step, func() error {
		loc, err := s.waitFor(b, step, selector, playwright.WaitForSelectorStateVisible, errs.ElementNotFound)
		if err != nil {
			return err
		}
		if err := loc.Click(playwright.LocatorClickOptions{Timeout: b.ms()}); err != nil {
			code := errs.Internal
			if isTimeout(err) {
				code = errs.ElementNotFound
			}
			return errs.Step(code, step, err)
		}
		if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateDomcontentloaded,
			Timeout: b.ms(),
		}); err != nil {
			return errs.Step(errs.Timeout, step, err)
		}
		return nil
	})
	s.logStep(step, err)
	return err
}

// TypeText focuses the first match of selector and types text key by key,
// appending to the current value.
func (s *Session) TypeText(ctx context.Context, selector, text string) error {
	step := fmt.Sprintf("type into %q", selector)
	if err := s.checkOpen(step); err != nil {
		return err
	}

	b := newBudget(ctx, s.opts.Timeout)
	err := awaitErr(ctx, step, func() error {
		loc, err := s.waitFor(b, step, selector, playwright.WaitForSelectorStateVisible, errs.ElementNotFound)
		if err != nil {
			return err
		}
		if err := loc.Focus(playwright.LocatorFocusOptions{Timeout: b.ms()}); err != nil {
			return errs.Step(errs.ElementNotFound, step, err)
		}
		if err := loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{Timeout: b.ms()}); err != nil {
			code := errs.Internal
			if isTimeout(err) {
				code = errs.Timeout
			}
			return errs.Step(code, step, err)
		}
		return nil
	})
	s.logStep(step, err)
	return err
}

// WaitForSelector suspends until selector matches an attached element.
func (s *Session) WaitForSelector(ctx context.Context, selector string) error {
	step := fmt.Sprintf("wait for %q", selector)
	if err := s.checkOpen(step); err != nil {
		return err
	}

	b := newBudget(ctx, s.opts.Timeout)
	err := awaitErr(ctx, step, func() error {
		_, err := s.waitFor(b, step, selector, playwright.WaitForSelectorStateAttached, errs.Timeout)
		return err
	})
	s.logStep(step, err)
	return err
}

// GetText waits for selector to be attached and returns the trimmed text
// content of the first match.
func (s *Session) GetText(ctx context.Context, selector string) (string, error) {
	step := fmt.Sprintf("get text of %q", selector)
	if err := s.checkOpen(step); err != nil {
		return "", err
	}

	b := newBudget(ctx, s.opts.Timeout)
	text, err := await(ctx, step, func() (string, error) {
		loc, err := s.waitFor(b, step, selector, playwright.WaitForSelectorStateAttached, errs.ElementNotFound)
		if err != nil {
			return "", err
		}
		text, err := loc.TextContent(playwright.LocatorTextContentOptions{Timeout: b.ms()})
		if err != nil {
			return "", errs.Step(errs.ElementNotFound, step, err)
		}
		return strings.TrimSpace(text), nil
	})
	s.logStep(step, err)
	return text, err
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	step := "screenshot"
	if err := s.checkOpen(step); err != nil {
		return nil, err
	}
	b := newBudget(ctx, s.opts.Timeout)
	return await(ctx, step, func() ([]byte, error) {
		png, err := s.page.Screenshot(playwright.PageScreenshotOptions{
			FullPage: playwright.Bool(true),
			Timeout:  b.ms(),
		})
		if err != nil {
			return nil, errs.Step(errs.Internal, step, err)
		}
		return png, nil
	})
}

// Content returns the page's current HTML.
func (s *Session) Content(ctx context.Context) (string, error) {
	step := "content"
	if err := s.checkOpen(step); err != nil {
		return "", err
	}
	return await(ctx, step, func() (string, error) {
		html, err := s.page.Content()
		if err != nil {
			return "", errs.Step(errs.Internal, step, err)
		}
		return html, nil
	})
}

func (s *Session) logStep(step string, err error) {
	if err != nil {
		s.logger.Warn("step_failed", "step", step, "code", errs.CodeOf(err), "error", err)
		return
	}
	s.logger.Debug("step_done", "step", step)
}
