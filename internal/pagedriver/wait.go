package pagedriver

import (
	"context"
	"errors"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/blogs-e2e/internal/errs"
)

// minStep keeps a nearly expired deadline from turning into Playwright's
// "no timeout" value of 0.
const minStep = time.Millisecond

// stepTimeout is the bound of one suspend point: the session timeout,
// shortened to whatever remains of ctx's deadline.
func stepTimeout(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < d {
			d = remaining
		}
	}
	if d < minStep {
		d = minStep
	}
	return d
}

// budget splits one step bound across the Playwright calls that make up the
// step, so a step never takes longer than its bound in total.
type budget struct {
	deadline time.Time
}

func newBudget(ctx context.Context, d time.Duration) budget {
	return budget{deadline: time.Now().Add(stepTimeout(ctx, d))}
}

// ms returns the remaining budget in Playwright's millisecond form.
func (b budget) ms() *float64 {
	remaining := time.Until(b.deadline)
	if remaining < minStep {
		remaining = minStep
	}
	return playwright.Float(float64(remaining) / float64(time.Millisecond))
}

// await runs fn and returns its result, or an errs.Timeout error as soon as
// ctx is done. fn's own Playwright timeout is derived from the same deadline,
// so an abandoned fn finishes shortly afterwards.
func await[T any](ctx context.Context, step string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, errs.Step(errs.Timeout, step, err)
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, errs.Step(errs.Timeout, step, ctx.Err())
	}
}

// awaitErr is await for steps that only report an error.
func awaitErr(ctx context.Context, step string, fn func() error) error {
	_, err := await(ctx, step, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Within runs fn with a context bounded by d. A deadline hit inside fn is
// reported as errs.Timeout, so several steps can share one bound:
//
//	err := pagedriver.Within(ctx, 3*time.Second, func(ctx context.Context) error {
//		if err := s.Click(ctx, "button.green"); err != nil {
//			return err
//		}
//		return s.WaitForSelector(ctx, ".card")
//	})
func Within(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errs.Is(err, errs.Timeout) {
		return errs.Step(errs.Timeout, "within "+d.String(), err)
	}
	return err
}

// isTimeout reports whether a Playwright error is a timeout.
func isTimeout(err error) bool {
	return errors.Is(err, playwright.ErrTimeout)
}
