package pagedriver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/blogs-e2e/internal/errs"
)

func TestStepTimeout_NeverExceedsDeadlineOrBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bound := time.Duration(rapid.Int64Range(1, 10_000).Draw(t, "bound_ms")) * time.Millisecond
		remaining := time.Duration(rapid.Int64Range(1, 10_000).Draw(t, "remaining_ms")) * time.Millisecond

		ctx, cancel := context.WithTimeout(context.Background(), remaining)
		defer cancel()

		got := stepTimeout(ctx, bound)
		if got > bound || got > remaining {
			t.Fatalf("stepTimeout = %v, bound %v, remaining %v", got, bound, remaining)
		}
		if got < minStep {
			t.Fatalf("stepTimeout = %v below minimum", got)
		}
	})
}

func TestAwait_ReturnsTimeoutWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := await(ctx, `wait for ".card"`, func() (int, error) {
		<-release
		return 1, nil
	})
	require.Less(t, time.Since(start), time.Second)
	require.True(t, errs.Is(err, errs.Timeout))
	require.Equal(t, `wait for ".card"`, errs.StepOf(err))
}

func TestAwait_PassesResultThrough(t *testing.T) {
	v, err := await(context.Background(), "step", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", v)

	boom := errors.New("boom")
	err = awaitErr(context.Background(), "step", func() error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestWithin_MapsDeadlineToTimeout(t *testing.T) {
	err := Within(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.True(t, errs.Is(err, errs.Timeout))

	coded := errs.Step(errs.ElementNotFound, `click "x"`, errors.New("missing"))
	err = Within(context.Background(), time.Second, func(ctx context.Context) error { return coded })
	require.Equal(t, coded, err)
}
