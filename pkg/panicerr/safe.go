package panicerr

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Safe wraps a function that returns an error, catching any panics and returning them as an error.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// SafeContext wraps a function that takes a context and returns an error.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Safe(func() error {
			return fn(ctx)
		})()
	}
}

// Go runs fn on the wait group, logging instead of repanicking when fn
// fails or panics. Background settlement work must never crash the board.
func Go(wg *conc.WaitGroup, ctx context.Context, fn func(context.Context) error) {
	wg.Go(func() {
		if err := SafeContext(fn)(ctx); err != nil {
			slog.ErrorContext(ctx, "background task failed", "error", err)
		}
	})
}
