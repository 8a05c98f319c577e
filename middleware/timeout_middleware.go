package middleware

import (
	"context"
	"time"

	"github.com/claws/gestalt/gerrors"
	"github.com/claws/gestalt/resumable"
)

// Timeout bounds how long the wrapped handler's result is awaited for.
// A handler that settles synchronously (a Done result) is returned
// unchanged — there is nothing left to race. A handler that returns a
// still-pending result is raced against the deadline, and the waiting
// handler goroutine itself is not cancelled: Timeout only controls when
// the caller gives up, not whether the handler keeps running.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, value any, headers map[string]any) (any, resumable.Result) {
			reply, result := next(ctx, value, headers)
			if result.Pending == nil {
				return reply, result
			}
			settled := make(chan error, 1)
			go func() {
				tctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				select {
				case err := <-result.Pending:
					settled <- err
				case <-tctx.Done():
					settled <- gerrors.ErrTimeout
				}
			}()
			return reply, resumable.Async(settled)
		}
	}
}
