package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/claws/gestalt/gerrors"
	"github.com/claws/gestalt/glog"
	"github.com/claws/gestalt/resumable"
	"go.uber.org/zap"
)

func isRetryable(err error) bool {
	return errors.Is(err, gerrors.ErrTimeout) || errors.Is(err, gerrors.ErrConnectRefused)
}

// Retry re-runs the wrapped handler with exponential backoff while it
// keeps failing with a retryable error, up to maxRetries retries after
// the first call.
// Non-retryable errors and eventual success both return immediately.
func Retry(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, value any, headers map[string]any) (any, resumable.Result) {
			reply, result := next(ctx, value, headers)
			err := resumable.Await(ctx, result)
			for attempt := 0; err != nil && isRetryable(err) && attempt < maxRetries; attempt++ {
				glog.L().Info("retrying handler", zap.Int("attempt", attempt+1), zap.Error(err))
				time.Sleep(baseDelay * time.Duration(uint(1)<<uint(attempt)))
				reply, result = next(ctx, value, headers)
				err = resumable.Await(ctx, result)
			}
			return reply, resumable.Done(err)
		}
	}
}
