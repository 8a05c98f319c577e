package middleware

import (
	"context"

	"github.com/claws/gestalt/gerrors"
	"github.com/claws/gestalt/resumable"
	"golang.org/x/time/rate"
)

// RateLimit enforces a token bucket over the wrapped handler: r tokens
// refill per second up to burst, one token per request. A request
// arriving with an empty bucket is rejected without reaching next.
//
// The limiter lives in the outer closure, built once per call to
// RateLimit, so the bucket is shared across every request the returned
// middleware sees rather than reset per request.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, value any, headers map[string]any) (any, resumable.Result) {
			if !limiter.Allow() {
				return nil, resumable.Done(gerrors.ErrRateLimited)
			}
			return next(ctx, value, headers)
		}
	}
}
