package middleware

import (
	"context"
	"time"

	"github.com/claws/gestalt/glog"
	"github.com/claws/gestalt/resumable"
	"go.uber.org/zap"
)

// Logging records how long the wrapped handler took and any error it
// settled with.
func Logging() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, value any, headers map[string]any) (any, resumable.Result) {
			start := time.Now()
			reply, result := next(ctx, value, headers)
			err := resumable.Await(ctx, result)
			fields := []zap.Field{zap.Duration("duration", time.Since(start))}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			glog.L().Info("handled message", fields...)
			return reply, resumable.Done(err)
		}
	}
}
