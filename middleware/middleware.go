// Package middleware implements an onion-model chain around a broker
// RPC responder's handler: each layer can inspect or reject a request
// before it reaches the business handler, and inspect or rewrite the
// reply and any error after it returns.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
package middleware

import (
	"context"

	"github.com/claws/gestalt/resumable"
)

// HandlerFunc is the signature shared by a broker responder's business
// handler and every middleware-wrapped handler around it.
type HandlerFunc func(ctx context.Context, value any, headers map[string]any) (any, resumable.Result)

// Middleware takes a handler and returns a new handler wrapping it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, built right to left so the first
// middleware listed is the outermost layer.
//
//	chain := Chain(Logging(), Timeout(time.Second), RateLimit(50, 10))
//	handler := chain(businessHandler)
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
