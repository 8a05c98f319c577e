// Package resumable models the result of a user-supplied callback that may
// complete immediately or hand back a computation still in flight. Broker
// consumers and responders must finish processing a delivery only after
// the handler's result settles, whichever shape it takes.
package resumable

import "context"

// Result is what a handler hands back: either it already ran to
// completion (Err set or nil, Pending nil) or it is still running
// (Pending set, awaited by Await before Err is meaningful).
type Result struct {
	Err     error
	Pending <-chan error
}

// Done builds an already-settled Result.
func Done(err error) Result {
	return Result{Err: err}
}

// Async builds a Result that settles when ch delivers its single value.
func Async(ch <-chan error) Result {
	return Result{Pending: ch}
}

// Await blocks until r settles, respecting ctx cancellation when r is
// still pending. A Result built with Done returns immediately.
func Await(ctx context.Context, r Result) error {
	if r.Pending == nil {
		return r.Err
	}
	select {
	case err := <-r.Pending:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
