// Package runner provides the lifecycle boilerplate every gestalt
// application otherwise repeats: start a main function, stop cleanly on
// SIGINT/SIGTERM or on the main function's own completion, run an
// optional finalizer, and never let a panic in the main function escape
// unnoticed.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claws/gestalt/glog"
	"go.uber.org/zap"
)

// Func is the application's main body. It receives a context cancelled
// as soon as shutdown begins, so long-running work can check ctx.Done()
// to wind down cooperatively.
type Func func(ctx context.Context) error

// Finalize runs once after shutdown has begun and Func's context has been
// cancelled, typically to flush logs or close shared connections. When
// shutdown was triggered by a signal or by the parent context, Func may
// still be running when Finalize starts; Run does not wait for it.
type Finalize func(ctx context.Context) error

// FinalizeTimeout bounds how long Run waits for Finalize before giving
// up and returning anyway.
const FinalizeTimeout = 10 * time.Second

// Run starts fn in its own goroutine, guarded against panics, and
// blocks until fn returns, a SIGINT/SIGTERM arrives, or ctx (if passed
// in via RunContext) is cancelled. It then cancels fn's context, runs
// finalize with a bounded timeout, and returns fn's error (if any) or
// finalize's error.
func Run(fn Func, finalize Finalize) error {
	return RunContext(context.Background(), fn, finalize)
}

// RunContext is Run with a caller-supplied parent context, useful in
// tests that want to trigger shutdown without sending a real signal.
func RunContext(parent context.Context, fn Func, finalize Finalize) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	if fn != nil {
		go runGuarded(ctx, fn, errCh)
	}

	var runErr error
	select {
	case sig := <-sigCh:
		glog.L().Info("runner: caught signal, stopping", zap.String("signal", sig.String()))
	case <-ctx.Done():
	case runErr = <-errCh:
		if runErr != nil {
			glog.L().Error("runner: main function failed", zap.Error(runErr))
		}
	}
	cancel()

	if finalize == nil {
		return runErr
	}
	fctx, fcancel := context.WithTimeout(context.Background(), FinalizeTimeout)
	defer fcancel()
	if err := finalize(fctx); err != nil {
		glog.L().Error("runner: finalize failed", zap.Error(err))
		if runErr == nil {
			return err
		}
	}
	return runErr
}

func runGuarded(ctx context.Context, fn Func, errCh chan<- error) {
	defer func() {
		if r := recover(); r != nil {
			glog.L().Error("runner: panic in main function", zap.Any("panic", r))
			errCh <- fmt.Errorf("runner: panic: %v", r)
		}
	}()
	errCh <- fn(ctx)
}
