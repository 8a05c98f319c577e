package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunReturnsMainFunctionError(t *testing.T) {
	want := errors.New("boom")
	err := Run(func(ctx context.Context) error { return want }, nil)
	if !errors.Is(err, want) {
		t.Fatalf("got %v, want %v", err, want)
	}
}

func TestRunRecoversPanicInMainFunction(t *testing.T) {
	err := Run(func(ctx context.Context) error { panic("broken") }, nil)
	if err == nil {
		t.Fatal("expected an error recovered from the panic")
	}
}

func TestRunCallsFinalizeAfterMainFunctionStops(t *testing.T) {
	finalized := false
	err := Run(
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { finalized = true; return nil },
	)
	if err != nil {
		t.Fatalf("got %v, want nil", err)
	}
	if !finalized {
		t.Fatal("expected finalize to run")
	}
}

func TestRunContextStopsOnParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunContext(parent, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, nil)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for RunContext to stop")
	}
}
