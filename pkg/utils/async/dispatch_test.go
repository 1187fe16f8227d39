package async_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/drover/pkg/utils/async"
)

func TestDispatch_ExecutesAsynchronously(t *testing.T) {
	var wg sync.WaitGroup
	executed := false

	wg.Add(1)
	async.Dispatch(context.Background(), func(ctx context.Context) error {
		defer wg.Done()
		executed = true
		return nil
	})

	wg.Wait()
	gt.True(t, executed)
}

func TestDispatch_HandlerErrorDoesNotCrash(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	async.Dispatch(context.Background(), func(ctx context.Context) error {
		defer wg.Done()
		return errors.New("handler failed")
	})
	wg.Wait()
}

func TestDispatch_RecoversFromPanic(t *testing.T) {
	done := make(chan struct{}, 1)

	async.Dispatch(context.Background(), func(ctx context.Context) error {
		defer func() { done <- struct{}{} }()
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not complete")
	}
}

func TestDispatch_DetachesFromCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	async.Dispatch(ctx, func(newCtx context.Context) error {
		defer wg.Done()
		cancel()
		select {
		case <-newCtx.Done():
			t.Error("detached context was cancelled")
		default:
		}
		return nil
	})
	wg.Wait()
}

func TestDispatch_PreservesLogger(t *testing.T) {
	ctx := ctxlog.With(context.Background(), ctxlog.From(context.Background()))

	var wg sync.WaitGroup
	wg.Add(1)
	async.Dispatch(ctx, func(newCtx context.Context) error {
		defer wg.Done()
		gt.NotNil(t, ctxlog.From(newCtx))
		return nil
	})
	wg.Wait()
}
