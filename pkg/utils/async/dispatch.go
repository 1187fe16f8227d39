package async

import (
	"context"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
)

// Dispatch executes a handler in a new goroutine with panic recovery.
//
// The handler receives a detached context: cancellation of the caller's
// context does not propagate (the engine never cancels in-flight
// reconciliation work), but the context logger is preserved. Errors returned
// by the handler and recovered panics are logged, not re-raised.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	newCtx := detachedContext(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ctxlog.From(newCtx).Error("panic in async handler",
					"recover", r,
					"stack", string(debug.Stack()))
			}
		}()

		if err := handler(newCtx); err != nil {
			ctxlog.From(newCtx).Error("error in async handler", "error", err)
		}
	}()
}

// detachedContext returns a background context carrying the caller's logger
func detachedContext(ctx context.Context) context.Context {
	return ctxlog.With(context.Background(), ctxlog.From(ctx))
}
