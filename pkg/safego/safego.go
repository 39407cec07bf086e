package safego

import (
	"context"
	"fmt"
	"runtime/debug"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
)

// Execute runs fn in a new goroutine, recovering and logging any panic under goroutineName.
func Execute(ctx context.Context, logger domain.Logger, goroutineName string, fn func()) {
	go Run(ctx, logger, goroutineName, fn)
}

// Run calls fn on the current goroutine and reports whether it panicked.
// A panic is logged with its stack trace instead of being propagated, so a
// bad event or request cannot take the process down.
func Run(ctx context.Context, logger domain.Logger, name string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			// Log on a live context even if the caller's one is done.
			logCtx := ctx
			if ctx.Err() != nil {
				logCtx = context.Background()
			}
			logger.Error(logCtx, fmt.Sprintf("Panic recovered in %s", name),
				"panic_info", fmt.Sprintf("%v", r),
				"stacktrace", string(debug.Stack()),
			)
		}
	}()
	fn()
	return false
}
