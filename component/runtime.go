package component

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/hwcodec/logger"
	"github.com/xaionaro-go/xsync"
)

// Some component backends require per-process runtime initialization before
// the first device can be created (e.g. joining the IPC thread pool of the
// OS media service). Backends register their hooks at package init time;
// EnsureRuntime runs them exactly once per process.

var (
	runtimeLocker xsync.Mutex
	runtimeHooks  []func(context.Context) error
	runtimeDone   bool
	runtimeErr    error
)

// RegisterRuntimeInitHook adds a process-wide initialization hook. It must be
// called before the first EnsureRuntime (normally from a backend's init).
func RegisterRuntimeInitHook(fn func(context.Context) error) {
	runtimeLocker.Do(context.TODO(), func() {
		runtimeHooks = append(runtimeHooks, fn)
	})
}

// EnsureRuntime performs the one-shot process runtime initialization. It is
// idempotent and safe to call from any goroutine; the first error is cached
// and returned to every subsequent caller.
func EnsureRuntime(ctx context.Context) error {
	return xsync.DoR1(ctx, &runtimeLocker, func() error {
		if runtimeDone {
			return runtimeErr
		}
		runtimeDone = true
		for idx, fn := range runtimeHooks {
			if err := fn(ctx); err != nil {
				runtimeErr = fmt.Errorf("runtime init hook #%d: %w", idx, err)
				logger.Errorf(ctx, "%v", runtimeErr)
				return runtimeErr
			}
		}
		logger.Debugf(ctx, "runtime initialized (%d hooks)", len(runtimeHooks))
		return nil
	})
}
