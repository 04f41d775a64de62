package internal

import (
	"context"

	"github.com/xaionaro-go/hwcodec/logger"
)

// Assert panics (through the logger, so that the message reaches the
// configured sinks) when mustBeTrue is false. It is reserved for programmer
// errors: conditions a correctly configured pipeline can never hit.
func Assert(
	ctx context.Context,
	mustBeTrue bool,
	extraArgs ...any,
) {
	if mustBeTrue {
		return
	}

	logger.Panic(ctx, "assertion failed", extraArgs)
}
