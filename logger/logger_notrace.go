//go:build !debug_trace
// +build !debug_trace

// Trace logging compiles to no-ops unless the debug_trace build tag is set:
// the per-buffer call sites are too hot to pay for formatting on every unit.

package logger

import (
	"context"
)

// Trace is just a shorthand for Log(ctx, logger.LevelTrace, ...)
func Trace(ctx context.Context, values ...any) {}

// Tracef is just a shorthand for Logf(ctx, logger.LevelTrace, ...)
func Tracef(ctx context.Context, format string, args ...any) {}
