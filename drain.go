package hwcodec

import (
	"context"
	"errors"
	"io"

	"github.com/xaionaro-go/hwcodec/logger"
)

// Drain submits an end-of-stream marker (unless one was already accepted)
// and polls until the component reports end of stream, invoking cb for every
// remaining Buffer. The callback owns each buffer and must Release it.
//
// Drain returns when the component is fully drained, ctx is done, or the
// callback fails.
func (p *Pipeline) Drain(
	ctx context.Context,
	cb func(ctx context.Context, buf *Buffer) error,
) (_err error) {
	logger.Debugf(ctx, "Drain")
	defer func() { logger.Debugf(ctx, "/Drain: %v", _err) }()

	for {
		err := p.Submit(ctx, EndOfStreamUnit())
		if err == nil || errors.Is(err, io.EOF) {
			break
		}
		var noSlot ErrNoInputSlot
		if !errors.As(err, &noSlot) {
			return err
		}
		// The input pool can stay exhausted while output slots pile up;
		// drain some output and retry the marker.
		done, err := p.drainOnce(ctx, cb)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := p.drainOnce(ctx, cb)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (p *Pipeline) drainOnce(
	ctx context.Context,
	cb func(ctx context.Context, buf *Buffer) error,
) (bool, error) {
	buf, outcome, err := p.Poll(ctx)
	if err != nil {
		return false, err
	}
	switch outcome {
	case PollOutcomeReady:
		if err := cb(ctx, buf); err != nil {
			return false, err
		}
	case PollOutcomeEndOfStream:
		return true, nil
	}
	return false, nil
}
