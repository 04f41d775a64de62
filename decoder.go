package hwcodec

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/hwcodec/component"
)

// Decoder is a Pipeline specialized for compressed-in, raw-out sessions.
type Decoder struct {
	*Pipeline
}

// NewDecoder creates a decoding pipeline for the given descriptor.
func NewDecoder(
	ctx context.Context,
	desc Descriptor,
	cfg Config,
	factory component.Factory,
) (*Decoder, error) {
	if desc.Kind == KindUndefined {
		desc.Kind = KindDecoder
	}
	if desc.Kind != KindDecoder {
		return nil, ErrConfiguration{Err: fmt.Errorf("descriptor %s is not a decoder", desc)}
	}
	p, err := New(ctx, desc, cfg, factory)
	if err != nil {
		return nil, err
	}
	return &Decoder{Pipeline: p}, nil
}

// SubmitPacket submits one compressed access unit.
func (d *Decoder) SubmitPacket(ctx context.Context, data []byte, pts int64) error {
	return d.Submit(ctx, Unit{Data: data, PTS: pts})
}

// PollFrame retrieves the next decoded frame.
func (d *Decoder) PollFrame(ctx context.Context) (*Buffer, PollOutcome, error) {
	return d.Poll(ctx)
}
