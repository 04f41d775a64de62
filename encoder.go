package hwcodec

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/hwcodec/component"
)

// Encoder is a Pipeline specialized for raw-in, compressed-out sessions.
type Encoder struct {
	*Pipeline
}

// NewEncoder creates an encoding pipeline for the given descriptor.
func NewEncoder(
	ctx context.Context,
	desc Descriptor,
	cfg Config,
	factory component.Factory,
) (*Encoder, error) {
	if desc.Kind == KindUndefined {
		desc.Kind = KindEncoder
	}
	if desc.Kind != KindEncoder {
		return nil, ErrConfiguration{Err: fmt.Errorf("descriptor %s is not an encoder", desc)}
	}
	p, err := New(ctx, desc, cfg, factory)
	if err != nil {
		return nil, err
	}
	return &Encoder{Pipeline: p}, nil
}

// SubmitFrame submits one raw frame.
func (e *Encoder) SubmitFrame(ctx context.Context, data []byte, pts int64) error {
	return e.Submit(ctx, Unit{Data: data, PTS: pts})
}

// PollPacket retrieves the next compressed unit. A buffer with the sync
// flag set carries a sync frame; ExtraData carries parameter sets produced
// since the previous compressed unit.
func (e *Encoder) PollPacket(ctx context.Context) (*Buffer, PollOutcome, error) {
	return e.Poll(ctx)
}

// RequestSyncFrame marks the next submitted frame as a sync-frame request.
func (e *Encoder) RequestSyncFrame(ctx context.Context, data []byte, pts int64) error {
	return e.Submit(ctx, Unit{Data: data, PTS: pts, Flags: component.FlagSyncFrame})
}
