package hwcodec

import (
	"context"
	"errors"
	"io"

	"github.com/xaionaro-go/hwcodec/logger"
	"github.com/xaionaro-go/hwcodec/component"
	"github.com/xaionaro-go/hwcodec/internal"
	"github.com/xaionaro-go/hwcodec/reformatter"
)

// Submit copies one unit into a free input slot and hands the slot to the
// component.
//
// Returns ErrNoInputSlot when the component is backpressuring (the unit was
// not consumed and may be resubmitted as-is), and io.EOF after an
// end-of-stream unit was already accepted.
func (p *Pipeline) Submit(ctx context.Context, unit Unit) (_err error) {
	logger.Tracef(ctx, "Submit(ctx, %s)", unit)
	defer func() { logger.Tracef(ctx, "/Submit(ctx, %s): %v", unit, _err) }()
	var err error
	p.locker.Do(ctx, func() {
		err = p.pipelineInternals.submit(ctx, unit)
	})
	return err
}

func (p *pipelineInternals) submit(ctx context.Context, unit Unit) error {
	switch p.state {
	case StateRunning:
	case StateFlushed:
		// The first submission after a flush resumes the session.
		p.state = StateRunning
	default:
		return ErrInvalidState{State: p.state, Op: "submit"}
	}
	if p.eosSent {
		return io.EOF
	}

	if unit.IsEndOfStream() {
		if err := p.submitOne(ctx, reformatter.Unit{Flags: component.FlagEndOfStream}, true); err != nil {
			return err
		}
		p.eosSent = true
		return nil
	}

	subUnits := []reformatter.Unit{{Data: unit.Data, PTS: unit.PTS, Flags: unit.Flags}}
	if p.reformatter != nil {
		var err error
		subUnits, err = p.reformatter.Transform(ctx, subUnits[0])
		if err != nil {
			return err
		}
		if len(subUnits) == 0 {
			logger.Tracef(ctx, "the reformatter buffered the unit")
			if !unit.Flags.Has(component.FlagEndOfStream) {
				return nil
			}
			// The payload was absorbed, but the end-of-stream condition must
			// not be: forward it as a bare marker. The reformatter already
			// consumed the unit, so a slot shortage here cannot be rolled
			// back.
			if err := p.submitOne(ctx, reformatter.Unit{Flags: component.FlagEndOfStream}, false); err != nil {
				return err
			}
			p.eosSent = true
			return nil
		}
	}

	for idx, subUnit := range subUnits {
		if err := p.submitOne(ctx, subUnit, idx == 0); err != nil {
			return err
		}
	}

	if unit.Flags.Has(component.FlagEndOfStream) {
		p.eosSent = true
	}
	return nil
}

// submitOne pushes one sub-unit through a slot. A slot shortage on the first
// sub-unit is retryable; on any later one the group is already partially
// consumed and cannot be rolled back, so the shortage escalates.
func (p *pipelineInternals) submitOne(ctx context.Context, subUnit reformatter.Unit, first bool) error {
	slot, err := p.compRef.comp.DequeueInputSlot(ctx, p.Config.InputDequeueTimeout)
	switch {
	case errors.Is(err, component.ErrWouldBlock):
		if first {
			return ErrNoInputSlot{Timeout: p.Config.InputDequeueTimeout}
		}
		return componentErr("dequeue_input", err)
	case err != nil:
		return componentErr("dequeue_input", err)
	}

	if len(subUnit.Data) > 0 {
		internal.Assert(ctx, len(subUnit.Data) <= slot.Capacity, "unit size", len(subUnit.Data), "slot capacity", slot.Capacity)
		dst, err := p.compRef.comp.InputBuffer(slot.Index)
		if err != nil {
			return componentSlotErr("input_buffer", slot.Index, err)
		}
		copy(dst, subUnit.Data)
	}

	if err := p.compRef.comp.QueueInputSlot(ctx, slot.Index, len(subUnit.Data), subUnit.PTS, subUnit.Flags); err != nil {
		return componentSlotErr("queue_input", slot.Index, err)
	}
	logger.Tracef(ctx, "queued %d bytes into slot %d (pts:%d, flags:%s)", len(subUnit.Data), slot.Index, subUnit.PTS, subUnit.Flags)
	return nil
}
