package hwcodec

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/hwcodec/logger"
	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/hwcodec/component"
	"github.com/xaionaro-go/hwcodec/internal"
	"github.com/xaionaro-go/typing"
)

// PollOutcome classifies the result of one Poll call.
type PollOutcome int

const (
	PollOutcomeUndefined PollOutcome = iota

	// PollOutcomeReady: a Buffer was produced.
	PollOutcomeReady

	// PollOutcomeTryAgain: no output within the timeout; poll again later.
	PollOutcomeTryAgain

	// PollOutcomeFormatChanged: the output geometry changed and no slot is
	// ready yet; re-read it via FormatState.
	PollOutcomeFormatChanged

	// PollOutcomeEndOfStream: the component drained everything submitted
	// before the end-of-stream marker. No further output will arrive.
	PollOutcomeEndOfStream

	EndOfPollOutcome
)

func (o PollOutcome) String() string {
	switch o {
	case PollOutcomeUndefined:
		return "undefined"
	case PollOutcomeReady:
		return "ready"
	case PollOutcomeTryAgain:
		return "try_again"
	case PollOutcomeFormatChanged:
		return "format_changed"
	case PollOutcomeEndOfStream:
		return "end_of_stream"
	}
	return fmt.Sprintf("unknown_%d", int(o))
}

// maxPollEvents bounds how many informational events one Poll call absorbs
// before giving up on a misbehaving component.
const maxPollEvents = 128

// Poll retrieves the next ready output as a zero-copy Buffer. The buffer
// must be Release-d (from any goroutine) to recycle its slot; a component
// with all output slots outstanding stops producing until one comes back.
//
// A non-Ready outcome comes with a nil buffer. Notifications (format or pool
// changes) are absorbed internally; the caller only observes
// PollOutcomeFormatChanged when a geometry change was the sole product of
// the call.
func (p *Pipeline) Poll(ctx context.Context) (_ *Buffer, _outcome PollOutcome, _err error) {
	logger.Tracef(ctx, "Poll")
	defer func() { logger.Tracef(ctx, "/Poll: %s, %v", _outcome, _err) }()
	var (
		buf     *Buffer
		outcome PollOutcome
		err     error
	)
	p.locker.Do(ctx, func() {
		buf, outcome, err = p.pipelineInternals.poll(ctx)
	})
	return buf, outcome, err
}

func (p *pipelineInternals) poll(ctx context.Context) (*Buffer, PollOutcome, error) {
	switch p.state {
	case StateRunning, StateFlushed:
	default:
		return nil, PollOutcomeUndefined, ErrInvalidState{State: p.state, Op: "poll"}
	}
	if p.sawOutputEOS {
		return nil, PollOutcomeEndOfStream, nil
	}

	formatChanged := false
	for attempt := 0; attempt < maxPollEvents; attempt++ {
		ev, err := p.compRef.comp.DequeueOutputSlot(ctx, p.Config.OutputDequeueTimeout)
		if err != nil {
			return nil, PollOutcomeUndefined, componentErr("dequeue_output", err)
		}

		switch ev.Kind {
		case component.OutputEventSlot:
			if ev.Info.Flags.Has(component.FlagEndOfStream) {
				p.sawOutputEOS = true
				p.compRef.releaseSlot(ctx, ev.Slot, false)
				logger.Debugf(ctx, "the component reported end of stream")
				return nil, PollOutcomeEndOfStream, nil
			}
			if p.Descriptor.Kind == KindEncoder && ev.Info.Flags.Has(component.FlagCodecConfig) {
				if err := p.captureConfigPayload(ctx, ev); err != nil {
					return nil, PollOutcomeUndefined, err
				}
				continue
			}
			return p.wrapOutputSlot(ctx, ev)
		case component.OutputEventTryAgainLater:
			if formatChanged {
				return nil, PollOutcomeFormatChanged, nil
			}
			return nil, PollOutcomeTryAgain, nil
		case component.OutputEventFormatChanged:
			if err := p.refreshFormatState(ctx); err != nil {
				return nil, PollOutcomeUndefined, err
			}
			formatChanged = true
		case component.OutputEventBuffersChanged:
			logger.Debugf(ctx, "the output slot pool was reallocated")
		default:
			return nil, PollOutcomeUndefined, ErrUnexpectedStatus{Event: ev.Kind}
		}
	}
	return nil, PollOutcomeUndefined, componentErr("dequeue_output", fmt.Errorf("the component produced %d notifications without a slot", maxPollEvents))
}

// captureConfigPayload copies an encoder parameter-set slot aside and
// recycles the slot immediately; the payload attaches to the next packet.
func (p *pipelineInternals) captureConfigPayload(ctx context.Context, ev component.OutputEvent) error {
	data, err := p.compRef.comp.OutputBuffer(ev.Slot)
	if err != nil {
		p.compRef.releaseSlot(ctx, ev.Slot, false)
		return componentSlotErr("output_buffer", ev.Slot, err)
	}
	if ev.Info.Offset < 0 || ev.Info.Size < 0 || ev.Info.Offset+ev.Info.Size > len(data) {
		p.compRef.releaseSlot(ctx, ev.Slot, false)
		return componentSlotErr("output_buffer", ev.Slot, fmt.Errorf(
			"reported region [%d:%d) is outside the %d-byte slot",
			ev.Info.Offset, ev.Info.Offset+ev.Info.Size, len(data),
		))
	}
	payload := make([]byte, ev.Info.Size)
	copy(payload, data[ev.Info.Offset:ev.Info.Offset+ev.Info.Size])
	// A fresher parameter-set payload supersedes an unclaimed older one.
	p.pendingConfigPayload = typing.Opt(payload)
	p.compRef.releaseSlot(ctx, ev.Slot, false)
	logger.Debugf(ctx, "captured a %d-byte codec configuration payload", len(payload))
	return nil
}

// wrapOutputSlot converts one dequeued slot into a Buffer. The slot is
// recycled here on every path that does not hand it to the caller.
func (p *pipelineInternals) wrapOutputSlot(
	ctx context.Context,
	ev component.OutputEvent,
) (*Buffer, PollOutcome, error) {
	data, err := p.compRef.comp.OutputBuffer(ev.Slot)
	if err != nil {
		p.compRef.releaseSlot(ctx, ev.Slot, false)
		return nil, PollOutcomeUndefined, componentSlotErr("output_buffer", ev.Slot, err)
	}

	var format *FormatState
	if p.Descriptor.Kind == KindDecoder {
		if p.formatState == nil {
			logger.Debugf(ctx, "a slot arrived before any format notification; querying the geometry")
			if err := p.refreshFormatState(ctx); err != nil {
				p.compRef.releaseSlot(ctx, ev.Slot, false)
				return nil, PollOutcomeUndefined, err
			}
		}
		format = p.formatState
	}

	var extraData []byte
	if p.Descriptor.Kind == KindEncoder && p.pendingConfigPayload.IsSet() {
		extraData = p.pendingConfigPayload.Get()
		p.pendingConfigPayload = typing.Optional[[]byte]{}
	}

	buf, err := newBuffer(ctx, ev.Slot, data, ev.Info, format, extraData)
	if err != nil {
		p.compRef.releaseSlot(ctx, ev.Slot, false)
		return nil, PollOutcomeUndefined, componentSlotErr("wrap", ev.Slot, err)
	}
	buf.comp = p.compRef.ref()
	return buf, PollOutcomeReady, nil
}

// refreshFormatState merges a format report into the cached geometry. Zero
// fields in the report mean "unchanged"; absent stride and plane height fall
// back to the visible dimensions.
func (p *pipelineInternals) refreshFormatState(ctx context.Context) error {
	report, err := p.compRef.comp.OutputFormat()
	if err != nil {
		return componentErr("output_format", err)
	}

	var fs FormatState
	if p.formatState != nil {
		fs = *p.formatState
	} else {
		fs = FormatState{
			Width:       p.Config.Width,
			Height:      p.Config.Height,
			PixelFormat: p.Config.PixelFormat,
		}
	}

	if report.Width != 0 {
		fs.Width = report.Width
	}
	if report.Height != 0 {
		fs.Height = report.Height
	}
	if report.Stride != 0 {
		fs.Stride = report.Stride
	}
	if report.PlaneHeight != 0 {
		fs.PlaneHeight = report.PlaneHeight
	}
	if report.ColorFormat != 0 {
		pf := PixelFormatFromColorFormat(report.ColorFormat)
		if pf == PixelFormatUndefined {
			return ErrUnsupportedColorFormat{ColorFormat: report.ColorFormat}
		}
		fs.PixelFormat = pf
	}
	if fs.Stride == 0 {
		fs.Stride = fs.Width
	}
	if fs.PlaneHeight == 0 {
		fs.PlaneHeight = fs.Height
	}
	internal.Assert(ctx, fs.Stride >= fs.Width && fs.PlaneHeight >= fs.Height, "format", fs)

	logger.Debugf(ctx, "the output format is now %s", fs)
	xatomic.StorePointer(&p.formatState, &fs)
	return nil
}
