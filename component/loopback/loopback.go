// Package loopback provides an in-memory implementation of the component
// boundary: a pass-through "codec" with real slot pools, real backpressure
// and the real event protocol (format announcement, codec-config emission,
// end-of-stream propagation), but no hardware behind it.
//
// It exists for tests and for exercising a pipeline on hosts without a
// device, and doubles as the executable description of how a component is
// expected to behave.
package loopback

import (
	"context"
	"fmt"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/hwcodec/logger"
	"github.com/xaionaro-go/hwcodec/component"
	"github.com/xaionaro-go/hwcodec/internal"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

const (
	DefaultInputSlotCount  = 4
	DefaultOutputSlotCount = 4

	// compressedSlotCapacity is the capacity of slots on the compressed side
	// of the loopback (decoder input, encoder output).
	compressedSlotCapacity = 1 << 20

	// planeAlignment mimics hardware padding of the raw geometry.
	planeAlignment = 16
)

// configPayload is the synthetic parameter-set blob the loopback "encoder"
// emits before its first compressed unit.
var configPayload = []byte{
	0, 0, 0, 1, 0x67, 0x42, 0x00, 0x1E,
	0, 0, 0, 1, 0x68, 0xCE, 0x3C, 0x80,
}

type queuedInput struct {
	gen   int64
	slot  component.SlotIndex
	size  int
	pts   int64
	flags component.Flags
}

// Component is the in-memory pass-through codec.
type Component struct {
	cfg    component.Config
	closer *astikit.Closer

	inputBufs  [][]byte
	outputBufs [][]byte

	freeInput  chan component.SlotIndex
	pending    chan queuedInput
	freeOutput chan component.SlotIndex
	ready      chan component.OutputEvent

	locker          xsync.Mutex
	format          component.Format
	formatAnnounced bool
	configEmitted   bool
	frameEmitted    bool
	flushGen        int64
	workerCancel    context.CancelFunc

	started   atomic.Bool
	destroyed atomic.Bool
}

var _ component.Component = (*Component)(nil)

// Factory builds loopback components. The zero value uses the default slot
// pool sizes.
type Factory struct {
	InputSlotCount  int
	OutputSlotCount int
}

var _ component.Factory = Factory{}

func (f Factory) NewComponent(ctx context.Context, cfg component.Config) (component.Component, error) {
	return New(ctx, cfg, f)
}

// New creates a loopback component in the created (not yet started) state.
func New(ctx context.Context, cfg component.Config, f Factory) (_ret *Component, _err error) {
	logger.Debugf(ctx, "New(ctx, %s, %dx%d)", cfg.MIMEType, cfg.Width, cfg.Height)
	defer func() { logger.Debugf(ctx, "/New(ctx, %s, %dx%d): %v", cfg.MIMEType, cfg.Width, cfg.Height, _err) }()

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", cfg.Width, cfg.Height)
	}
	inCount := f.InputSlotCount
	if inCount == 0 {
		inCount = DefaultInputSlotCount
	}
	outCount := f.OutputSlotCount
	if outCount == 0 {
		outCount = DefaultOutputSlotCount
	}

	format := paddedFormat(cfg)
	rawSize := frameSize(format)

	inputCapacity, outputCapacity := compressedSlotCapacity, rawSize
	if cfg.Encoder {
		inputCapacity, outputCapacity = rawSize, compressedSlotCapacity
	}

	c := &Component{
		cfg:        cfg,
		closer:     astikit.NewCloser(),
		inputBufs:  make([][]byte, inCount),
		outputBufs: make([][]byte, outCount),
		freeInput:  make(chan component.SlotIndex, inCount),
		pending:    make(chan queuedInput, inCount),
		freeOutput: make(chan component.SlotIndex, outCount),
		// headroom for informational events that consume no slot
		ready:  make(chan component.OutputEvent, outCount+8),
		format: format,
	}
	for i := 0; i < inCount; i++ {
		c.inputBufs[i] = make([]byte, inputCapacity)
		c.freeInput <- component.SlotIndex(i)
	}
	for i := 0; i < outCount; i++ {
		c.outputBufs[i] = make([]byte, outputCapacity)
		c.freeOutput <- component.SlotIndex(i)
	}
	return c, nil
}

// paddedFormat derives the announced geometry from the configuration,
// padding the plane dimensions the way devices do.
func paddedFormat(cfg component.Config) component.Format {
	return component.Format{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Stride:      internal.AlignUp(cfg.Width, planeAlignment),
		PlaneHeight: internal.AlignUp(cfg.Height, planeAlignment),
		ColorFormat: cfg.ColorFormat,
	}
}

func frameSize(f component.Format) int {
	return f.Stride * f.PlaneHeight * 3 / 2
}

func (c *Component) String() string {
	kind := "decoder"
	if c.cfg.Encoder {
		kind = "encoder"
	}
	return fmt.Sprintf("Loopback(%s, %s)", kind, c.cfg.MIMEType)
}

func (c *Component) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()
	if c.destroyed.Load() {
		return fmt.Errorf("the component is destroyed")
	}
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("the component is already started")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.closer.Add(func() { cancel() })
	c.locker.Do(ctx, func() {
		c.workerCancel = cancel
	})
	observability.Go(ctx, func(ctx context.Context) {
		c.workerLoop(workerCtx)
	})
	return nil
}

func (c *Component) Stop(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Stop")
	defer func() { logger.Debugf(ctx, "/Stop: %v", _err) }()
	if !c.started.CompareAndSwap(true, false) {
		return fmt.Errorf("the component is not started")
	}
	c.locker.Do(ctx, func() {
		if c.workerCancel != nil {
			c.workerCancel()
			c.workerCancel = nil
		}
	})
	return nil
}

// Flush invalidates everything in flight: pending inputs go back to the free
// input pool, undelivered outputs go back to the free output pool. The
// announced format survives.
func (c *Component) Flush(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Flush")
	defer func() { logger.Debugf(ctx, "/Flush: %v", _err) }()
	c.locker.Do(ctx, func() {
		c.flushGen++
		c.frameEmitted = false
		for {
			select {
			case in := <-c.pending:
				c.freeInput <- in.slot
				continue
			default:
			}
			break
		}
		for {
			select {
			case ev := <-c.ready:
				if ev.Kind == component.OutputEventSlot {
					c.freeOutput <- ev.Slot
				}
				continue
			default:
			}
			break
		}
	})
	return nil
}

func (c *Component) Destroy(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Destroy")
	defer func() { logger.Debugf(ctx, "/Destroy: %v", _err) }()
	if !c.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	if c.started.Load() {
		_ = c.Stop(ctx)
	}
	return c.closer.Close()
}

func (c *Component) DequeueInputSlot(
	ctx context.Context,
	timeout time.Duration,
) (component.InputSlot, error) {
	if !c.started.Load() {
		return component.InputSlot{}, fmt.Errorf("the component is not started")
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case slot := <-c.freeInput:
		return component.InputSlot{Index: slot, Capacity: len(c.inputBufs[slot])}, nil
	case <-timer.C:
		return component.InputSlot{}, component.ErrWouldBlock
	case <-ctx.Done():
		return component.InputSlot{}, ctx.Err()
	}
}

func (c *Component) InputBuffer(slot component.SlotIndex) ([]byte, error) {
	if slot < 0 || int(slot) >= len(c.inputBufs) {
		return nil, fmt.Errorf("input slot %d is out of range", slot)
	}
	return c.inputBufs[slot], nil
}

func (c *Component) QueueInputSlot(
	ctx context.Context,
	slot component.SlotIndex,
	size int,
	pts int64,
	flags component.Flags,
) error {
	if slot < 0 || int(slot) >= len(c.inputBufs) {
		return fmt.Errorf("input slot %d is out of range", slot)
	}
	if size > len(c.inputBufs[slot]) {
		return fmt.Errorf("input size %d exceeds the slot capacity %d", size, len(c.inputBufs[slot]))
	}
	gen := xsync.DoR1(xsync.WithNoLogging(ctx, true), &c.locker, func() int64 {
		return c.flushGen
	})
	select {
	case c.pending <- queuedInput{gen: gen, slot: slot, size: size, pts: pts, flags: flags}:
		return nil
	default:
		// The pending channel has one seat per input slot, so a queued slot
		// always fits unless the caller double-queued one.
		return fmt.Errorf("input slot %d was queued twice", slot)
	}
}

func (c *Component) DequeueOutputSlot(
	ctx context.Context,
	timeout time.Duration,
) (component.OutputEvent, error) {
	if !c.started.Load() {
		return component.OutputEvent{}, fmt.Errorf("the component is not started")
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-c.ready:
		return ev, nil
	case <-timer.C:
		return component.OutputEvent{Kind: component.OutputEventTryAgainLater}, nil
	case <-ctx.Done():
		return component.OutputEvent{}, ctx.Err()
	}
}

func (c *Component) OutputBuffer(slot component.SlotIndex) ([]byte, error) {
	if slot < 0 || int(slot) >= len(c.outputBufs) {
		return nil, fmt.Errorf("output slot %d is out of range", slot)
	}
	return c.outputBufs[slot], nil
}

func (c *Component) ReleaseOutputSlot(slot component.SlotIndex, render bool) error {
	if c.destroyed.Load() {
		return nil
	}
	if slot < 0 || int(slot) >= len(c.outputBufs) {
		return fmt.Errorf("output slot %d is out of range", slot)
	}
	select {
	case c.freeOutput <- slot:
		return nil
	default:
		return fmt.Errorf("output slot %d is already free", slot)
	}
}

func (c *Component) OutputFormat() (component.Format, error) {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &c.locker, func() component.Format {
		return c.format
	}), nil
}

func (c *Component) workerLoop(ctx context.Context) {
	logger.Debugf(ctx, "workerLoop")
	defer logger.Debugf(ctx, "/workerLoop")
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-c.pending:
			c.process(ctx, in)
		}
	}
}

// process turns one queued input into output events. The output slot is
// acquired outside the locker: the acquisition may block until the consumer
// releases a buffer, and the locker must stay available to Flush meanwhile.
func (c *Component) process(ctx context.Context, in queuedInput) {
	if c.cfg.Encoder {
		c.processEncode(ctx, in)
		return
	}
	c.processDecode(ctx, in)
}

func (c *Component) processDecode(ctx context.Context, in queuedInput) {
	c.locker.Do(ctx, func() {
		if in.gen != c.flushGen {
			c.freeInput <- in.slot
			return
		}
		if !c.formatAnnounced {
			c.formatAnnounced = true
			c.ready <- component.OutputEvent{Kind: component.OutputEventFormatChanged}
		}
	})

	out, ok := c.acquireOutputSlot(ctx, in)
	if !ok {
		return
	}

	c.locker.Do(ctx, func() {
		if in.gen != c.flushGen {
			c.freeInput <- in.slot
			c.freeOutput <- out
			return
		}

		size := 0
		if in.size > 0 {
			// A "decoded frame" is the input payload padded to the full raw
			// frame geometry.
			size = frameSize(c.format)
			buf := c.outputBufs[out]
			n := copy(buf, c.inputBufs[in.slot][:in.size])
			for i := n; i < size; i++ {
				buf[i] = 0
			}
		}
		c.freeInput <- in.slot
		c.ready <- component.OutputEvent{
			Kind: component.OutputEventSlot,
			Slot: out,
			Info: component.BufferInfo{Size: size, PTS: in.pts, Flags: in.flags},
		}
	})
}

func (c *Component) processEncode(ctx context.Context, in queuedInput) {
	needConfig := xsync.DoR1(xsync.WithNoLogging(ctx, true), &c.locker, func() bool {
		return !c.configEmitted && in.size > 0 && in.gen == c.flushGen
	})
	if needConfig {
		out, ok := c.acquireOutputSlot(ctx, in)
		if !ok {
			return
		}
		c.locker.Do(ctx, func() {
			if in.gen != c.flushGen {
				c.freeOutput <- out
				return
			}
			c.configEmitted = true
			n := copy(c.outputBufs[out], configPayload)
			c.ready <- component.OutputEvent{
				Kind: component.OutputEventSlot,
				Slot: out,
				Info: component.BufferInfo{Size: n, Flags: component.FlagCodecConfig},
			}
		})
	}

	out, ok := c.acquireOutputSlot(ctx, in)
	if !ok {
		return
	}
	c.locker.Do(ctx, func() {
		if in.gen != c.flushGen {
			c.freeInput <- in.slot
			c.freeOutput <- out
			return
		}
		n := copy(c.outputBufs[out], c.inputBufs[in.slot][:in.size])
		flags := in.flags
		if in.size > 0 && !c.frameEmitted {
			flags |= component.FlagSyncFrame
		}
		if in.size > 0 {
			c.frameEmitted = true
		}
		c.freeInput <- in.slot
		c.ready <- component.OutputEvent{
			Kind: component.OutputEventSlot,
			Slot: out,
			Info: component.BufferInfo{Size: n, PTS: in.pts, Flags: flags},
		}
	})
}

func (c *Component) acquireOutputSlot(ctx context.Context, in queuedInput) (component.SlotIndex, bool) {
	select {
	case out := <-c.freeOutput:
		return out, true
	case <-ctx.Done():
		c.locker.Do(ctx, func() {
			c.freeInput <- in.slot
		})
		return 0, false
	}
}
