// Package componenttest provides a deterministic, fully scripted
// implementation of the component boundary for unit tests: no goroutines, no
// timing, every output event is pre-programmed.
package componenttest

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/hwcodec/component"
)

// OutputStep is one scripted result of DequeueOutputSlot.
type OutputStep struct {
	Event component.OutputEvent
	Err   error
}

// QueuedInput is one recorded QueueInputSlot call.
type QueuedInput struct {
	Slot  component.SlotIndex
	Size  int
	Data  []byte
	PTS   int64
	Flags component.Flags
}

// Fake implements component.Component with scripted behavior.
//
// Input slots are handed out round-robin and recycled as soon as they are
// queued. Output events are consumed from Script in order; an exhausted
// script reports try-again-later.
type Fake struct {
	InputSlotCount int
	InputCapacity  int

	// InputDenials makes the next N DequeueInputSlot calls report
	// backpressure.
	InputDenials int

	Script     []OutputStep
	OutputData map[component.SlotIndex][]byte
	Format     component.Format
	FormatErr  error

	StartErr   error
	StopErr    error
	FlushErr   error
	DestroyErr error
	QueueErr   error
	ReleaseErr error

	Started   int
	Stopped   int
	Flushed   int
	Destroyed int
	Queued    []QueuedInput
	Released  []component.SlotIndex

	scriptPos  int
	freeInputs []component.SlotIndex
	inputBufs  map[component.SlotIndex][]byte
}

var _ component.Component = (*Fake)(nil)

// Factory hands out one pre-built Fake.
type Factory struct {
	Fake *Fake
	Err  error
}

var _ component.Factory = Factory{}

func (f Factory) NewComponent(ctx context.Context, cfg component.Config) (component.Component, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Fake, nil
}

func (f *Fake) String() string {
	return "Fake"
}

func (f *Fake) init() {
	if f.inputBufs != nil {
		return
	}
	if f.InputSlotCount == 0 {
		f.InputSlotCount = 4
	}
	if f.InputCapacity == 0 {
		f.InputCapacity = 1 << 16
	}
	f.inputBufs = make(map[component.SlotIndex][]byte, f.InputSlotCount)
	for i := 0; i < f.InputSlotCount; i++ {
		slot := component.SlotIndex(i)
		f.inputBufs[slot] = make([]byte, f.InputCapacity)
		f.freeInputs = append(f.freeInputs, slot)
	}
}

func (f *Fake) Start(ctx context.Context) error {
	f.init()
	f.Started++
	return f.StartErr
}

func (f *Fake) Stop(ctx context.Context) error {
	f.Stopped++
	return f.StopErr
}

func (f *Fake) Flush(ctx context.Context) error {
	f.Flushed++
	return f.FlushErr
}

func (f *Fake) Destroy(ctx context.Context) error {
	f.Destroyed++
	return f.DestroyErr
}

func (f *Fake) DequeueInputSlot(ctx context.Context, timeout time.Duration) (component.InputSlot, error) {
	f.init()
	if f.InputDenials > 0 {
		f.InputDenials--
		return component.InputSlot{}, component.ErrWouldBlock
	}
	if len(f.freeInputs) == 0 {
		return component.InputSlot{}, component.ErrWouldBlock
	}
	slot := f.freeInputs[0]
	f.freeInputs = f.freeInputs[1:]
	return component.InputSlot{Index: slot, Capacity: f.InputCapacity}, nil
}

func (f *Fake) InputBuffer(slot component.SlotIndex) ([]byte, error) {
	f.init()
	buf, ok := f.inputBufs[slot]
	if !ok {
		return nil, fmt.Errorf("unknown input slot %d", slot)
	}
	return buf, nil
}

func (f *Fake) QueueInputSlot(ctx context.Context, slot component.SlotIndex, size int, pts int64, flags component.Flags) error {
	f.init()
	if f.QueueErr != nil {
		return f.QueueErr
	}
	data := make([]byte, size)
	copy(data, f.inputBufs[slot][:size])
	f.Queued = append(f.Queued, QueuedInput{Slot: slot, Size: size, Data: data, PTS: pts, Flags: flags})
	f.freeInputs = append(f.freeInputs, slot)
	return nil
}

func (f *Fake) DequeueOutputSlot(ctx context.Context, timeout time.Duration) (component.OutputEvent, error) {
	if f.scriptPos >= len(f.Script) {
		return component.OutputEvent{Kind: component.OutputEventTryAgainLater}, nil
	}
	step := f.Script[f.scriptPos]
	f.scriptPos++
	if step.Err != nil {
		return component.OutputEvent{}, step.Err
	}
	return step.Event, nil
}

func (f *Fake) OutputBuffer(slot component.SlotIndex) ([]byte, error) {
	if data, ok := f.OutputData[slot]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("no data behind output slot %d", slot)
}

func (f *Fake) ReleaseOutputSlot(slot component.SlotIndex, render bool) error {
	f.Released = append(f.Released, slot)
	return f.ReleaseErr
}

func (f *Fake) OutputFormat() (component.Format, error) {
	return f.Format, f.FormatErr
}
