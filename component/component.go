// Package component defines the boundary to an asynchronous hardware codec
// component: an externally-scheduled device that consumes input buffer slots
// and produces output buffer slots on its own schedule.
//
// All buffers crossing this boundary are identified by tagged slot handles,
// never by raw memory addresses. The device owns the slot pools; the
// application only borrows slots for the duration of a fill (input) or a
// read (output).
package component

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SlotIndex is an index into one of the component's slot pools.
type SlotIndex int32

// InputSlot is a free input slot handed out by DequeueInputSlot. Capacity is
// the size of the writable region behind the slot.
type InputSlot struct {
	Index    SlotIndex
	Capacity int
}

// BufferInfo describes the payload of an output slot.
type BufferInfo struct {
	Offset int
	Size   int
	PTS    int64 // microseconds
	Flags  Flags
}

// OutputEventKind classifies the result of DequeueOutputSlot.
type OutputEventKind int

const (
	OutputEventUndefined OutputEventKind = iota

	// OutputEventSlot: a slot is ready; Slot and Info are set. The slot is
	// owned by the caller until ReleaseOutputSlot.
	OutputEventSlot

	// OutputEventTryAgainLater: no output within the timeout.
	OutputEventTryAgainLater

	// OutputEventFormatChanged: the output geometry/color layout changed;
	// re-read it via OutputFormat before interpreting any further slot.
	OutputEventFormatChanged

	// OutputEventBuffersChanged: the output pool was reallocated;
	// informational only.
	OutputEventBuffersChanged

	EndOfOutputEventKind
)

func (k OutputEventKind) String() string {
	switch k {
	case OutputEventUndefined:
		return "undefined"
	case OutputEventSlot:
		return "slot"
	case OutputEventTryAgainLater:
		return "try_again_later"
	case OutputEventFormatChanged:
		return "format_changed"
	case OutputEventBuffersChanged:
		return "buffers_changed"
	}
	return fmt.Sprintf("unknown_%d", int(k))
}

// OutputEvent is the result of one DequeueOutputSlot call.
type OutputEvent struct {
	Kind OutputEventKind
	Slot SlotIndex
	Info BufferInfo
}

// ErrWouldBlock is returned by DequeueInputSlot when no input slot freed up
// within the given timeout. It is a backpressure signal, not a failure.
var ErrWouldBlock = errors.New("would block")

// Component is a handle to the hardware codec device.
//
// The component schedules input consumption and output production internally,
// effectively concurrently with the caller. ReleaseOutputSlot and Destroy may
// be invoked from any goroutine; a release against a stopped or destroyed
// component must be a safe no-op. All other methods are expected to be called
// from one goroutine at a time.
type Component interface {
	fmt.Stringer

	// Start makes the slot pools usable.
	Start(ctx context.Context) error

	// Stop halts processing. In-flight slots become invalid.
	Stop(ctx context.Context) error

	// Flush invalidates all in-flight slots and returns them to the free
	// pools. The output format is preserved.
	Flush(ctx context.Context) error

	// Destroy releases the device. No method may be called afterwards.
	Destroy(ctx context.Context) error

	// DequeueInputSlot acquires a free input slot, waiting at most timeout.
	// Returns ErrWouldBlock if none freed up in time.
	DequeueInputSlot(ctx context.Context, timeout time.Duration) (InputSlot, error)

	// InputBuffer returns the writable region behind an input slot acquired
	// via DequeueInputSlot.
	InputBuffer(slot SlotIndex) ([]byte, error)

	// QueueInputSlot submits a filled input slot. The slot returns to the
	// component's ownership immediately, regardless of the error.
	QueueInputSlot(ctx context.Context, slot SlotIndex, size int, pts int64, flags Flags) error

	// DequeueOutputSlot polls for a ready output slot, waiting at most
	// timeout. A non-nil error means the device failed; backpressure and
	// notifications are reported through the event kind instead.
	DequeueOutputSlot(ctx context.Context, timeout time.Duration) (OutputEvent, error)

	// OutputBuffer returns the readable region behind a dequeued output slot.
	OutputBuffer(slot SlotIndex) ([]byte, error)

	// ReleaseOutputSlot recycles an output slot into the component's free
	// pool. `render` asks the device to also display the buffer (ignored by
	// components without a display path).
	ReleaseOutputSlot(slot SlotIndex, render bool) error

	// OutputFormat reports the current output geometry and color format.
	OutputFormat() (Format, error)
}

// Factory constructs a Component for a given configuration.
type Factory interface {
	NewComponent(ctx context.Context, cfg Config) (Component, error)
}
