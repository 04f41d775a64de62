package hwcodec

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/hwcodec/component"
)

// ErrNoInputSlot is returned by Submit when no input slot freed up within the
// configured timeout. It is transient: the unit was not consumed and may be
// resubmitted as-is.
type ErrNoInputSlot struct {
	Timeout time.Duration
}

func (e ErrNoInputSlot) Error() string {
	return fmt.Sprintf("no free input slot became available within %s", e.Timeout)
}

// ErrInvalidState is returned when an operation is attempted from a lifecycle
// state that does not permit it.
type ErrInvalidState struct {
	State State
	Op    string
}

func (e ErrInvalidState) Error() string {
	return fmt.Sprintf("cannot %s while in state '%s'", e.Op, e.State)
}

// ErrConfiguration is a fatal (non-retryable) configuration error.
type ErrConfiguration struct {
	Err error
}

func (e ErrConfiguration) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e ErrConfiguration) Unwrap() error {
	return e.Err
}

// ErrUnsupportedColorFormat is returned when the component reports a color
// format the pipeline does not recognize.
type ErrUnsupportedColorFormat struct {
	ColorFormat int32
}

func (e ErrUnsupportedColorFormat) Error() string {
	return fmt.Sprintf("unsupported color format: %d", e.ColorFormat)
}

// ErrUnexpectedStatus is returned when the component reports an output event
// the pipeline does not understand. It is fatal for the call, but the caller
// decides whether to abort the pipeline.
type ErrUnexpectedStatus struct {
	Event component.OutputEventKind
}

func (e ErrUnexpectedStatus) Error() string {
	return fmt.Sprintf("unexpected output event: %s", e.Event)
}

// ErrComponent wraps a failure of the hardware component itself, so that
// callers can distinguish "this hardware path is unavailable" from input
// malformation. Slot is negative when no slot is involved.
type ErrComponent struct {
	Stage string
	Slot  component.SlotIndex
	Err   error
}

func (e ErrComponent) Error() string {
	if e.Slot < 0 {
		return fmt.Sprintf("component failure at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("component failure at %s (slot %d): %v", e.Stage, e.Slot, e.Err)
}

func (e ErrComponent) Unwrap() error {
	return e.Err
}

func componentErr(stage string, err error) ErrComponent {
	return ErrComponent{Stage: stage, Slot: -1, Err: err}
}

func componentSlotErr(stage string, slot component.SlotIndex, err error) ErrComponent {
	return ErrComponent{Stage: stage, Slot: slot, Err: err}
}
