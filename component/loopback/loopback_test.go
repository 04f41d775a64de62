package loopback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwcodec/component"
)

func newStartedDecoder(t *testing.T, f Factory) *Component {
	ctx := context.Background()
	c, err := New(ctx, component.Config{
		MIMEType:    "video/avc",
		Width:       64,
		Height:      48,
		ColorFormat: component.ColorFormatYUV420SemiPlanar,
	}, f)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Destroy(ctx) })
	return c
}

func queueOne(t *testing.T, c *Component, payload []byte, pts int64, flags component.Flags) {
	t.Helper()
	ctx := context.Background()
	slot, err := c.DequeueInputSlot(ctx, time.Second)
	require.NoError(t, err)
	buf, err := c.InputBuffer(slot.Index)
	require.NoError(t, err)
	require.GreaterOrEqual(t, slot.Capacity, len(payload))
	copy(buf, payload)
	require.NoError(t, c.QueueInputSlot(ctx, slot.Index, len(payload), pts, flags))
}

func dequeueUntilSlot(t *testing.T, c *Component) component.OutputEvent {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Second)
	sawFormatChange := false
	for time.Now().Before(deadline) {
		ev, err := c.DequeueOutputSlot(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		switch ev.Kind {
		case component.OutputEventSlot:
			return ev
		case component.OutputEventFormatChanged:
			sawFormatChange = true
			_, err := c.OutputFormat()
			require.NoError(t, err)
		case component.OutputEventTryAgainLater:
		}
	}
	t.Fatalf("no output slot within the deadline (sawFormatChange=%v)", sawFormatChange)
	return component.OutputEvent{}
}

func TestDecoderAnnouncesFormatBeforeFirstFrame(t *testing.T) {
	ctx := context.Background()
	c := newStartedDecoder(t, Factory{})

	queueOne(t, c, []byte{1, 2, 3}, 42, 0)

	ev, err := c.DequeueOutputSlot(ctx, time.Second)
	require.NoError(t, err)
	for ev.Kind == component.OutputEventTryAgainLater {
		ev, err = c.DequeueOutputSlot(ctx, time.Second)
		require.NoError(t, err)
	}
	require.Equal(t, component.OutputEventFormatChanged, ev.Kind)

	format, err := c.OutputFormat()
	require.NoError(t, err)
	require.EqualValues(t, 64, format.Width)
	require.EqualValues(t, 48, format.Height)
	require.EqualValues(t, 64, format.Stride)
	require.EqualValues(t, 48, format.PlaneHeight)

	ev = dequeueUntilSlot(t, c)
	require.EqualValues(t, 42, ev.Info.PTS)
	require.Equal(t, 64*48*3/2, ev.Info.Size)

	data, err := c.OutputBuffer(ev.Slot)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data[:3])

	require.NoError(t, c.ReleaseOutputSlot(ev.Slot, false))
}

func TestBackpressureWhenOutputSlotsAreOutstanding(t *testing.T) {
	ctx := context.Background()
	c := newStartedDecoder(t, Factory{InputSlotCount: 2, OutputSlotCount: 2})

	queueOne(t, c, []byte{1}, 1, 0)
	queueOne(t, c, []byte{2}, 2, 0)

	ev1 := dequeueUntilSlot(t, c)
	ev2 := dequeueUntilSlot(t, c)

	// both output slots are outstanding; a third frame cannot come out
	queueOne(t, c, []byte{3}, 3, 0)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ev, err := c.DequeueOutputSlot(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		require.NotEqual(t, component.OutputEventSlot, ev.Kind)
	}

	// recycling one slot unblocks the worker
	require.NoError(t, c.ReleaseOutputSlot(ev1.Slot, false))
	ev3 := dequeueUntilSlot(t, c)
	require.EqualValues(t, 3, ev3.Info.PTS)

	require.NoError(t, c.ReleaseOutputSlot(ev2.Slot, false))
	require.NoError(t, c.ReleaseOutputSlot(ev3.Slot, false))
}

func TestEndOfStreamPropagates(t *testing.T) {
	c := newStartedDecoder(t, Factory{})

	queueOne(t, c, nil, 0, component.FlagEndOfStream)

	ev := dequeueUntilSlot(t, c)
	require.Equal(t, 0, ev.Info.Size)
	require.True(t, ev.Info.Flags.Has(component.FlagEndOfStream))
	require.NoError(t, c.ReleaseOutputSlot(ev.Slot, false))
}

func TestEncoderEmitsConfigFirst(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, component.Config{
		MIMEType:    "video/avc",
		Encoder:     true,
		Width:       64,
		Height:      48,
		ColorFormat: component.ColorFormatYUV420SemiPlanar,
	}, Factory{})
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Destroy(ctx) })

	frame := make([]byte, 64*48*3/2)
	queueOne(t, c, frame, 0, 0)

	ev := dequeueUntilSlot(t, c)
	require.True(t, ev.Info.Flags.Has(component.FlagCodecConfig))
	require.Equal(t, len(configPayload), ev.Info.Size)
	require.NoError(t, c.ReleaseOutputSlot(ev.Slot, false))

	ev = dequeueUntilSlot(t, c)
	require.False(t, ev.Info.Flags.Has(component.FlagCodecConfig))
	require.True(t, ev.Info.Flags.Has(component.FlagSyncFrame))
	require.Equal(t, len(frame), ev.Info.Size)
	require.NoError(t, c.ReleaseOutputSlot(ev.Slot, false))
}

func TestReleaseAfterDestroyIsANoOp(t *testing.T) {
	ctx := context.Background()
	c := newStartedDecoder(t, Factory{})

	queueOne(t, c, []byte{1}, 1, 0)
	ev := dequeueUntilSlot(t, c)

	require.NoError(t, c.Destroy(ctx))
	require.NoError(t, c.ReleaseOutputSlot(ev.Slot, false))
}

func TestFlushInvalidatesInFlightWork(t *testing.T) {
	ctx := context.Background()
	c := newStartedDecoder(t, Factory{})

	queueOne(t, c, []byte{1}, 1, 0)
	queueOne(t, c, []byte{2}, 2, 0)
	require.NoError(t, c.Flush(ctx))

	// everything queued before the flush was dropped; the pools are intact
	slot, err := c.DequeueInputSlot(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, c.QueueInputSlot(ctx, slot.Index, 0, 0, component.FlagEndOfStream))
	ev := dequeueUntilSlot(t, c)
	require.True(t, ev.Info.Flags.Has(component.FlagEndOfStream))
	require.NoError(t, c.ReleaseOutputSlot(ev.Slot, false))
}

func TestDestroyShutsTheComponentDown(t *testing.T) {
	ctx := context.Background()
	c := newStartedDecoder(t, Factory{})

	require.NoError(t, c.Destroy(ctx))

	require.Error(t, c.Start(ctx))
	_, err := c.DequeueInputSlot(ctx, 10*time.Millisecond)
	require.Error(t, err)
}

func TestDequeueInputTimesOut(t *testing.T) {
	ctx := context.Background()
	c := newStartedDecoder(t, Factory{InputSlotCount: 1, OutputSlotCount: 1})

	slot, err := c.DequeueInputSlot(ctx, time.Second)
	require.NoError(t, err)
	_ = slot

	_, err = c.DequeueInputSlot(ctx, 10*time.Millisecond)
	require.ErrorIs(t, err, component.ErrWouldBlock)
}
