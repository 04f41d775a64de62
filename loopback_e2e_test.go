package hwcodec_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwcodec"
	"github.com/xaionaro-go/hwcodec/component"
	"github.com/xaionaro-go/hwcodec/component/loopback"
)

// pollReady keeps polling until a buffer is ready, another terminal outcome
// shows up, or the deadline passes. The loopback worker is asynchronous, so
// try-again outcomes are expected while it catches up.
func pollReady(t *testing.T, p *hwcodec.Pipeline) (*hwcodec.Buffer, hwcodec.PollOutcome) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		buf, outcome, err := p.Poll(ctx)
		require.NoError(t, err)
		switch outcome {
		case hwcodec.PollOutcomeReady, hwcodec.PollOutcomeEndOfStream:
			return buf, outcome
		}
	}
	t.Fatal("no output within the deadline")
	return nil, hwcodec.PollOutcomeUndefined
}

func submitRetrying(t *testing.T, p *hwcodec.Pipeline, unit hwcodec.Unit) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		err := p.Submit(ctx, unit)
		if err == nil {
			return
		}
		var noSlot hwcodec.ErrNoInputSlot
		require.True(t, errors.As(err, &noSlot), "unexpected error: %v", err)
	}
	t.Fatal("no input slot within the deadline")
}

func TestLoopbackDecodeRoundtrip(t *testing.T) {
	ctx := context.Background()

	decoder, err := hwcodec.NewDecoder(ctx, hwcodec.DescriptorH264Decoder, hwcodec.Config{
		Width:                640,
		Height:               360,
		InputDequeueTimeout:  100 * time.Millisecond,
		OutputDequeueTimeout: 10 * time.Millisecond,
	}, loopback.Factory{})
	require.NoError(t, err)
	defer decoder.Close(ctx)
	require.NoError(t, decoder.Start(ctx))

	payloads := [][]byte{
		{0x00, 0x00, 0x00, 0x01, 0x65, 0x11},
		{0x00, 0x00, 0x00, 0x01, 0x41, 0x22},
		{0x00, 0x00, 0x00, 0x01, 0x41, 0x33},
	}
	for i, payload := range payloads {
		submitRetrying(t, decoder.Pipeline, hwcodec.Unit{Data: payload, PTS: int64(i) * 33333})
	}

	for i, payload := range payloads {
		buf, outcome := pollReady(t, decoder.Pipeline)
		require.Equal(t, hwcodec.PollOutcomeReady, outcome)
		require.EqualValues(t, int64(i)*33333, buf.PTS())

		fs, ok := buf.Format()
		require.True(t, ok)
		require.Equal(t, 640, fs.Stride)
		require.Equal(t, 368, fs.PlaneHeight)
		require.Equal(t, 640*368*3/2, buf.Size())

		planes := buf.Planes()
		require.Len(t, planes, 2)
		require.True(t, bytes.HasPrefix(planes[0].Data, payload))
		buf.Release(ctx)
	}

	fs, ok := decoder.FormatState()
	require.True(t, ok)
	require.Equal(t, 640, fs.Width)

	require.NoError(t, decoder.Drain(ctx, func(ctx context.Context, buf *hwcodec.Buffer) error {
		buf.Release(ctx)
		return nil
	}))
}

func TestLoopbackEncodeAttachesConfigPayload(t *testing.T) {
	ctx := context.Background()

	encoder, err := hwcodec.NewEncoder(ctx, hwcodec.DescriptorH264Encoder, hwcodec.Config{
		Width:                640,
		Height:               360,
		BitRate:              4_000_000,
		InputDequeueTimeout:  100 * time.Millisecond,
		OutputDequeueTimeout: 10 * time.Millisecond,
	}, loopback.Factory{})
	require.NoError(t, err)
	defer encoder.Close(ctx)
	require.NoError(t, encoder.Start(ctx))

	frame := make([]byte, 640*368*3/2)
	for i := range frame {
		frame[i] = byte(i)
	}
	submitRetrying(t, encoder.Pipeline, hwcodec.Unit{Data: frame, PTS: 0})

	buf, outcome := pollReady(t, encoder.Pipeline)
	require.Equal(t, hwcodec.PollOutcomeReady, outcome)
	require.NotEmpty(t, buf.ExtraData(), "the first compressed unit must carry the parameter sets")
	require.True(t, buf.Flags().Has(component.FlagSyncFrame))
	require.Equal(t, len(frame), buf.Size())
	buf.Release(ctx)

	// parameter sets are attached only once
	submitRetrying(t, encoder.Pipeline, hwcodec.Unit{Data: frame, PTS: 33333})
	buf, outcome = pollReady(t, encoder.Pipeline)
	require.Equal(t, hwcodec.PollOutcomeReady, outcome)
	require.Empty(t, buf.ExtraData())
	buf.Release(ctx)

	require.NoError(t, encoder.Drain(ctx, func(ctx context.Context, buf *hwcodec.Buffer) error {
		buf.Release(ctx)
		return nil
	}))
}
