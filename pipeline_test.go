package hwcodec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwcodec/component"
	"github.com/xaionaro-go/hwcodec/component/componenttest"
)

func TestNewValidatesTheDescriptor(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Descriptor{}, Config{Width: 640, Height: 360}, componenttest.Factory{Fake: &componenttest.Fake{}})
	require.ErrorAs(t, err, &ErrConfiguration{})
}

func TestNewValidatesTheConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("dimensions", func(t *testing.T) {
		_, err := New(ctx, DescriptorH264Decoder, Config{}, componenttest.Factory{Fake: &componenttest.Fake{}})
		require.ErrorAs(t, err, &ErrConfiguration{})
	})

	t.Run("encoder_requires_bitrate", func(t *testing.T) {
		_, err := New(ctx, DescriptorH264Encoder, Config{Width: 640, Height: 360}, componenttest.Factory{Fake: &componenttest.Fake{}})
		require.ErrorAs(t, err, &ErrConfiguration{})
	})

	t.Run("rate_control_pair", func(t *testing.T) {
		_, err := New(ctx, DescriptorH264Encoder, Config{
			Width: 640, Height: 360,
			BitRate:    4_000_000,
			MaxBitRate: 6_000_000, // without VirtualBufferSize
		}, componenttest.Factory{Fake: &componenttest.Fake{}})
		require.ErrorAs(t, err, &ErrConfiguration{})
	})

	t.Run("deinterlace_mode", func(t *testing.T) {
		_, err := New(ctx, DescriptorH264Decoder, Config{
			Width: 640, Height: 360,
			DeinterlaceMode: 3,
		}, componenttest.Factory{Fake: &componenttest.Fake{}})
		require.ErrorAs(t, err, &ErrConfiguration{})
	})
}

func TestNewAppliesEncoderDefaults(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, DescriptorH264Encoder, Config{
		Width: 640, Height: 360,
		BitRate: 4_000_000,
	}, componenttest.Factory{Fake: &componenttest.Fake{}})
	require.NoError(t, err)
	defer p.Close(ctx)

	require.Equal(t, component.BitRateModeVBR, p.Config.BitRateMode)
	require.EqualValues(t, 30, p.Config.FrameRate)
	require.Equal(t, 1, p.Config.IFrameInterval)
	require.Equal(t, PixelFormatNV12, p.Config.PixelFormat)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()

	fake := &componenttest.Fake{}
	p, err := New(ctx, DescriptorH264Decoder, Config{Width: 640, Height: 360}, componenttest.Factory{Fake: fake})
	require.NoError(t, err)
	require.Equal(t, StateConfigured, p.State())

	require.NoError(t, p.Start(ctx))
	require.Equal(t, StateRunning, p.State())
	require.Equal(t, 1, fake.Started)

	// double start is refused
	require.ErrorAs(t, p.Start(ctx), &ErrInvalidState{})

	require.NoError(t, p.Flush(ctx))
	require.Equal(t, StateFlushed, p.State())
	require.Equal(t, 1, fake.Flushed)

	require.NoError(t, p.Stop(ctx))
	require.Equal(t, StateStopped, p.State())
	require.Equal(t, 1, fake.Stopped)

	require.ErrorAs(t, p.Flush(ctx), &ErrInvalidState{})

	require.NoError(t, p.Close(ctx))
	require.Equal(t, StateClosed, p.State())
	require.Equal(t, 1, fake.Destroyed)

	// close is idempotent
	require.NoError(t, p.Close(ctx))
	require.Equal(t, 1, fake.Destroyed)
}

func TestCloseWhileRunningFlushesAndStops(t *testing.T) {
	ctx := context.Background()

	fake := &componenttest.Fake{}
	p := newTestDecoder(t, fake)

	require.NoError(t, p.Close(ctx))
	require.Equal(t, 1, fake.Flushed)
	require.Equal(t, 1, fake.Stopped)
	require.Equal(t, 1, fake.Destroyed)
}

func TestFlushClearsPendingConfigPayload(t *testing.T) {
	ctx := context.Background()

	config := []byte{0x67, 0x42}
	fake := &componenttest.Fake{
		Script: []componenttest.OutputStep{
			slotEvent(0, component.BufferInfo{Size: len(config), Flags: component.FlagCodecConfig}),
		},
		OutputData: map[component.SlotIndex][]byte{0: config},
	}
	p := newTestEncoder(t, fake)
	defer p.Close(ctx)

	// the poll captures the payload and then runs out of events
	_, outcome, err := p.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, PollOutcomeTryAgain, outcome)
	require.True(t, p.pendingConfigPayload.IsSet())

	require.NoError(t, p.Flush(ctx))
	require.False(t, p.pendingConfigPayload.IsSet())
}

func TestFlushPreservesTheFormatState(t *testing.T) {
	ctx := context.Background()

	fake := &componenttest.Fake{
		Format: testFormat(),
		Script: []componenttest.OutputStep{kindEvent(component.OutputEventFormatChanged)},
	}
	p := newTestDecoder(t, fake)
	defer p.Close(ctx)

	_, outcome, err := p.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, PollOutcomeFormatChanged, outcome)

	require.NoError(t, p.Flush(ctx))
	fs, ok := p.FormatState()
	require.True(t, ok)
	require.Equal(t, 640, fs.Stride)
}

func TestCloseWithOutstandingBuffer(t *testing.T) {
	ctx := context.Background()

	fake := &componenttest.Fake{
		Format: testFormat(),
		Script: []componenttest.OutputStep{
			kindEvent(component.OutputEventFormatChanged),
			slotEvent(0, component.BufferInfo{Size: testFrameSize()}),
		},
		OutputData: map[component.SlotIndex][]byte{0: make([]byte, testFrameSize())},
	}
	p := newTestDecoder(t, fake)

	buf, outcome, err := p.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, PollOutcomeReady, outcome)

	require.NoError(t, p.Close(ctx))
	require.Equal(t, 0, fake.Destroyed)

	// the last buffer going away destroys the component; the slot is not
	// recycled into a dead pool
	buf.Release(ctx)
	require.Equal(t, 1, fake.Destroyed)
	require.Empty(t, fake.Released)
}

func TestFactoryFailure(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, DescriptorH264Decoder, Config{Width: 640, Height: 360}, componenttest.Factory{
		Err: context.DeadlineExceeded,
	})
	require.ErrorAs(t, err, &ErrComponent{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAutoReformatterRequiresExplicitOneForHEVC(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, DescriptorHEVCDecoder, Config{
		Width: 640, Height: 360,
		ExtraData: []byte{1, 0, 0, 0},
	}, componenttest.Factory{Fake: &componenttest.Fake{}})
	require.ErrorAs(t, err, &ErrConfiguration{})
}

func TestAutoReformatterInstallsForLengthPrefixedH264(t *testing.T) {
	ctx := context.Background()

	configRecord := []byte{
		1, 0x42, 0x00, 0x1E, 0xFF,
		0xE1, 0x00, 0x04, 0x67, 0x42, 0x00, 0x1E,
		0x01, 0x00, 0x04, 0x68, 0xCE, 0x3C, 0x80,
	}
	p, err := New(ctx, DescriptorH264Decoder, Config{
		Width: 640, Height: 360,
		ExtraData: configRecord,
	}, componenttest.Factory{Fake: &componenttest.Fake{}})
	require.NoError(t, err)
	defer p.Close(ctx)
	require.NotNil(t, p.reformatter)
}

func TestAutoReformatterSkipsAnnexBExtraData(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, DescriptorH264Decoder, Config{
		Width: 640, Height: 360,
		ExtraData: []byte{0, 0, 0, 1, 0x67},
	}, componenttest.Factory{Fake: &componenttest.Fake{}})
	require.NoError(t, err)
	defer p.Close(ctx)
	require.Nil(t, p.reformatter)
}
