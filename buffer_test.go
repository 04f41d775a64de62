package hwcodec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwcodec/component"
	"github.com/xaionaro-go/hwcodec/component/componenttest"
)

func newTestBuffer(t *testing.T, ref *componentRef, slot component.SlotIndex) *Buffer {
	ctx := context.Background()
	buf, err := newBuffer(ctx, slot, make([]byte, 16), component.BufferInfo{Size: 16}, nil, nil)
	require.NoError(t, err)
	buf.comp = ref.ref()
	return buf
}

func TestBufferReleaseRecyclesTheSlotOnce(t *testing.T) {
	ctx := context.Background()

	fake := &componenttest.Fake{}
	ref := newComponentRef(fake)
	buf := newTestBuffer(t, ref, 5)

	buf.Release(ctx)
	require.Equal(t, []component.SlotIndex{5}, fake.Released)
	require.Equal(t, 0, fake.Destroyed)

	// the creator's reference is still held
	ref.unref(ctx)
	require.Equal(t, 1, fake.Destroyed)
}

func TestBufferSharedReferences(t *testing.T) {
	ctx := context.Background()

	fake := &componenttest.Fake{}
	ref := newComponentRef(fake)
	buf := newTestBuffer(t, ref, 2)

	buf.Ref()
	buf.Ref()

	buf.Release(ctx)
	buf.Release(ctx)
	require.Empty(t, fake.Released)

	buf.Release(ctx)
	require.Equal(t, []component.SlotIndex{2}, fake.Released)

	// over-releasing is logged, not fatal
	require.NotPanics(t, func() {
		buf.Release(ctx)
	})
	require.Len(t, fake.Released, 1)

	ref.unref(ctx)
}

func TestBufferReleaseAfterCloseIsANoOp(t *testing.T) {
	ctx := context.Background()

	fake := &componenttest.Fake{}
	ref := newComponentRef(fake)
	buf := newTestBuffer(t, ref, 1)

	ref.closing.Store(true)
	ref.unref(ctx)
	require.Equal(t, 0, fake.Destroyed)

	// the last holder releases after the pipeline closed: the slot is not
	// recycled, the component is destroyed
	buf.Release(ctx)
	require.Empty(t, fake.Released)
	require.Equal(t, 1, fake.Destroyed)
}

func TestBufferBytesHonorsTheOffset(t *testing.T) {
	ctx := context.Background()

	data := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	buf, err := newBuffer(ctx, 0, data, component.BufferInfo{Offset: 2, Size: 3}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 3, 4}, buf.Bytes())
}

func TestBufferPlaneLayoutNV12(t *testing.T) {
	ctx := context.Background()

	fs := &FormatState{Width: 640, Height: 360, Stride: 640, PlaneHeight: 368, PixelFormat: PixelFormatNV12}
	data := make([]byte, fs.frameSize())
	buf, err := newBuffer(ctx, 0, data, component.BufferInfo{Size: len(data)}, fs, nil)
	require.NoError(t, err)

	planes := buf.Planes()
	require.Len(t, planes, 2)
	require.Len(t, planes[0].Data, 640*368)
	require.Equal(t, 640, planes[0].Stride)
	require.Len(t, planes[1].Data, 640*368/2)
	require.Equal(t, 640, planes[1].Stride)
}

func TestBufferPlaneLayoutYUV420P(t *testing.T) {
	ctx := context.Background()

	fs := &FormatState{Width: 640, Height: 360, Stride: 640, PlaneHeight: 368, PixelFormat: PixelFormatYUV420P}
	data := make([]byte, fs.frameSize())
	buf, err := newBuffer(ctx, 0, data, component.BufferInfo{Size: len(data)}, fs, nil)
	require.NoError(t, err)

	planes := buf.Planes()
	require.Len(t, planes, 3)
	require.Len(t, planes[0].Data, 640*368)
	require.Len(t, planes[1].Data, 640*368/4)
	require.Len(t, planes[2].Data, 640*368/4)
	require.Equal(t, 320, planes[1].Stride)
	require.Equal(t, 320, planes[2].Stride)
}

func TestBufferRegionTooSmall(t *testing.T) {
	ctx := context.Background()

	fs := &FormatState{Width: 640, Height: 360, Stride: 640, PlaneHeight: 368, PixelFormat: PixelFormatNV12}
	_, err := newBuffer(ctx, 0, make([]byte, 16), component.BufferInfo{Size: 16}, fs, nil)
	require.Error(t, err)
}
