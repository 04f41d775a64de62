package hwcodec

import (
	"fmt"

	"context"

	"github.com/xaionaro-go/hwcodec/logger"
	"github.com/xaionaro-go/hwcodec/component"
	"github.com/xaionaro-go/xcontext"
	"go.uber.org/atomic"
)

// componentRef shares the hardware component between the pipeline and every
// outstanding Buffer derived from it. A Buffer must be able to recycle its
// slot even after the pipeline finished the call that produced it, so the
// component is destroyed only when the last holder lets go.
type componentRef struct {
	comp     component.Component
	refCount atomic.Int64
	closing  atomic.Bool
}

func newComponentRef(comp component.Component) *componentRef {
	r := &componentRef{comp: comp}
	r.refCount.Store(1)
	return r
}

func (r *componentRef) ref() *componentRef {
	r.refCount.Inc()
	return r
}

func (r *componentRef) unref(ctx context.Context) {
	left := r.refCount.Dec()
	if left > 0 {
		return
	}
	if left < 0 {
		logger.Errorf(ctx, "the component was unreferenced more times than referenced")
		return
	}
	ctx = xcontext.DetachDone(ctx)
	logger.Debugf(ctx, "destroying the component")
	if err := r.comp.Destroy(ctx); err != nil {
		logger.Errorf(ctx, "unable to destroy the component: %v", err)
	}
}

// releaseSlot recycles an output slot. After the pipeline started closing
// this becomes a no-op: the slot pools die with the component anyway, and
// a recycle call racing a teardown must never crash.
func (r *componentRef) releaseSlot(ctx context.Context, slot component.SlotIndex, render bool) {
	if r.closing.Load() {
		logger.Debugf(ctx, "the component is closing; not releasing slot %d", slot)
		return
	}
	if err := r.comp.ReleaseOutputSlot(slot, render); err != nil {
		logger.Errorf(ctx, "unable to release output slot %d: %v", slot, err)
	}
}

// Plane is one pixel plane of a raw Buffer: a view into device memory plus
// its row stride.
type Plane struct {
	Data   []byte
	Stride int
}

// Buffer wraps one readable hardware output slot. It is zero-copy: Bytes and
// Planes alias the device-owned region and stay valid until the last
// Release. The slot is recycled into the component's free pool exactly once,
// when the last reference is dropped, from whatever goroutine that happens
// on.
type Buffer struct {
	comp      *componentRef
	slot      component.SlotIndex
	data      []byte
	info      component.BufferInfo
	format    *FormatState // nil for compressed (encoder) output
	planes    []Plane
	extraData []byte
	refCount  *atomic.Int32
}

// newBuffer computes the plane layout; it does not take a component
// reference nor release the slot on failure, that is the caller's job.
func newBuffer(
	ctx context.Context,
	slot component.SlotIndex,
	data []byte,
	info component.BufferInfo,
	format *FormatState,
	extraData []byte,
) (*Buffer, error) {
	b := &Buffer{
		slot:      slot,
		data:      data,
		info:      info,
		format:    format,
		extraData: extraData,
		refCount:  atomic.NewInt32(1),
	}
	if info.Offset < 0 || info.Size < 0 || info.Offset+info.Size > len(data) {
		return nil, fmt.Errorf(
			"reported region [%d:%d) is outside the %d-byte slot",
			info.Offset, info.Offset+info.Size, len(data),
		)
	}
	if format == nil {
		return b, nil
	}

	region := data[info.Offset:]
	if len(region) < format.frameSize() {
		return nil, fmt.Errorf(
			"output region is too small for %s: %d < %d bytes",
			format, len(region), format.frameSize(),
		)
	}

	lumaSize := format.lumaSize()
	chromaSize := format.chromaPlaneSize()
	switch format.PixelFormat {
	case PixelFormatNV12:
		b.planes = []Plane{
			{Data: region[:lumaSize], Stride: format.Stride},
			{Data: region[lumaSize : lumaSize+chromaSize], Stride: format.chromaStride()},
		}
	case PixelFormatYUV420P:
		b.planes = []Plane{
			{Data: region[:lumaSize], Stride: format.Stride},
			{Data: region[lumaSize : lumaSize+chromaSize], Stride: format.chromaStride()},
			{Data: region[lumaSize+chromaSize : lumaSize+2*chromaSize], Stride: format.chromaStride()},
		}
	default:
		return nil, fmt.Errorf("no plane layout for pixel format %s", format.PixelFormat)
	}
	logger.Tracef(ctx, "wrapped slot %d as a %s buffer", slot, format.PixelFormat)
	return b, nil
}

// Ref adds a shared reference to the buffer. Every Ref requires a matching
// Release.
func (b *Buffer) Ref() *Buffer {
	b.refCount.Inc()
	return b
}

// Release drops one reference. Dropping the last one recycles the slot into
// the component's free pool. Releasing more times than referenced is a
// caller bug; it is logged and otherwise ignored.
func (b *Buffer) Release(ctx context.Context) {
	left := b.refCount.Dec()
	if left > 0 {
		return
	}
	if left < 0 {
		logger.Errorf(ctx, "buffer for slot %d was released more times than referenced", b.slot)
		return
	}
	ctx = xcontext.DetachDone(ctx)
	b.comp.releaseSlot(ctx, b.slot, false)
	b.comp.unref(ctx)
}

// Bytes is the payload region of the slot. For raw frames prefer Planes.
func (b *Buffer) Bytes() []byte {
	return b.data[b.info.Offset : b.info.Offset+b.info.Size]
}

// Planes is the pixel plane layout of a raw frame; nil for compressed
// output.
func (b *Buffer) Planes() []Plane {
	return b.planes
}

// Format reports the geometry the planes were laid out with. ok is false for
// compressed output.
func (b *Buffer) Format() (_ FormatState, ok bool) {
	if b.format == nil {
		return FormatState{}, false
	}
	return *b.format, true
}

func (b *Buffer) PTS() int64 {
	return b.info.PTS
}

// DTS mirrors PTS: the component emits no reordering information.
func (b *Buffer) DTS() int64 {
	return b.info.PTS
}

func (b *Buffer) Flags() component.Flags {
	return b.info.Flags
}

func (b *Buffer) Size() int {
	return b.info.Size
}

// ExtraData is out-of-band codec configuration attached to this unit (the
// encoder emits parameter sets separately from compressed units); nil when
// there is none.
func (b *Buffer) ExtraData() []byte {
	return b.extraData
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(slot:%d, size:%d, pts:%d, flags:%s)", b.slot, b.info.Size, b.info.PTS, b.info.Flags)
}
