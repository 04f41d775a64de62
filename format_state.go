package hwcodec

import (
	"fmt"
)

// FormatState is the cached output geometry of the pipeline. It is refreshed
// only in response to an explicit format-change notification from the
// component and read by every buffer-wrapping step in between.
//
// Invariant (after the first successful refresh): PlaneHeight >= Height and
// Stride >= Width.
type FormatState struct {
	Width       int
	Height      int
	Stride      int
	PlaneHeight int
	PixelFormat PixelFormat
}

func (fs FormatState) String() string {
	return fmt.Sprintf(
		"%dx%d (stride:%d, plane_height:%d, %s)",
		fs.Width, fs.Height, fs.Stride, fs.PlaneHeight, fs.PixelFormat,
	)
}

// lumaSize is the byte size of the luma plane of a backing buffer.
func (fs FormatState) lumaSize() int {
	return fs.Stride * fs.PlaneHeight
}

// chromaStride derives the chroma row stride from the luma geometry: same
// stride for the merged-chroma (semi-planar) layout, half for fully-planar.
func (fs FormatState) chromaStride() int {
	if fs.PixelFormat == PixelFormatNV12 {
		return fs.Stride
	}
	return fs.Stride / 2
}

// chromaPlaneSize derives the size of one chroma plane: half the luma area
// for the merged-chroma layout, a quarter for fully-planar.
func (fs FormatState) chromaPlaneSize() int {
	if fs.PixelFormat == PixelFormatNV12 {
		return fs.lumaSize() / 2
	}
	return fs.lumaSize() / 4
}

// frameSize is the total byte size of one raw frame in this geometry.
func (fs FormatState) frameSize() int {
	switch fs.PixelFormat {
	case PixelFormatNV12:
		return fs.lumaSize() + fs.chromaPlaneSize()
	case PixelFormatYUV420P:
		return fs.lumaSize() + 2*fs.chromaPlaneSize()
	}
	return 0
}
