package hwcodec

import (
	"fmt"

	"github.com/xaionaro-go/hwcodec/component"
)

// PixelFormat is the raw-frame layout on the uncompressed side of the
// pipeline.
type PixelFormat int

const (
	PixelFormatUndefined PixelFormat = iota

	// PixelFormatNV12: semi-planar YUV 4:2:0; one luma plane followed by one
	// interleaved CbCr plane of the same stride.
	PixelFormatNV12

	// PixelFormatYUV420P: fully-planar YUV 4:2:0; luma plane followed by
	// half-stride, quarter-area Cb and Cr planes.
	PixelFormatYUV420P

	EndOfPixelFormat
)

func (pf PixelFormat) String() string {
	switch pf {
	case PixelFormatUndefined:
		return "undefined"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatYUV420P:
		return "yuv420p"
	}
	return fmt.Sprintf("unknown_%d", int(pf))
}

// PixelFormatFromColorFormat maps a component-reported color format constant
// to a PixelFormat. Returns PixelFormatUndefined for anything unrecognized.
func PixelFormatFromColorFormat(colorFormat int32) PixelFormat {
	switch colorFormat {
	case component.ColorFormatYUV420SemiPlanar:
		return PixelFormatNV12
	case component.ColorFormatYUV420Planar:
		return PixelFormatYUV420P
	}
	return PixelFormatUndefined
}

// ColorFormat is the inverse of PixelFormatFromColorFormat.
func (pf PixelFormat) ColorFormat() (int32, error) {
	switch pf {
	case PixelFormatNV12:
		return component.ColorFormatYUV420SemiPlanar, nil
	case PixelFormatYUV420P:
		return component.ColorFormatYUV420Planar, nil
	}
	return 0, ErrUnsupportedColorFormat{ColorFormat: -1}
}
