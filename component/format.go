package component

import (
	"fmt"
)

// Well-known color format constants, as reported by OutputFormat. The values
// follow the Android MediaCodec numbering, which is what every hardware
// component backend we deal with speaks.
const (
	ColorFormatYUV420Planar     int32 = 19
	ColorFormatYUV420SemiPlanar int32 = 21
)

// Format describes the output buffer geometry of a component.
//
// Stride and PlaneHeight refer to the luma plane of the backing buffer and
// may exceed the logical Width/Height due to hardware alignment. A zero field
// means "unchanged since the previous report".
type Format struct {
	Width       int
	Height      int
	Stride      int
	PlaneHeight int
	ColorFormat int32
}

func (f Format) String() string {
	return fmt.Sprintf(
		"%dx%d (stride:%d, plane_height:%d, color_format:%d)",
		f.Width, f.Height, f.Stride, f.PlaneHeight, f.ColorFormat,
	)
}
