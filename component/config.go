package component

import (
	"fmt"
)

// BitRateMode selects the rate control mode of an encoding component.
type BitRateMode int

const (
	BitRateModeVBR BitRateMode = iota + 1
	BitRateModeCBR
	EndOfBitRateMode
)

func (m BitRateMode) String() string {
	switch m {
	case BitRateModeVBR:
		return "vbr"
	case BitRateModeCBR:
		return "cbr"
	}
	return fmt.Sprintf("unknown_%d", int(m))
}

// Config is the device-facing configuration a Factory builds a Component
// from. It is assembled by the pipeline; fields irrelevant to the direction
// (encode/decode) are left zero.
type Config struct {
	MIMEType string
	Encoder  bool

	Width  int
	Height int

	// ColorFormat is the requested color format (one of the ColorFormat*
	// constants) of the raw side of the component.
	ColorFormat int32

	BitRate           int64
	BitRateMode       BitRateMode
	MaxBitRate        int64
	VirtualBufferSize int64
	FrameRate         float64
	IFrameInterval    int

	// ProcessingMode is a component-specific processing selector (e.g. the
	// deinterlacing method of a decoding component).
	ProcessingMode int

	// OutputWidth/OutputHeight request scaling inside the component, where
	// supported. Zero means "same as Width/Height".
	OutputWidth  int
	OutputHeight int
}
