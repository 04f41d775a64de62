package hwcodec

import (
	"context"
	"fmt"
)

// Scaler converts raw frames between geometries and pixel layouts on the CPU
// side, for components that cannot scale internally. The input planes stay
// untouched; the output planes are freshly allocated.
type Scaler interface {
	fmt.Stringer
	Scale(ctx context.Context, src []Plane, srcFormat FormatState, dstFormat FormatState) ([]Plane, error)
}
