// Package reformatter defines the pure bitstream transform applied to
// submitted units when the input framing is incompatible with the elementary
// stream framing a hardware component expects.
package reformatter

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/hwcodec/component"
)

// Unit is one bitstream unit passing through a reformatter. PTS and Flags
// travel with the payload unchanged unless the transform says otherwise.
type Unit struct {
	Data  []byte
	PTS   int64
	Flags component.Flags
}

// Reformatter rewrites the framing of submitted units.
//
// Transform may return zero units without an error: the reformatter is
// allowed to buffer internally and emit the data later. A non-nil error
// means the input is malformed.
type Reformatter interface {
	fmt.Stringer
	Transform(ctx context.Context, unit Unit) ([]Unit, error)
}
