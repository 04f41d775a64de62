package hwcodec

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/hwcodec/component"
)

// Unit is one compressed packet or one raw frame awaiting submission. It is
// owned by the caller until Submit returns without ErrNoInputSlot; the
// payload is copied into a hardware slot during submission.
type Unit struct {
	Data  []byte
	PTS   int64 // microseconds
	Flags component.Flags
}

// EndOfStreamUnit is the cancellation primitive: an empty payload with the
// end-of-stream flag set.
func EndOfStreamUnit() Unit {
	return Unit{Flags: component.FlagEndOfStream}
}

// IsEndOfStream reports whether the unit is an end-of-stream marker.
func (u Unit) IsEndOfStream() bool {
	return len(u.Data) == 0 && u.Flags.Has(component.FlagEndOfStream)
}

func (u Unit) String() string {
	return fmt.Sprintf("Unit(%s, pts:%d, flags:%s)", humanize.Bytes(uint64(len(u.Data))), u.PTS, u.Flags)
}
