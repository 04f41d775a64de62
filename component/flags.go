package component

import (
	"strings"
)

// Flags is the control flag set that accompanies a buffer across the
// component boundary, in either direction.
type Flags uint32

const (
	// FlagEndOfStream marks the final buffer of the stream. On input it is
	// combined with an empty payload; on output the slot carries no payload
	// of interest.
	FlagEndOfStream = Flags(1 << iota)

	// FlagSyncFrame marks a key (sync) unit.
	FlagSyncFrame

	// FlagCodecConfig marks out-of-band codec configuration bytes (e.g.
	// parameter sets), not an actual media unit.
	FlagCodecConfig
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var words []string
	if f.Has(FlagEndOfStream) {
		words = append(words, "eos")
	}
	if f.Has(FlagSyncFrame) {
		words = append(words, "sync")
	}
	if f.Has(FlagCodecConfig) {
		words = append(words, "config")
	}
	if rest := f &^ (FlagEndOfStream | FlagSyncFrame | FlagCodecConfig); rest != 0 {
		words = append(words, "unknown")
	}
	return strings.Join(words, "|")
}
