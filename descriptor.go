package hwcodec

import (
	"fmt"
)

// Kind is the direction of a pipeline: decoding (compressed in, raw out) or
// encoding (raw in, compressed out).
type Kind int

const (
	KindUndefined Kind = iota
	KindDecoder
	KindEncoder
	EndOfKind
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindDecoder:
		return "decoder"
	case KindEncoder:
		return "encoder"
	}
	return fmt.Sprintf("unknown_%d", int(k))
}

// Descriptor selects the codec and direction of a Pipeline. One generic
// pipeline covers every codec; there is no per-codec boilerplate.
type Descriptor struct {
	// MIMEType is the Android-style mime string the component is created by,
	// e.g. "video/avc".
	MIMEType string

	Kind Kind
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s(%s)", d.Kind, d.MIMEType)
}

func (d Descriptor) validate() error {
	if d.MIMEType == "" {
		return fmt.Errorf("MIMEType is not set")
	}
	if d.Kind <= KindUndefined || d.Kind >= EndOfKind {
		return fmt.Errorf("invalid kind: %s", d.Kind)
	}
	return nil
}

var (
	DescriptorH264Decoder  = Descriptor{MIMEType: "video/avc", Kind: KindDecoder}
	DescriptorHEVCDecoder  = Descriptor{MIMEType: "video/hevc", Kind: KindDecoder}
	DescriptorMPEG2Decoder = Descriptor{MIMEType: "video/mpeg2", Kind: KindDecoder}

	DescriptorH264Encoder = Descriptor{MIMEType: "video/avc", Kind: KindEncoder}
)
