// Package annexb reframes length-prefixed (AVCC-style) H.264 access units
// into the start-code (Annex-B) elementary stream framing hardware
// components expect, prepending the parameter sets from the container's
// configuration record ahead of key units.
package annexb

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/xaionaro-go/hwcodec/logger"
	"github.com/xaionaro-go/hwcodec/reformatter"
)

var startCode = []byte{0, 0, 0, 1}

const (
	nalTypeIDR = 5
	nalTypeSPS = 7
	nalTypePPS = 8
)

// H264 is a stateless-per-unit AVCC-to-Annex-B reformatter. One input access
// unit produces exactly one output unit; malformed length prefixes produce
// an error.
type H264 struct {
	nalLengthSize int
	headers       []byte // SPS+PPS, already start-code framed
}

var _ reformatter.Reformatter = (*H264)(nil)

// NewH264 parses an AVC decoder configuration record (ISO/IEC 14496-15) and
// returns a reformatter for streams framed by it.
func NewH264(ctx context.Context, configRecord []byte) (*H264, error) {
	if len(configRecord) < 7 {
		return nil, fmt.Errorf("configuration record is too short (%d bytes)", len(configRecord))
	}
	if configRecord[0] != 1 {
		return nil, fmt.Errorf("unsupported configurationVersion (%d)", configRecord[0])
	}
	if configRecord[4]&0xFC != 0xFC {
		return nil, fmt.Errorf("invalid reserved bits in byte 4 (0x%02X)", configRecord[4])
	}

	r := &H264{
		nalLengthSize: int(configRecord[4]&0x03) + 1,
	}

	offset := 6
	numSPS := int(configRecord[5] & 0x1F)
	for i := 0; i < numSPS; i++ {
		nalu, next, err := readUint16Prefixed(configRecord, offset)
		if err != nil {
			return nil, fmt.Errorf("SPS #%d: %w", i, err)
		}
		r.headers = append(r.headers, startCode...)
		r.headers = append(r.headers, nalu...)
		offset = next
	}

	if offset >= len(configRecord) {
		return nil, fmt.Errorf("configuration record ends before the PPS count")
	}
	numPPS := int(configRecord[offset])
	offset++
	for i := 0; i < numPPS; i++ {
		nalu, next, err := readUint16Prefixed(configRecord, offset)
		if err != nil {
			return nil, fmt.Errorf("PPS #%d: %w", i, err)
		}
		r.headers = append(r.headers, startCode...)
		r.headers = append(r.headers, nalu...)
		offset = next
	}

	logger.Debugf(ctx,
		"initialized an AVCC->AnnexB reformatter: nal_length_size:%d, headers:%d bytes",
		r.nalLengthSize, len(r.headers),
	)
	return r, nil
}

func readUint16Prefixed(b []byte, offset int) ([]byte, int, error) {
	if offset+2 > len(b) {
		return nil, 0, fmt.Errorf("truncated length prefix at offset %d", offset)
	}
	length := int(binary.BigEndian.Uint16(b[offset:]))
	offset += 2
	if length == 0 || offset+length > len(b) {
		return nil, 0, fmt.Errorf("invalid NALU length %d at offset %d", length, offset)
	}
	return b[offset : offset+length], offset + length, nil
}

func (r *H264) String() string {
	return "AnnexB(h264)"
}

// Transform rewrites one length-prefixed access unit into start-code
// framing. When the unit contains an IDR slice and no in-band parameter
// sets, the configuration record's SPS/PPS are prepended.
func (r *H264) Transform(
	ctx context.Context,
	unit reformatter.Unit,
) (_ret []reformatter.Unit, _err error) {
	logger.Tracef(ctx, "Transform: %d bytes", len(unit.Data))
	defer func() { logger.Tracef(ctx, "/Transform: %d unit(s), %v", len(_ret), _err) }()

	if len(unit.Data) == 0 {
		return nil, nil
	}

	nalus, err := r.split(unit.Data)
	if err != nil {
		return nil, err
	}

	hasIDR, hasHeaders := false, false
	size := 0
	for _, nalu := range nalus {
		switch nalu[0] & 0x1F {
		case nalTypeIDR:
			hasIDR = true
		case nalTypeSPS, nalTypePPS:
			hasHeaders = true
		}
		size += len(startCode) + len(nalu)
	}

	prependHeaders := hasIDR && !hasHeaders
	if prependHeaders {
		size += len(r.headers)
	}

	out := make([]byte, 0, size)
	if prependHeaders {
		out = append(out, r.headers...)
	}
	for _, nalu := range nalus {
		out = append(out, startCode...)
		out = append(out, nalu...)
	}

	return []reformatter.Unit{{
		Data:  out,
		PTS:   unit.PTS,
		Flags: unit.Flags,
	}}, nil
}

func (r *H264) split(data []byte) ([][]byte, error) {
	var nalus [][]byte
	for offset := 0; offset < len(data); {
		if offset+r.nalLengthSize > len(data) {
			return nil, fmt.Errorf("truncated NALU length prefix at offset %d", offset)
		}
		length := 0
		for _, b := range data[offset : offset+r.nalLengthSize] {
			length = length<<8 | int(b)
		}
		offset += r.nalLengthSize
		if length == 0 || offset+length > len(data) {
			return nil, fmt.Errorf("invalid NALU length %d at offset %d (input size: %d)", length, offset, len(data))
		}
		nalus = append(nalus, data[offset:offset+length])
		offset += length
	}
	if len(nalus) == 0 {
		return nil, fmt.Errorf("no NALUs in a %d-byte access unit", len(data))
	}
	return nalus, nil
}
