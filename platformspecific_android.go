//go:build android
// +build android

package hwcodec

import (
	"context"
	"encoding/json"

	"github.com/xaionaro-go/hwcodec/logger"
	"github.com/xaionaro-go/androidetc"
	"github.com/xaionaro-go/xsync"
)

var (
	mediaCodecsInfoLocker xsync.Mutex
	mediaCodecsInfo       androidetc.MediaCodecsDescriptors
)

// platformSpecificSanityChecks warns when the device inventory advertises no
// hardware implementation for the requested descriptor. It never fails the
// construction: the inventory file is advisory and the component itself is
// the authority.
func platformSpecificSanityChecks(ctx context.Context, desc Descriptor) {
	logger.Tracef(ctx, "platformSpecificSanityChecks(%s)", desc)
	defer func() { logger.Tracef(ctx, "/platformSpecificSanityChecks(%s)", desc) }()

	mediaCodecsInfoLocker.Do(ctx, func() {
		if mediaCodecsInfo == nil {
			var err error
			mediaCodecsInfo, err = androidetc.ParseMediaCodecs()
			if err != nil {
				logger.Warnf(ctx, "failed to parse media codecs info: %v", err)
				return
			}
		}

		for _, codecInfo := range mediaCodecsInfo {
			var codecs []androidetc.MediaCodec
			if desc.Kind == KindEncoder {
				codecs = codecInfo.Encoders
			} else {
				codecs = codecInfo.Decoders
			}
			for _, codec := range codecs {
				isFitting := false
				for _, typ := range codec.Types {
					if typ.Name == desc.MIMEType {
						isFitting = true
						break
					}
				}
				if !isFitting {
					isFitting = codec.Type == desc.MIMEType
				}
				if !isFitting {
					continue
				}
				if !codec.IsHardware() {
					continue
				}
				b, _ := json.Marshal(codec)
				logger.Tracef(ctx, "found fitting hardware codec: %s", string(b))
				return
			}
		}

		logger.Warnf(ctx, "no fitting hardware codec found for mime type %q (%s)", desc.MIMEType, desc.Kind)
	})
}
