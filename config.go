package hwcodec

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/hwcodec/logger"
	"github.com/xaionaro-go/hwcodec/component"
	"github.com/xaionaro-go/hwcodec/reformatter"
)

const (
	// DefaultInputDequeueTimeout bounds one attempt to acquire a free input
	// slot. Running out of it is a transient condition (ErrNoInputSlot),
	// not a failure.
	DefaultInputDequeueTimeout = time.Second

	// DefaultOutputDequeueTimeout bounds one output poll attempt.
	DefaultOutputDequeueTimeout = 10 * time.Millisecond
)

// Config is the application-facing configuration of a Pipeline. It is
// validated once at construction time and immutable for the life of a
// running session.
type Config struct {
	Width  int
	Height int

	// PixelFormat of the raw side. Defaults to NV12.
	PixelFormat PixelFormat

	// Encoder-only rate control. BitRateMode defaults to VBR. MaxBitRate and
	// VirtualBufferSize are applied only as a pair.
	BitRate           int64
	BitRateMode       component.BitRateMode
	MaxBitRate        int64
	VirtualBufferSize int64

	// FrameRate of the input, frames per second (encoder only). Defaults
	// to 30 when unset.
	FrameRate float64

	// IFrameInterval, seconds between sync frames (encoder only).
	// Defaults to 1.
	IFrameInterval int

	// DeinterlaceMode is the component-specific deinterlacing method
	// (decoder only), 0..2. Zero selects the component default.
	DeinterlaceMode int

	// OutputWidth/OutputHeight request scaling inside the component
	// (encoder only, where supported). Zero means no scaling.
	OutputWidth  int
	OutputHeight int

	// ExtraData is the out-of-band codec configuration record from the
	// container (e.g. an AVC decoder configuration record). When it carries
	// length-prefixed framing, a reformatter is installed automatically.
	ExtraData []byte

	// Reformatter overrides the automatic reformatter selection. Submitted
	// units are passed through it before hitting the component.
	Reformatter reformatter.Reformatter

	InputDequeueTimeout  time.Duration
	OutputDequeueTimeout time.Duration
}

func (cfg *Config) setDefaults(ctx context.Context, desc Descriptor) {
	if cfg.PixelFormat == PixelFormatUndefined {
		logger.Debugf(ctx, "pixel format is not set; defaulting to %s", PixelFormatNV12)
		cfg.PixelFormat = PixelFormatNV12
	}
	if cfg.InputDequeueTimeout == 0 {
		cfg.InputDequeueTimeout = DefaultInputDequeueTimeout
	}
	if cfg.OutputDequeueTimeout == 0 {
		cfg.OutputDequeueTimeout = DefaultOutputDequeueTimeout
	}
	if desc.Kind != KindEncoder {
		return
	}
	if cfg.BitRateMode == 0 {
		cfg.BitRateMode = component.BitRateModeVBR
	}
	if cfg.FrameRate <= 0 {
		logger.Warnf(ctx, "unable to detect the FPS, assuming 30")
		cfg.FrameRate = 30
	}
	if cfg.IFrameInterval == 0 {
		cfg.IFrameInterval = 1
	}
}

func (cfg Config) validate(desc Descriptor) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.PixelFormat <= PixelFormatUndefined || cfg.PixelFormat >= EndOfPixelFormat {
		return fmt.Errorf("invalid pixel format: %s", cfg.PixelFormat)
	}
	if cfg.DeinterlaceMode < 0 || cfg.DeinterlaceMode > 2 {
		return fmt.Errorf("invalid deinterlace mode: %d", cfg.DeinterlaceMode)
	}
	if (cfg.MaxBitRate == 0) != (cfg.VirtualBufferSize == 0) {
		return fmt.Errorf("MaxBitRate and VirtualBufferSize must be set together")
	}
	if desc.Kind == KindEncoder {
		if cfg.BitRate <= 0 {
			return fmt.Errorf("an encoder requires a positive BitRate, got %d", cfg.BitRate)
		}
		if cfg.BitRateMode >= component.EndOfBitRateMode || cfg.BitRateMode < component.BitRateModeVBR {
			return fmt.Errorf("invalid bitrate mode: %s", cfg.BitRateMode)
		}
		if (cfg.OutputWidth == 0) != (cfg.OutputHeight == 0) {
			return fmt.Errorf("OutputWidth and OutputHeight must be set together")
		}
	}
	return nil
}

// componentConfig assembles the device-facing configuration.
func (cfg Config) componentConfig(desc Descriptor) (component.Config, error) {
	colorFormat, err := cfg.PixelFormat.ColorFormat()
	if err != nil {
		return component.Config{}, err
	}
	return component.Config{
		MIMEType:          desc.MIMEType,
		Encoder:           desc.Kind == KindEncoder,
		Width:             cfg.Width,
		Height:            cfg.Height,
		ColorFormat:       colorFormat,
		BitRate:           cfg.BitRate,
		BitRateMode:       cfg.BitRateMode,
		MaxBitRate:        cfg.MaxBitRate,
		VirtualBufferSize: cfg.VirtualBufferSize,
		FrameRate:         cfg.FrameRate,
		IFrameInterval:    cfg.IFrameInterval,
		ProcessingMode:    cfg.DeinterlaceMode,
		OutputWidth:       cfg.OutputWidth,
		OutputHeight:      cfg.OutputHeight,
	}, nil
}
