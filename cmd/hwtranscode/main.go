package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/anthonynsimon/bild/transform"
	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/hwcodec"
	"github.com/xaionaro-go/hwcodec/component/loopback"
	"github.com/xaionaro-go/observability"
)

const (
	chunkSize   = 64 * 1024
	ptsStepUSec = 33333
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s <file-from> <file-to>\n", os.Args[0])
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	mimeType := pflag.String("mime", "video/avc", "MIME type of the input stream")
	width := pflag.Int("width", 640, "video width")
	height := pflag.Int("height", 360, "video height")
	thumbnailPath := pflag.String("thumbnail", "", "write a PNG thumbnail of the first decoded frame to this path")
	pflag.Parse()
	if len(pflag.Args()) != 2 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	fromPath := pflag.Arg(0)
	toPath := pflag.Arg(1)

	cfg := hwcodec.Config{
		Width:  *width,
		Height: *height,
	}
	l.Tracef("configuration: %s", spew.Sdump(cfg))

	decoder, err := hwcodec.NewDecoder(ctx, hwcodec.Descriptor{MIMEType: *mimeType}, cfg, loopback.Factory{})
	if err != nil {
		l.Fatal(err)
	}
	defer func() {
		if err := decoder.Close(ctx); err != nil {
			l.Error(err)
		}
	}()
	if err := decoder.Start(ctx); err != nil {
		l.Fatal(err)
	}

	input, err := os.ReadFile(fromPath)
	if err != nil {
		l.Fatal(err)
	}
	output, err := os.Create(toPath)
	if err != nil {
		l.Fatal(err)
	}
	defer output.Close()

	var bytesIn, bytesOut, frames uint64
	start := time.Now()
	thumbnailDone := *thumbnailPath == ""

	consume := func(ctx context.Context, buf *hwcodec.Buffer) error {
		defer buf.Release(ctx)
		frames++
		bytesOut += uint64(buf.Size())
		if !thumbnailDone {
			thumbnailDone = true
			if err := writeThumbnail(*thumbnailPath, buf); err != nil {
				l.Errorf("unable to write the thumbnail: %v", err)
			}
		}
		_, err := output.Write(buf.Bytes())
		return err
	}

	pts := int64(0)
	for offset := 0; offset < len(input); offset += chunkSize {
		end := offset + chunkSize
		if end > len(input) {
			end = len(input)
		}
		unit := hwcodec.Unit{Data: input[offset:end], PTS: pts}
		for {
			err := decoder.Submit(ctx, unit)
			if err == nil {
				break
			}
			if _, ok := err.(hwcodec.ErrNoInputSlot); !ok {
				l.Fatal(err)
			}
			// backpressure; free some output slots and retry the same unit
			if err := pollOnce(ctx, decoder, consume); err != nil {
				l.Fatal(err)
			}
		}
		bytesIn += uint64(end - offset)
		pts += ptsStepUSec

		if err := pollOnce(ctx, decoder, consume); err != nil {
			l.Fatal(err)
		}
	}

	if err := decoder.Drain(ctx, consume); err != nil {
		l.Fatal(err)
	}

	if fs, ok := decoder.FormatState(); ok {
		l.Debugf("final output format: %s", fs)
	}
	fmt.Printf(
		"%s in -> %d frames, %s out, in %s\n",
		humanize.Bytes(bytesIn), frames, humanize.Bytes(bytesOut), time.Since(start).Truncate(time.Millisecond),
	)
}

func pollOnce(
	ctx context.Context,
	decoder *hwcodec.Decoder,
	consume func(ctx context.Context, buf *hwcodec.Buffer) error,
) error {
	buf, outcome, err := decoder.Poll(ctx)
	if err != nil {
		return err
	}
	if outcome != hwcodec.PollOutcomeReady {
		return nil
	}
	return consume(ctx, buf)
}

// writeThumbnail renders the luma plane of a decoded frame into a small
// grayscale PNG.
func writeThumbnail(path string, buf *hwcodec.Buffer) error {
	fs, ok := buf.Format()
	if !ok {
		return fmt.Errorf("the buffer carries no raw format")
	}
	planes := buf.Planes()
	if len(planes) == 0 {
		return fmt.Errorf("the buffer carries no planes")
	}
	img := &image.Gray{
		Pix:    planes[0].Data,
		Stride: planes[0].Stride,
		Rect:   image.Rect(0, 0, fs.Width, fs.Height),
	}
	small := transform.Resize(img, fs.Width/4, fs.Height/4, transform.Linear)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, small)
}
