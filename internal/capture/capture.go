// Package capture produces exactly one JPEG still per shutter press.
package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"

	"smartbin-scan/internal/camera"
	"smartbin-scan/pkg/apierror"
)

// Frame is an immutable captured still. It lives only until its upload
// completes or fails terminally, and is never re-uploaded.
type Frame struct {
	JPEG   []byte
	Width  int
	Height int
}

type Options struct {
	// RetryWait bounds the single readiness retry on the preview path.
	RetryWait time.Duration
	Quality   int
}

func (o Options) withDefaults() Options {
	if o.RetryWait <= 0 {
		o.RetryWait = 200 * time.Millisecond
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 90
	}
	return o
}

// Capture extracts a still from the live stream. It prefers the track-level
// grab and falls back to rasterizing the current preview; if the preview is
// not ready it waits once for RetryWait before failing with capture-failed.
func Capture(ctx context.Context, stream camera.Stream, opts Options) (*Frame, error) {
	opts = opts.withDefaults()

	src, err := grab(ctx, stream, opts.RetryWait)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, apierror.New(apierror.KindCaptureFailed, "no frame available", "zero dimensions")
	}

	// Rasterize at source dimensions; frames from the track may share
	// backing memory with the decoder, so copy before encoding.
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Copy(dst, image.Point{}, src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, apierror.New(apierror.KindCaptureFailed, "jpeg encoding failed", err.Error())
	}

	return &Frame{JPEG: buf.Bytes(), Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

func grab(ctx context.Context, stream camera.Stream, retryWait time.Duration) (image.Image, error) {
	img, err := stream.Grab(ctx)
	if err == nil && img != nil {
		return img, nil
	}
	if err != nil && !errors.Is(err, camera.ErrGrabUnsupported) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apierror.New(apierror.KindCaptureFailed, "no frame available", err.Error())
	}

	if img, ready := stream.Preview(); ready >= camera.ReadinessCurrentData && img != nil && !img.Bounds().Empty() {
		return img, nil
	}

	// Preview not ready yet; wait up to retryWait and retry exactly once.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(retryWait):
	}

	if img, ready := stream.Preview(); ready >= camera.ReadinessCurrentData && img != nil && !img.Bounds().Empty() {
		return img, nil
	}

	return nil, apierror.New(apierror.KindCaptureFailed, "no frame available", "preview not ready")
}
