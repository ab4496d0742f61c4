// Package camera owns the live media stream. Acquisition, fallback and
// teardown all go through the Session so no exit path can leak a live track.
package camera

import (
	"context"
	"errors"
	"image"
)

// Facing selects which camera to prefer.
type Facing string

const (
	FacingAny  Facing = ""
	FacingRear Facing = "environment"
)

type Constraints struct {
	Facing      Facing
	IdealWidth  int
	IdealHeight int
	MinWidth    int
	MinHeight   int
	MaxWidth    int
	MaxHeight   int
	AspectRatio float64
	IdealFPS    int
	MinFPS      int
}

// Preferred is the first-attempt acquisition profile: rear camera, 720p
// ideal between a 480p floor and a 1080p ceiling, 16:9, 30 fps ideal with a
// 15 fps floor.
func Preferred() Constraints {
	return Constraints{
		Facing:      FacingRear,
		IdealWidth:  1280,
		IdealHeight: 720,
		MinWidth:    640,
		MinHeight:   480,
		MaxWidth:    1920,
		MaxHeight:   1080,
		AspectRatio: 16.0 / 9.0,
		IdealFPS:    30,
		MinFPS:      15,
	}
}

// Relaxed is the single fallback profile: any camera, no hints.
func Relaxed() Constraints {
	return Constraints{}
}

// Readiness mirrors the preview sink's data availability levels.
type Readiness int

const (
	ReadinessNothing Readiness = iota
	ReadinessMetadata
	ReadinessCurrentData
	ReadinessFutureData
	ReadinessEnoughData
)

// Device acquires media streams. Implementations wrap whatever media layer
// the platform provides; tests and the CLI use SimDevice.
type Device interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is one live media stream. Close stops every track and is
// idempotent.
type Stream interface {
	// Grab returns a still decoded directly from the track. Devices without
	// track-level grabbing return ErrGrabUnsupported and callers fall back
	// to the preview raster.
	Grab(ctx context.Context) (image.Image, error)
	// Preview reports the current preview image and its readiness. The image
	// may be nil below ReadinessCurrentData.
	Preview() (image.Image, Readiness)
	Close() error
	Closed() bool
}

// SinkOptions configure the preview binding. Muted and inline are required
// for autoplay on restricted platforms.
type SinkOptions struct {
	Muted  bool
	Inline bool
}

// Sink is the preview surface the stream is bound to.
type Sink interface {
	Attach(s Stream, opts SinkOptions) error
	Detach()
}

// Acquisition failures devices may report. Anything else classifies as
// ReasonOther.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device")
	ErrDeviceBusy       = errors.New("camera device busy")
	ErrUnsupported      = errors.New("camera unsupported")
	ErrGrabUnsupported  = errors.New("track-level frame grab unsupported")
)

// Reason discriminates why a Session entered the error state.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonPermissionDenied Reason = "permission-denied"
	ReasonNoDevice         Reason = "no-device"
	ReasonDeviceBusy       Reason = "device-busy"
	ReasonUnsupported      Reason = "unsupported"
	ReasonOther            Reason = "other"
)

func classify(err error) Reason {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrNoDevice):
		return ReasonNoDevice
	case errors.Is(err, ErrDeviceBusy):
		return ReasonDeviceBusy
	case errors.Is(err, ErrUnsupported):
		return ReasonUnsupported
	default:
		return ReasonOther
	}
}
