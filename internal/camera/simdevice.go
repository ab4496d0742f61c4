package camera

import (
	"context"
	"image"
	"sync"
)

// SimDevice is an in-process Device for tests and the CLI simulator. Frames
// come from a fixed image; acquisition failures and preview warm-up are
// scriptable.
type SimDevice struct {
	mu sync.Mutex

	// FailPreferred / FailRelaxed make the corresponding acquisition attempt
	// fail with the given error.
	FailPreferred error
	FailRelaxed   error

	Frame         image.Image
	SupportsGrab  bool
	WarmupSamples int

	streams []*SimStream
}

func NewSimDevice(frame image.Image) *SimDevice {
	return &SimDevice{Frame: frame, SupportsGrab: true}
}

func (d *SimDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if c.Facing != FacingAny || c.IdealWidth != 0 {
		if d.FailPreferred != nil {
			return nil, d.FailPreferred
		}
	} else if d.FailRelaxed != nil {
		return nil, d.FailRelaxed
	}

	s := &SimStream{
		frame:        d.Frame,
		supportsGrab: d.SupportsGrab,
		warmup:       d.WarmupSamples,
	}
	d.streams = append(d.streams, s)
	return s, nil
}

// OpenStreams counts acquired streams that were not yet closed. Tests use it
// to prove no exit path leaks a live track.
func (d *SimDevice) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	open := 0
	for _, s := range d.streams {
		if !s.Closed() {
			open++
		}
	}
	return open
}

type SimStream struct {
	mu           sync.Mutex
	frame        image.Image
	supportsGrab bool
	warmup       int
	closed       bool
}

func (s *SimStream) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrGrabUnsupported
	}
	if !s.supportsGrab {
		return nil, ErrGrabUnsupported
	}

	return s.frame, nil
}

func (s *SimStream) Preview() (image.Image, Readiness) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ReadinessNothing
	}
	if s.warmup > 0 {
		s.warmup--
		return nil, ReadinessMetadata
	}

	return s.frame, ReadinessEnoughData
}

func (s *SimStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func (s *SimStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// NopSink is a preview sink that records its binding but renders nothing.
type NopSink struct {
	mu       sync.Mutex
	attached bool
	opts     SinkOptions
}

func (n *NopSink) Attach(s Stream, opts SinkOptions) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.attached = true
	n.opts = opts
	return nil
}

func (n *NopSink) Detach() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.attached = false
}

func (n *NopSink) Attached() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.attached
}

func (n *NopSink) Options() SinkOptions {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.opts
}
