package camera

import (
	"context"
	"sync"

	"smartbin-scan/internal/event"
	"smartbin-scan/internal/model"
	"smartbin-scan/pkg/apierror"
)

type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateLive     State = "live"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// Media tracks are an exclusive resource; only one Session may be live.
var (
	liveMu      sync.Mutex
	liveSession *Session
)

// Session is the camera lifecycle FSM. Created on page entry, destroyed on
// page exit; Stop is safe from any state and any goroutine.
type Session struct {
	mu     sync.Mutex
	device Device
	sink   Sink
	bus    event.Bus
	state  State
	reason Reason
	stream Stream

	// lifetime is canceled on Stop so dependents (QR loop, in-flight
	// validation) are cancelled with the camera.
	lifetime context.Context
	cancel   context.CancelFunc
}

func NewSession(device Device, sink Sink, bus event.Bus) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		device:   device,
		sink:     sink,
		bus:      bus,
		state:    StateIdle,
		lifetime: ctx,
		cancel:   cancel,
	}
}

// Start acquires the stream: idle -> starting -> live. On acquisition
// failure it retries exactly once with relaxed constraints; a second
// failure lands in the error state with a discriminated reason.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return model.ErrIllegalTransition
	}
	s.state = StateStarting
	s.mu.Unlock()

	liveMu.Lock()
	busy := liveSession != nil && liveSession != s
	liveMu.Unlock()
	if busy {
		s.fail(ReasonDeviceBusy)
		return apierror.New(apierror.KindDeviceUnavailable, "camera already in use", string(ReasonDeviceBusy))
	}

	s.publish(event.TypeCameraStarting, nil)

	stream, err := s.device.Acquire(ctx, Preferred())
	if err != nil {
		stream, err = s.device.Acquire(ctx, Relaxed())
	}
	if err != nil {
		reason := classify(err)
		s.fail(reason)
		if reason == ReasonPermissionDenied {
			return apierror.New(apierror.KindPermissionDenied, "camera permission denied", err.Error())
		}
		return apierror.New(apierror.KindDeviceUnavailable, "camera unavailable", string(reason))
	}

	if s.sink != nil {
		// Muted inline preview so autoplay works on restricted platforms.
		if err := s.sink.Attach(stream, SinkOptions{Muted: true, Inline: true}); err != nil {
			_ = stream.Close()
			s.fail(ReasonOther)
			return apierror.New(apierror.KindDeviceUnavailable, "preview binding failed", err.Error())
		}
	}

	s.mu.Lock()
	if s.state != StateStarting {
		// Stopped while acquiring; release immediately.
		s.mu.Unlock()
		if s.sink != nil {
			s.sink.Detach()
		}
		_ = stream.Close()
		return model.ErrCameraNotLive
	}
	s.stream = stream
	s.state = StateLive
	s.mu.Unlock()

	liveMu.Lock()
	liveSession = s
	liveMu.Unlock()

	s.publish(event.TypeCameraLive, nil)
	return nil
}

// Stop releases all tracks and detaches the preview sink. Idempotent, legal
// from every state, and the single cancellation point for everything tied
// to this camera's lifetime.
func (s *Session) Stop() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	already := s.state == StateStopped
	s.state = StateStopped
	s.mu.Unlock()

	s.cancel()

	if s.sink != nil {
		s.sink.Detach()
	}
	if stream != nil {
		_ = stream.Close()
	}

	liveMu.Lock()
	if liveSession == s {
		liveSession = nil
	}
	liveMu.Unlock()

	if !already {
		s.publish(event.TypeCameraStopped, nil)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Stream returns the live stream, or false when the session is not live.
func (s *Session) Stream() (Stream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLive || s.stream == nil {
		return nil, false
	}

	return s.stream, true
}

// Context is canceled when the session stops. QR sampling and in-flight
// validation derive from it.
func (s *Session) Context() context.Context {
	return s.lifetime
}

func (s *Session) fail(reason Reason) {
	s.mu.Lock()
	s.state = StateError
	s.reason = reason
	s.mu.Unlock()

	s.publish(event.TypeCameraError, string(reason))
}

func (s *Session) publish(t event.Type, payload interface{}) {
	if s.bus != nil {
		s.bus.Publish(t, payload)
	}
}
