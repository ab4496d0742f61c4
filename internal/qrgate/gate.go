// Package qrgate arms the shutter only after the backend validates a bin
// token decoded from the live preview. The user must be physically at an
// authorized bin before a capture can happen.
package qrgate

import (
	"context"
	"image"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"smartbin-scan/internal/camera"
	"smartbin-scan/internal/event"
	"smartbin-scan/internal/model"
)

type State string

const (
	StateScanning   State = "scanning"
	StateValidating State = "validating"
	StateArmed      State = "armed"
	StateCooldown   State = "rejected-cooldown"
)

// Decoder extracts a QR payload from one preview frame. When several codes
// are in frame the first decode wins; no region preference is required.
type Decoder interface {
	Decode(img image.Image) (token string, ok bool)
}

type Validator interface {
	ValidateQR(ctx context.Context, token string) (model.QRValidation, error)
}

type Options struct {
	SampleHz   float64
	Cooldown   time.Duration
	ArmedDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.SampleHz <= 0 {
		o.SampleHz = 2
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 2 * time.Second
	}
	return o
}

type Gate struct {
	decoder   Decoder
	validator Validator
	bus       event.Bus
	limiter   *rate.Limiter
	opts      Options

	mu            sync.Mutex
	state         State
	lastToken     string
	rejectedToken string
	lastReason    string
}

func New(decoder Decoder, validator Validator, bus event.Bus, opts Options) *Gate {
	opts = opts.withDefaults()

	return &Gate{
		decoder:   decoder,
		validator: validator,
		bus:       bus,
		limiter:   rate.NewLimiter(rate.Limit(opts.SampleHz), 1),
		opts:      opts,
		state:     StateScanning,
	}
}

// Run samples the preview until the gate arms or the context ends. The
// caller passes a context tied to the camera lifetime, so stopping the
// camera cancels sampling and discards any in-flight validation result.
func (g *Gate) Run(ctx context.Context, cam *camera.Session) error {
	for {
		if g.State() == StateArmed {
			return nil
		}

		if err := g.limiter.Wait(ctx); err != nil {
			g.Reset()
			return err
		}

		stream, ok := cam.Stream()
		if !ok {
			g.Reset()
			return model.ErrCameraNotLive
		}

		img, ready := stream.Preview()
		if ready < camera.ReadinessCurrentData || img == nil {
			continue
		}

		token, decoded := g.decoder.Decode(img)
		if !decoded {
			continue
		}
		if g.isRejected(token) {
			// Rejected tokens are never re-POSTed; the user has to present
			// a different code.
			continue
		}

		g.setValidating(token)
		verdict, err := g.validator.ValidateQR(ctx, token)

		// The camera leaving live while validating voids the verdict.
		if ctx.Err() != nil {
			g.Reset()
			return ctx.Err()
		}
		if cam.State() != camera.StateLive {
			g.Reset()
			return model.ErrCameraNotLive
		}

		if err != nil {
			if done := g.cooldown(ctx, token, "QR validation failed", false); done {
				return ctx.Err()
			}
			continue
		}

		if !verdict.Valid {
			reason := verdict.Reason
			if reason == "" {
				reason = "rejected"
			}
			if done := g.cooldown(ctx, token, "Invalid QR code: "+reason, true); done {
				return ctx.Err()
			}
			continue
		}

		// Brief loading indicator before the shutter goes interactive.
		if g.opts.ArmedDelay > 0 {
			select {
			case <-ctx.Done():
				g.Reset()
				return ctx.Err()
			case <-time.After(g.opts.ArmedDelay):
			}
		}

		g.arm(token)
		return nil
	}
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) Armed() bool {
	return g.State() == StateArmed
}

// LastRejection reports the human-readable reason behind the most recent
// cooldown banner.
func (g *Gate) LastRejection() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastReason
}

// Reset drops the gate back to scanning. Invoked whenever the camera leaves
// live; the armed-across-stop question is resolved as reset-on-stop.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = StateScanning
	g.lastToken = ""
	g.rejectedToken = ""
	g.lastReason = ""
}

func (g *Gate) isRejected(tok string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rejectedToken != "" && g.rejectedToken == tok
}

func (g *Gate) setValidating(tok string) {
	g.mu.Lock()
	g.state = StateValidating
	g.lastToken = tok
	g.mu.Unlock()

	g.publish(event.TypeQRValidating, tok)
}

// cooldown surfaces the rejection for the cooldown window, then resumes
// scanning. Returns true when the context ended during the wait.
func (g *Gate) cooldown(ctx context.Context, tok string, reason string, rejected bool) bool {
	g.mu.Lock()
	g.state = StateCooldown
	g.lastReason = reason
	if rejected {
		g.rejectedToken = tok
	}
	g.mu.Unlock()

	g.publish(event.TypeQRRejected, reason)

	select {
	case <-ctx.Done():
		g.Reset()
		return true
	case <-time.After(g.opts.Cooldown):
	}

	g.mu.Lock()
	if g.state == StateCooldown {
		g.state = StateScanning
	}
	g.mu.Unlock()
	return false
}

func (g *Gate) arm(tok string) {
	g.mu.Lock()
	g.state = StateArmed
	g.lastToken = tok
	g.mu.Unlock()

	g.publish(event.TypeQRArmed, tok)
}

func (g *Gate) publish(t event.Type, payload interface{}) {
	if g.bus != nil {
		g.bus.Publish(t, payload)
	}
}
