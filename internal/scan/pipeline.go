// Package scan coordinates the capture pipeline: camera session, QR gate,
// frame capture, upload with result handoff, and the points merge on both
// the HTTP and push paths.
package scan

import (
	"context"
	"sync"
	"time"

	"smartbin-scan/internal/camera"
	"smartbin-scan/internal/capture"
	"smartbin-scan/internal/event"
	"smartbin-scan/internal/model"
	"smartbin-scan/internal/points"
	"smartbin-scan/internal/qrgate"
	"smartbin-scan/internal/session"
	"smartbin-scan/pkg/apierror"
)

type State string

const (
	StateIdle        State = "idle"
	StateCameraLive  State = "camera-live"
	StateArmed       State = "armed"
	StateCapturing   State = "capturing"
	StateUploading   State = "uploading"
	StateComplete    State = "complete"
	StateCameraError State = "camera-error"
)

// Uploader posts one captured frame. Implemented by the api client.
type Uploader interface {
	UploadScan(ctx context.Context, frame *capture.Frame) (model.ScanResult, error)
}

type Options struct {
	Capture       capture.Options
	Gate          qrgate.Options
	UploadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = 30 * time.Second
	}
	return o
}

type Pipeline struct {
	sess      *session.Session
	device    camera.Device
	sink      camera.Sink
	decoder   qrgate.Decoder
	validator qrgate.Validator
	uploader  Uploader
	bus       event.Bus
	opts      Options

	// onResult is the handoff to the result view. It fires after
	// PendingScan is processing and never blocks the scan page on the
	// upload itself.
	onResult func()

	mu             sync.Mutex
	state          State
	cam            *camera.Session
	gate           *qrgate.Gate
	uploadInFlight bool
}

func New(
	sess *session.Session,
	device camera.Device,
	sink camera.Sink,
	decoder qrgate.Decoder,
	validator qrgate.Validator,
	uploader Uploader,
	bus event.Bus,
	opts Options,
	onResult func(),
) *Pipeline {
	return &Pipeline{
		sess:      sess,
		device:    device,
		sink:      sink,
		decoder:   decoder,
		validator: validator,
		uploader:  uploader,
		bus:       bus,
		opts:      opts.withDefaults(),
		onResult:  onResult,
		state:     StateIdle,
	}
}

// StartCamera brings up a fresh camera session and runs the QR gate loop on
// its lifetime. The pipeline arms asynchronously once the backend validates
// a bin token.
func (p *Pipeline) StartCamera(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return model.ErrIllegalTransition
	}

	cam := camera.NewSession(p.device, p.sink, p.bus)
	gate := qrgate.New(p.decoder, p.validator, p.bus, p.opts.Gate)
	p.cam = cam
	p.gate = gate
	p.mu.Unlock()

	p.sess.AttachCamera(cam)

	if err := cam.Start(ctx); err != nil {
		p.setState(StateCameraError)
		return err
	}

	p.setState(StateCameraLive)

	go func() {
		if err := gate.Run(cam.Context(), cam); err != nil {
			return
		}
		if gate.Armed() {
			p.compareAndSetState(StateCameraLive, StateArmed)
		}
	}()

	return nil
}

// StopCamera cancels everything hanging off the camera: the sampling loop,
// in-flight validation, and the UI's interest in any upload. A background
// upload still completes the pending cell for the result view.
func (p *Pipeline) StopCamera() {
	p.mu.Lock()
	cam := p.cam
	gate := p.gate
	p.state = StateIdle
	p.mu.Unlock()

	if cam != nil {
		cam.Stop()
	}
	if gate != nil {
		gate.Reset()
	}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ShutterEnabled holds exactly when the gate is armed, the camera is live
// and no upload is in flight.
func (p *Pipeline) ShutterEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state == StateArmed &&
		p.gate != nil && p.gate.Armed() &&
		p.cam != nil && p.cam.State() == camera.StateLive &&
		!p.uploadInFlight
}

// Shutter captures one frame and hands off to the result view while the
// upload proceeds in the background.
func (p *Pipeline) Shutter(ctx context.Context) error {
	p.mu.Lock()
	if p.uploadInFlight {
		p.mu.Unlock()
		return model.ErrUploadInFlight
	}
	if p.state != StateArmed || p.gate == nil || !p.gate.Armed() ||
		p.cam == nil || p.cam.State() != camera.StateLive {
		p.mu.Unlock()
		return model.ErrNotArmed
	}
	cam := p.cam
	p.state = StateCapturing
	p.mu.Unlock()

	p.publish(event.TypeScanCapturing, nil)

	stream, ok := cam.Stream()
	if !ok {
		p.setState(StateIdle)
		return model.ErrCameraNotLive
	}

	frame, err := capture.Capture(ctx, stream, p.opts.Capture)
	if err != nil {
		// Capture failure is not terminal for the visit: the gate stays
		// armed and the shutter re-enables.
		p.setState(StateArmed)
		return err
	}

	if err := p.sess.Pending.Begin(); err != nil {
		p.setState(StateArmed)
		return err
	}

	p.mu.Lock()
	p.uploadInFlight = true
	p.state = StateUploading
	p.mu.Unlock()

	p.publish(event.TypeScanUploading, nil)

	// PendingScan is processing before the result route shows; the scan
	// page never blocks on the upload.
	if p.onResult != nil {
		p.onResult()
	}

	go p.upload(frame)
	return nil
}

func (p *Pipeline) upload(frame *capture.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.UploadTimeout)
	defer cancel()

	result, err := p.uploader.UploadScan(ctx, frame)
	if err != nil {
		// Terminal upload failures become a completed invalid result so the
		// result view always reaches a terminal state.
		reason := "scan upload failed"
		if apiErr := apierror.KindOf(err); apiErr != "" {
			reason = err.Error()
		}
		result = model.ScanResult{Valid: false, Points: 0, Reason: reason}
	} else {
		p.applyResult(result)
	}

	_ = p.sess.Pending.Complete(result)

	p.mu.Lock()
	p.uploadInFlight = false
	if p.state == StateUploading {
		p.state = StateComplete
	}
	p.mu.Unlock()

	p.publish(event.TypeScanComplete, result)
}

// HandlePushResult merges a scan_result delivered on the push channel. The
// merge is monotonic, so whichever of the HTTP and push copies arrives
// second is a no-op.
func (p *Pipeline) HandlePushResult(result model.ScanResult) {
	p.applyResult(result)
}

func (p *Pipeline) applyResult(result model.ScanResult) {
	if total, changed := p.sess.ApplyPoints(points.FromResult(result)); changed {
		p.publish(event.TypePointsMerged, total)
	}
}

// Retake returns from an invalid or zero-points result to the armed scanner.
// The gate stays armed while the same camera session is live; no
// re-validation is required within the visit.
func (p *Pipeline) Retake() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateComplete {
		return model.ErrIllegalTransition
	}

	p.sess.Pending.Reset()

	if p.cam != nil && p.cam.State() == camera.StateLive && p.gate != nil && p.gate.Armed() {
		p.state = StateArmed
	} else {
		p.state = StateIdle
	}

	return nil
}

// Done acknowledges a successful result: the pending cell empties and the
// camera is released.
func (p *Pipeline) Done() {
	p.mu.Lock()
	cam := p.cam
	p.state = StateIdle
	p.mu.Unlock()

	p.sess.Pending.Reset()
	if cam != nil {
		cam.Stop()
	}
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) compareAndSetState(from State, to State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != from {
		return false
	}

	p.state = to
	return true
}

func (p *Pipeline) publish(t event.Type, payload interface{}) {
	if p.bus != nil {
		p.bus.Publish(t, payload)
	}
}
