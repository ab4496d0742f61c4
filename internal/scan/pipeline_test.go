package scan

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbin-scan/internal/camera"
	"smartbin-scan/internal/capture"
	"smartbin-scan/internal/model"
	"smartbin-scan/internal/pending"
	"smartbin-scan/internal/qrgate"
	"smartbin-scan/internal/session"
	"smartbin-scan/pkg/apierror"
)

type okValidator struct{}

func (okValidator) ValidateQR(ctx context.Context, token string) (model.QRValidation, error) {
	return model.QRValidation{Valid: true}, nil
}

type fakeUploader struct {
	mu      sync.Mutex
	result  model.ScanResult
	err     error
	release chan struct{}
	calls   int
}

func (f *fakeUploader) UploadScan(ctx context.Context, frame *capture.Frame) (model.ScanResult, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	result := f.result
	err := f.err
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	return result, err
}

func (f *fakeUploader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func signedToken(t *testing.T) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func loggedInSession(t *testing.T, startingPoints int) *session.Session {
	t.Helper()

	store, err := session.OpenStore(t.TempDir())
	require.NoError(t, err)

	cell := pending.NewCell(store, 100, 2*time.Second)
	sess := session.New(store, cell)
	require.NoError(t, sess.Login(signedToken(t), model.User{ID: "user-1", Name: "Demo", Points: startingPoints}))
	return sess
}

func newPipeline(t *testing.T, uploader Uploader, onResult func()) (*Pipeline, *session.Session) {
	t.Helper()

	sess := loggedInSession(t, 40)
	device := camera.NewSimDevice(image.NewRGBA(image.Rect(0, 0, 640, 480)))
	p := New(
		sess,
		device,
		&camera.NopSink{},
		qrgate.StaticDecoder{Token: "BIN-001"},
		okValidator{},
		uploader,
		nil,
		Options{Gate: qrgate.Options{SampleHz: 200, Cooldown: 20 * time.Millisecond}},
		onResult,
	)
	t.Cleanup(p.StopCamera)
	return p, sess
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func armedPipeline(t *testing.T, uploader Uploader, onResult func()) (*Pipeline, *session.Session) {
	t.Helper()

	p, sess := newPipeline(t, uploader, onResult)
	require.NoError(t, p.StartCamera(context.Background()))
	waitFor(t, func() bool { return p.State() == StateArmed })
	return p, sess
}

func TestPipeline_ArmsAfterValidation(t *testing.T) {
	p, _ := newPipeline(t, &fakeUploader{}, nil)

	require.NoError(t, p.StartCamera(context.Background()))
	assert.False(t, p.ShutterEnabled(), "shutter stays disabled until the gate arms")

	waitFor(t, func() bool { return p.State() == StateArmed })
	assert.True(t, p.ShutterEnabled())
}

func TestPipeline_StartCameraRequiresIdle(t *testing.T) {
	p, _ := armedPipeline(t, &fakeUploader{}, nil)
	assert.ErrorIs(t, p.StartCamera(context.Background()), model.ErrIllegalTransition)
}

func TestPipeline_ShutterRequiresArmedGate(t *testing.T) {
	p, _ := newPipeline(t, &fakeUploader{}, nil)
	assert.ErrorIs(t, p.Shutter(context.Background()), model.ErrNotArmed)
}

func TestPipeline_ShutterHandsOffBeforeUploadFinishes(t *testing.T) {
	total := 45
	uploader := &fakeUploader{
		result:  model.ScanResult{Valid: true, Points: 5, TotalPoints: &total},
		release: make(chan struct{}),
	}

	var handoff struct {
		called bool
		status pending.Status
		state  State
	}

	var p *Pipeline
	var sess *session.Session
	p, sess = armedPipeline(t, uploader, func() {
		handoff.called = true
		handoff.status, _ = sess.Pending.Snapshot()
		handoff.state = p.State()
	})

	require.NoError(t, p.Shutter(context.Background()))

	// The result view opens against a processing cell; the upload has not
	// finished yet.
	assert.True(t, handoff.called)
	assert.Equal(t, pending.StatusProcessing, handoff.status)
	assert.Equal(t, StateUploading, handoff.state)

	// Exactly one upload at a time.
	assert.False(t, p.ShutterEnabled())
	assert.ErrorIs(t, p.Shutter(context.Background()), model.ErrUploadInFlight)

	close(uploader.release)
	waitFor(t, func() bool { return p.State() == StateComplete })

	status, result := sess.Pending.Snapshot()
	assert.Equal(t, pending.StatusComplete, status)
	require.NotNil(t, result)
	assert.True(t, result.Valid)

	user, _ := sess.User()
	assert.Equal(t, 45, user.Points)
}

func TestPipeline_UploadFailureCompletesInvalid(t *testing.T) {
	uploader := &fakeUploader{
		err: apierror.New(apierror.KindUploadTransport, "scan upload failed", "connection refused"),
	}

	p, sess := armedPipeline(t, uploader, nil)
	require.NoError(t, p.Shutter(context.Background()))
	waitFor(t, func() bool { return p.State() == StateComplete })

	status, result := sess.Pending.Snapshot()
	assert.Equal(t, pending.StatusComplete, status)
	require.NotNil(t, result)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Reason)

	// A failed upload must not move points.
	user, _ := sess.User()
	assert.Equal(t, 40, user.Points)
}

func TestPipeline_PushAndHTTPResultsDoNotDoubleCredit(t *testing.T) {
	total := 45
	result := model.ScanResult{Valid: true, Points: 5, TotalPoints: &total}
	uploader := &fakeUploader{result: result}

	p, sess := armedPipeline(t, uploader, nil)
	require.NoError(t, p.Shutter(context.Background()))
	waitFor(t, func() bool { return p.State() == StateComplete })

	// The same result also lands on the push channel, in any order and any
	// number of times.
	p.HandlePushResult(result)
	p.HandlePushResult(result)

	user, _ := sess.User()
	assert.Equal(t, 45, user.Points)
}

func TestPipeline_PushResultWithoutTotalIsStillSafeToRepeat(t *testing.T) {
	uploader := &fakeUploader{result: model.ScanResult{Valid: true, Points: 5}}

	p, sess := armedPipeline(t, uploader, nil)
	require.NoError(t, p.Shutter(context.Background()))
	waitFor(t, func() bool { return p.State() == StateComplete })

	user, _ := sess.User()
	require.Equal(t, 45, user.Points)

	// The push copy carries the authoritative total, so replaying it after
	// the HTTP increment is a no-op.
	total := 45
	p.HandlePushResult(model.ScanResult{Valid: true, Points: 5, TotalPoints: &total})
	user, _ = sess.User()
	assert.Equal(t, 45, user.Points)
}

func TestPipeline_RetakeReturnsToArmed(t *testing.T) {
	uploader := &fakeUploader{result: model.ScanResult{Valid: false, Reason: "not a bottle"}}

	p, sess := armedPipeline(t, uploader, nil)
	require.NoError(t, p.Shutter(context.Background()))
	waitFor(t, func() bool { return p.State() == StateComplete })

	require.NoError(t, p.Retake())

	// Same visit, same validated bin: no re-scan of the QR code.
	assert.Equal(t, StateArmed, p.State())
	assert.True(t, p.ShutterEnabled())
	assert.Equal(t, 1, uploader.callCount())

	status, _ := sess.Pending.Snapshot()
	assert.Equal(t, pending.StatusNone, status)

	// And the shutter genuinely works again.
	require.NoError(t, p.Shutter(context.Background()))
	waitFor(t, func() bool { return p.State() == StateComplete })
	assert.Equal(t, 2, uploader.callCount())
}

func TestPipeline_RetakeRequiresCompletedResult(t *testing.T) {
	p, _ := armedPipeline(t, &fakeUploader{}, nil)
	assert.ErrorIs(t, p.Retake(), model.ErrIllegalTransition)
}

func TestPipeline_StopCameraDoesNotOrphanTheUpload(t *testing.T) {
	total := 45
	uploader := &fakeUploader{
		result:  model.ScanResult{Valid: true, Points: 5, TotalPoints: &total},
		release: make(chan struct{}),
	}

	p, sess := armedPipeline(t, uploader, nil)
	require.NoError(t, p.Shutter(context.Background()))

	// Navigating away stops the camera while the upload is in flight.
	p.StopCamera()
	assert.Equal(t, StateIdle, p.State())

	close(uploader.release)
	waitFor(t, func() bool {
		status, _ := sess.Pending.Snapshot()
		return status == pending.StatusComplete
	})

	// The result still reached the pending cell and the points still merged.
	assert.Equal(t, StateIdle, p.State())
	user, _ := sess.User()
	assert.Equal(t, 45, user.Points)
}

func TestPipeline_Done(t *testing.T) {
	uploader := &fakeUploader{result: model.ScanResult{Valid: true, Points: 5}}

	p, sess := armedPipeline(t, uploader, nil)
	require.NoError(t, p.Shutter(context.Background()))
	waitFor(t, func() bool { return p.State() == StateComplete })

	p.Done()

	assert.Equal(t, StateIdle, p.State())
	status, _ := sess.Pending.Snapshot()
	assert.Equal(t, pending.StatusNone, status)

	// The camera is released with the visit.
	assert.False(t, p.ShutterEnabled())
}
