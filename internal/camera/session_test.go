package camera

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbin-scan/internal/model"
	"smartbin-scan/pkg/apierror"
)

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 320, 240))
}

func TestSession_StartStop(t *testing.T) {
	device := NewSimDevice(testFrame())
	sink := &NopSink{}
	sess := NewSession(device, sink, nil)

	require.NoError(t, sess.Start(context.Background()))
	assert.Equal(t, StateLive, sess.State())
	assert.True(t, sink.Attached())
	assert.Equal(t, SinkOptions{Muted: true, Inline: true}, sink.Options())

	stream, ok := sess.Stream()
	require.True(t, ok)
	assert.False(t, stream.Closed())

	sess.Stop()
	assert.Equal(t, StateStopped, sess.State())
	assert.False(t, sink.Attached())
	assert.Equal(t, 0, device.OpenStreams())

	// Stop is idempotent.
	sess.Stop()
	assert.Equal(t, 0, device.OpenStreams())
}

func TestSession_StopCancelsLifetime(t *testing.T) {
	device := NewSimDevice(testFrame())
	sess := NewSession(device, nil, nil)
	require.NoError(t, sess.Start(context.Background()))

	select {
	case <-sess.Context().Done():
		t.Fatal("lifetime ended before Stop")
	default:
	}

	sess.Stop()

	select {
	case <-sess.Context().Done():
	default:
		t.Fatal("Stop must cancel the lifetime context")
	}
}

func TestSession_FallbackAcquisition(t *testing.T) {
	device := NewSimDevice(testFrame())
	device.FailPreferred = ErrDeviceBusy

	sess := NewSession(device, nil, nil)
	require.NoError(t, sess.Start(context.Background()))
	assert.Equal(t, StateLive, sess.State())
	sess.Stop()
}

func TestSession_ErrorClassification(t *testing.T) {
	cases := []struct {
		name       string
		acquireErr error
		wantReason Reason
		wantKind   apierror.Kind
	}{
		{"permission denied", ErrPermissionDenied, ReasonPermissionDenied, apierror.KindPermissionDenied},
		{"no device", ErrNoDevice, ReasonNoDevice, apierror.KindDeviceUnavailable},
		{"device busy", ErrDeviceBusy, ReasonDeviceBusy, apierror.KindDeviceUnavailable},
		{"unsupported", ErrUnsupported, ReasonUnsupported, apierror.KindDeviceUnavailable},
		{"unknown", assert.AnError, ReasonOther, apierror.KindDeviceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			device := NewSimDevice(testFrame())
			device.FailPreferred = tc.acquireErr
			device.FailRelaxed = tc.acquireErr

			sess := NewSession(device, nil, nil)
			err := sess.Start(context.Background())

			require.Error(t, err)
			assert.Equal(t, StateError, sess.State())
			assert.Equal(t, tc.wantReason, sess.Reason())
			assert.Equal(t, tc.wantKind, apierror.KindOf(err))
			assert.Equal(t, 0, device.OpenStreams())
		})
	}
}

func TestSession_SingleLiveSession(t *testing.T) {
	device := NewSimDevice(testFrame())

	first := NewSession(device, nil, nil)
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop()

	second := NewSession(device, nil, nil)
	err := second.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, apierror.KindDeviceUnavailable, apierror.KindOf(err))
	assert.Equal(t, ReasonDeviceBusy, second.Reason())

	// Releasing the first allows a fresh session to go live.
	first.Stop()
	third := NewSession(device, nil, nil)
	require.NoError(t, third.Start(context.Background()))
	third.Stop()
}

func TestSession_StartRequiresIdle(t *testing.T) {
	device := NewSimDevice(testFrame())
	sess := NewSession(device, nil, nil)
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Stop()

	assert.ErrorIs(t, sess.Start(context.Background()), model.ErrIllegalTransition)
}

func TestSession_NoLeakOnEveryExitPath(t *testing.T) {
	// unmount, explicit stop and navigation all funnel into Stop; each run
	// must leave zero open streams.
	for _, exit := range []string{"unmount", "stop", "page-hide"} {
		t.Run(exit, func(t *testing.T) {
			device := NewSimDevice(testFrame())
			sess := NewSession(device, &NopSink{}, nil)
			require.NoError(t, sess.Start(context.Background()))

			sess.Stop()
			assert.Equal(t, 0, device.OpenStreams())
		})
	}
}
