package event

type Type string

const (
	TypeCameraStarting Type = "camera.starting"
	TypeCameraLive     Type = "camera.live"
	TypeCameraStopped  Type = "camera.stopped"
	TypeCameraError    Type = "camera.error"
	TypeQRValidating   Type = "qr.validating"
	TypeQRArmed        Type = "qr.armed"
	TypeQRRejected     Type = "qr.rejected"
	TypeScanCapturing  Type = "scan.capturing"
	TypeScanUploading  Type = "scan.uploading"
	TypeScanComplete   Type = "scan.complete"
	TypePointsMerged   Type = "points.merged"
	TypePushOpen       Type = "push.open"
	TypePushClosed     Type = "push.closed"
	TypeSessionExpired Type = "session.expired"
)

type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type Bus interface {
	Publish(t Type, payload interface{})
	Subscribe() (<-chan Event, func())
}
