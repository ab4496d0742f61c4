package apierror

import (
	"errors"
	"fmt"
)

// Kind is the client-visible error taxonomy. Every terminal state the user
// can see maps to exactly one Kind.
type Kind string

const (
	KindPermissionDenied      Kind = "permission-denied"
	KindDeviceUnavailable     Kind = "device-unavailable"
	KindQRInvalid             Kind = "qr-invalid"
	KindQRValidationTransport Kind = "qr-validation-transport"
	KindCaptureFailed         Kind = "capture-failed"
	KindUploadTransport       Kind = "upload-transport"
	KindUploadRejected        Kind = "upload-rejected"
	KindResultTimeout         Kind = "result-timeout"
	KindAuthExpired           Kind = "auth-expired"
)

type APIError struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func New(kind Kind, message string, details string) *APIError {
	return &APIError{Kind: kind, Message: message, Details: details}
}

func WithStatus(kind Kind, message string, details string, status int) *APIError {
	return &APIError{Kind: kind, Message: message, Details: details, HTTPStatus: status}
}

// KindOf extracts the Kind from err, or "" when err is not an APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
