package model

import "errors"

var (
	// Session related errors
	ErrNoCredential = errors.New("no credential in session")
	ErrNoUser       = errors.New("no user in session")

	// Camera related errors
	ErrCameraNotLive = errors.New("camera session is not live")
	ErrCameraInUse   = errors.New("another camera session is live")

	// Pipeline related errors
	ErrNotArmed        = errors.New("shutter pressed while gate not armed")
	ErrUploadInFlight  = errors.New("scan upload already in flight")
	ErrScanInProgress  = errors.New("pending scan already processing")
	ErrNoPendingResult = errors.New("no pending scan result")

	// State machine errors
	ErrIllegalTransition = errors.New("illegal state transition")
)
