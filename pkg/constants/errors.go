package constants

import "errors"

// Errors
var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNotFound          = errors.New("not found")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrPermissionDenied  = errors.New("permission denied")
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidDocument = errors.New("invalid document")
	ErrClosed          = errors.New("closed")
	ErrNoStore         = errors.New("store is not set")
	ErrNoIdentityGate  = errors.New("identity gate is not set")
)
