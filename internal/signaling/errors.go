package signaling

import "errors"

var (
	ErrMissingURI      = errors.New("signaling: registration uri is required")
	ErrMissingUsername = errors.New("signaling: username is required")
	ErrClosed          = errors.New("signaling: adapter is closed")
	ErrUnknownSession  = errors.New("signaling: unknown session")
)
