package chat

import "errors"

// Gateway error types.
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEventChannelFull  = errors.New("event channel is full")
	ErrConnectionClosed  = errors.New("connection is closed")
	ErrWriteTimeout      = errors.New("write timeout")
	ErrInvalidJSON       = errors.New("invalid JSON payload")
)
