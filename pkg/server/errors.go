package server

import "errors"

// Sentinel errors for the dispatcher.
var (
	// ErrClosed is returned by RunOnce and Serve after Shutdown.
	ErrClosed = errors.New("server: closed")
)
