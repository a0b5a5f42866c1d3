package core

import (
	"errors"
	"time"
)

// Engine defaults
const (
	DefaultIdleTimeout    = 30 * time.Second
	DefaultReadBufferSize = 8192
	DefaultMaxConnections = 10000

	// pollInterval bounds how long the loop sleeps before checking idle
	// timers and shutdown
	pollInterval = 100 * time.Millisecond

	// maxRetainedQueue is the largest connection queue kept when a
	// connection is recycled
	maxRetainedQueue = 64 << 10
)

// Error definitions
var (
	ErrListener           = errors.New("scgi server: listener failed")
	ErrUnsupportedNetwork = errors.New("scgi server: unsupported network")
	ErrAlreadyServing     = errors.New("scgi server: already serving")
)
