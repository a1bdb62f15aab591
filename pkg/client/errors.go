package client

import "errors"

var (
	// ErrDaemonNotRunning means nothing listens on the daemon socket.
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied means the daemon socket is not accessible to the current user.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned for a 404 from the daemon.
	ErrNotFound = errors.New("404 not found")

	// ErrUnavailable is returned for a 503, e.g. when the bridge has no
	// outbound endpoint or the dashboard assets are missing.
	ErrUnavailable = errors.New("503 service unavailable")
)
