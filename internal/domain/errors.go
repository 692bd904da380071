package domain

import "errors"

// Sentinel errors returned by the public API and checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("medlink: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("medlink: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("medlink: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("medlink: invalid configuration")

	// ErrCredentialsInvalid marks a remote rejection caused by a missing or
	// revoked API key. It is never retried silently; the operator has to
	// reconfigure.
	ErrCredentialsInvalid = errors.New("medlink: credentials invalid")

	// ErrFeatureUnavailable marks an optional remote endpoint that this
	// deployment does not serve. Callers treat it as absence, not failure.
	ErrFeatureUnavailable = errors.New("medlink: feature unavailable on remote")

	// ErrFileTooLarge is returned for files above the watcher's size ceiling.
	ErrFileTooLarge = errors.New("medlink: file exceeds size limit")

	// ErrFileLocked is returned when a producer still holds the file open.
	ErrFileLocked = errors.New("medlink: file locked by writer")
)
