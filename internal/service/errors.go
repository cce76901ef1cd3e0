package service

import "errors"

var (
	// ErrSessionNotFound is returned when a session id resolves to nothing,
	// including sessions whose teardown has already begun.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVideoNotInitialized is returned when a session exists but has not
	// been attached to its video yet.
	ErrVideoNotInitialized = errors.New("video not initialized for session")

	// ErrClassifierUnavailable is returned when the classifier failed to
	// load at startup; classification degrades instead of crashing.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrVideoUnreadable is returned by attach when the file cannot be
	// opened as a video.
	ErrVideoUnreadable = errors.New("video unreadable")

	// ErrEmptyVideo is returned by attach when no frame can be read back.
	ErrEmptyVideo = errors.New("video contains no readable frames")

	// ErrConnectionBound rejects a second connection on a bound session.
	ErrConnectionBound = errors.New("session already has a connection")

	// ErrConnectionLost marks a failed event delivery; it is handled the
	// same way as a client disconnect.
	ErrConnectionLost = errors.New("connection lost")
)
