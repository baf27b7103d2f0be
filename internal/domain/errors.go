package domain

import "errors"

var (
	// ErrAlreadyRecording is returned by start when a session is active.
	ErrAlreadyRecording = errors.New("a session is already recording")

	// ErrNotRecording is returned by stop when no session is recording.
	ErrNotRecording = errors.New("no session is recording")

	// ErrInvalidTransition is returned for a disallowed status change.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrDeviceLost means the capture device disappeared mid-session.
	// It is fatal to the current session.
	ErrDeviceLost = errors.New("capture device lost")

	// ErrSessionNotFound is returned for lookups of unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyTranscript means a summary was requested for a session with
	// no transcribed text.
	ErrEmptyTranscript = errors.New("session has no transcript")

	// ErrUnknownSummaryKind is returned when the caller names a backend
	// that is not registered.
	ErrUnknownSummaryKind = errors.New("unknown summary kind")

	// ErrMalformedSummary means the backend returned a payload that could
	// not be parsed or validated. Nothing is persisted in that case.
	ErrMalformedSummary = errors.New("malformed summary payload")
)
