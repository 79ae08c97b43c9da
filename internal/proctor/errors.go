package proctor

import "errors"

// Sensor acquisition and session lifecycle errors.
var (
	// ErrPermissionDenied means the client refused the hardware permission
	// prompt. The sensor's checks are disabled; the session continues.
	ErrPermissionDenied = errors.New("sensor permission denied")

	// ErrDeviceUnavailable means the hardware could not be acquired, or the
	// client never acknowledged acquisition within the start timeout.
	ErrDeviceUnavailable = errors.New("sensor device unavailable")

	// ErrInvalidExam means the exam definition is missing or malformed and a
	// session cannot be started from it.
	ErrInvalidExam = errors.New("invalid exam definition")

	// ErrNotRunning is returned by actions that require a running session.
	ErrNotRunning = errors.New("session is not running")
)
