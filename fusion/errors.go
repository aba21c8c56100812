package fusion

import (
	"errors"
	"strings"
)

var (
	// ErrPositionUnavailable, ErrPositionPermissionDenied and ErrPositionTimeout are
	// terminal: the engine returns to Idle when a position source fails with one of them.
	ErrPositionUnavailable      = errors.New("position unavailable")
	ErrPositionPermissionDenied = errors.New("position permission denied")
	ErrPositionTimeout          = errors.New("position timeout")

	// ErrMotionUnavailable degrades the engine to GPS-only operation.
	ErrMotionUnavailable = errors.New("motion unavailable")

	// ErrSampleRejected is returned for fixes the jump validator refuses. It never reaches subscribers.
	ErrSampleRejected = errors.New("sample rejected as jump")

	ErrNotTracking = errors.New("not tracking")
)

// IsPositionError reports whether err is one of the terminal position errors.
func IsPositionError(err error) bool {
	return errors.Is(err, ErrPositionUnavailable) ||
		errors.Is(err, ErrPositionPermissionDenied) ||
		errors.Is(err, ErrPositionTimeout)
}

// ErrorFromCode maps the error codes found in recorded streams and platform callbacks.
// Unknown codes are position-unavailable.
func ErrorFromCode(code string) error {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "permission_denied", "permission-denied", "denied":
		return ErrPositionPermissionDenied
	case "timeout":
		return ErrPositionTimeout
	case "motion_unavailable":
		return ErrMotionUnavailable
	default:
		return ErrPositionUnavailable
	}
}

// ErrorCode is the inverse of ErrorFromCode, for recording errors into a session stream.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrPositionPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrPositionTimeout):
		return "timeout"
	case errors.Is(err, ErrMotionUnavailable):
		return "motion_unavailable"
	}
	return "unavailable"
}
