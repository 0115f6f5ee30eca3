package camera

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNotFound         = errors.New("camera not found")
	ErrDeviceBusy       = errors.New("camera in use by another application")
	ErrOverconstrained  = errors.New("camera cannot satisfy constraints")
	ErrReleased         = errors.New("camera session released")
	ErrNotAcquired      = errors.New("camera not acquired")
	ErrNoFrame          = errors.New("no frame available")
)

// Reason classifies why a camera could not be acquired
type Reason string

const (
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonNotFound         Reason = "not_found"
	ReasonDeviceBusy       Reason = "device_busy"
	ReasonUnknown          Reason = "unknown"
)

// UnavailableError is returned when no constraint set produced a stream
type UnavailableError struct {
	Reason Reason
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("camera unavailable (%s): %v", e.Reason, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func unavailable(err error) *UnavailableError {
	return &UnavailableError{Reason: reasonFor(err), Err: err}
}

func reasonFor(err error) Reason {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrDeviceBusy):
		return ReasonDeviceBusy
	default:
		return ReasonUnknown
	}
}
