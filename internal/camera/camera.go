package camera

import (
	"context"
	"image"
)

// Facing is the preferred camera direction
type Facing string

const (
	FacingEnvironment Facing = "environment" // rear camera
	FacingUser        Facing = "user"
)

// Range is a numeric constraint. A zero Ideal means unconstrained.
type Range struct {
	Ideal float64
	Min   float64
}

// Constraints describes the stream requested from a Device
type Constraints struct {
	Facing    Facing
	Width     Range
	Height    Range
	FrameRate Range
}

// IdealConstraints prefers 1280x720 at 30 fps and accepts no less than 640x480 at 15 fps
func IdealConstraints(facing Facing) Constraints {
	return Constraints{
		Facing:    facing,
		Width:     Range{Ideal: 1280, Min: 640},
		Height:    Range{Ideal: 720, Min: 480},
		FrameRate: Range{Ideal: 30, Min: 15},
	}
}

// MinimalConstraints only carries the facing hint
func MinimalConstraints(facing Facing) Constraints {
	return Constraints{Facing: facing}
}

// Minimal reports whether c carries no resolution or frame rate constraints
func (c Constraints) Minimal() bool {
	return c.Width == (Range{}) && c.Height == (Range{}) && c.FrameRate == (Range{})
}

// ReadyState mirrors the readiness levels of a video element
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// Track is one media track of a live stream
type Track interface {
	Stop()
}

// Stream is a live camera stream
type Stream interface {
	Tracks() []Track
}

// Device opens camera streams
type Device interface {
	// Open returns a live stream or fails with an error wrapping ErrPermissionDenied,
	// ErrNotFound, ErrDeviceBusy or ErrOverconstrained when the cause is known.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Sink is the video surface a stream plays into
type Sink interface {
	Attach(s Stream) error
	Play(ctx context.Context) error
	// OnMetadata registers fn to run once frame dimensions become known. It replaces any earlier callback.
	OnMetadata(fn func())
	ReadyState() ReadyState
	Dimensions() (width, height int)
	// Snapshot copies the current frame
	Snapshot() (*image.RGBA, error)
	Detach()
}

// PermissionState is the host's camera permission
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionPrompt  PermissionState = "prompt"
	PermissionDenied  PermissionState = "denied"
)

// Permissions reports the ambient camera permission
type Permissions interface {
	Camera(ctx context.Context) (PermissionState, error)
}
