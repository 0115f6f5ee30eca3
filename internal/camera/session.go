package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/zombor/arcade-scan/internal/clock"
)

// DefaultReadyFallback is how long to wait for the metadata event before polling the sink
const DefaultReadyFallback = 3 * time.Second

// Acquisition describes the stream a session obtained
type Acquisition struct {
	Constraints Constraints
	// Fallback is true when the ideal constraints were rejected and the minimal set was used
	Fallback bool
}

// Options configures a Session
type Options struct {
	Permissions   Permissions
	Clock         clock.Clock
	ReadyFallback time.Duration
}

// Session owns at most one live stream and the sink it plays into
type Session struct {
	device        Device
	sink          Sink
	permissions   Permissions
	clock         clock.Clock
	readyFallback time.Duration

	mu            sync.Mutex
	gen           uint64
	stream        Stream
	ready         chan struct{}
	fallbackTimer clock.Timer
}

// NewSession creates a Session for device playing into sink
func NewSession(device Device, sink Sink, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.ReadyFallback <= 0 {
		opts.ReadyFallback = DefaultReadyFallback
	}
	return &Session{
		device:        device,
		sink:          sink,
		permissions:   opts.Permissions,
		clock:         opts.Clock,
		readyFallback: opts.ReadyFallback,
		ready:         make(chan struct{}),
	}
}

// Acquire opens a stream, attaches it to the sink and starts playback.
// The ideal constraint set is tried first, then the minimal one.
// Readiness is reported separately through Ready.
func (s *Session) Acquire(ctx context.Context, facing Facing) (Acquisition, error) {
	s.mu.Lock()
	s.releaseLocked()
	s.gen++
	gen := s.gen
	ready := make(chan struct{})
	s.ready = ready
	s.mu.Unlock()

	if s.permissions != nil {
		state, err := s.permissions.Camera(ctx)
		if err != nil {
			slog.Warn("Could not query camera permission", "error", err)
		} else if state == PermissionDenied {
			return Acquisition{}, unavailable(ErrPermissionDenied)
		}
	}

	acq := Acquisition{Constraints: IdealConstraints(facing)}
	stream, err := s.device.Open(ctx, acq.Constraints)
	if err != nil {
		slog.Warn("Ideal camera constraints failed, retrying with minimal constraints", "error", err)
		acq = Acquisition{Constraints: MinimalConstraints(facing), Fallback: true}
		stream, err = s.device.Open(ctx, acq.Constraints)
		if err != nil {
			return Acquisition{}, unavailable(err)
		}
	}

	var once sync.Once
	signal := func() {
		once.Do(func() { close(ready) })
	}

	s.mu.Lock()
	if s.gen != gen {
		// Released while the device was opening
		s.mu.Unlock()
		stopTracks(stream)
		return Acquisition{}, ErrReleased
	}
	s.stream = stream
	s.sink.OnMetadata(signal)
	if err := s.sink.Attach(stream); err != nil {
		s.releaseLocked()
		s.mu.Unlock()
		return Acquisition{}, unavailable(fmt.Errorf("attaching stream: %w", err))
	}
	s.fallbackTimer = s.clock.AfterFunc(s.readyFallback, func() {
		s.pollReady(gen, signal)
	})
	s.mu.Unlock()

	if err := s.sink.Play(ctx); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return Acquisition{}, ErrReleased
		}
		s.releaseLocked()
		return Acquisition{}, unavailable(fmt.Errorf("starting playback: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return Acquisition{}, ErrReleased
	}
	return acq, nil
}

// pollReady declares readiness when the metadata event never fired but the sink has data
func (s *Session) pollReady(gen uint64, signal func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.stream == nil {
		return
	}
	if s.sink.ReadyState() >= HaveCurrentData {
		slog.Debug("Camera ready via fallback timer")
		signal()
	}
}

// Ready returns a channel closed once the current stream has usable dimensions
func (s *Session) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// IsReady reports whether a live stream has signaled readiness
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return false
	}
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Live reports whether the session currently holds a stream
func (s *Session) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Capture copies the current frame. It returns ErrNoFrame while the sink has no dimensions yet.
func (s *Session) Capture() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil, ErrNotAcquired
	}
	if w, h := s.sink.Dimensions(); w <= 0 || h <= 0 {
		return nil, ErrNoFrame
	}
	return s.sink.Snapshot()
}

// Release stops every track, detaches the sink and forgets the stream.
// It is safe to call at any time and any number of times.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.releaseLocked()
}

func (s *Session) releaseLocked() {
	if s.fallbackTimer != nil {
		s.fallbackTimer.Stop()
		s.fallbackTimer = nil
	}
	if s.stream == nil {
		return
	}
	stopTracks(s.stream)
	s.sink.Detach()
	s.stream = nil
}

func stopTracks(stream Stream) {
	for _, track := range stream.Tracks() {
		track.Stop()
	}
}
