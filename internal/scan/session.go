package scan

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/zombor/arcade-scan/internal/camera"
	"github.com/zombor/arcade-scan/internal/clock"
	"github.com/zombor/arcade-scan/internal/metrics"
	"github.com/zombor/arcade-scan/internal/scanning"
)

// State is the lifecycle state of a Session
type State int

const (
	Idle State = iota
	AcquiringCamera
	AwaitingFirstFrame
	Scanning
	Processing
	Completed
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AcquiringCamera:
		return "acquiring_camera"
	case AwaitingFirstFrame:
		return "awaiting_first_frame"
	case Scanning:
		return "scanning"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Camera is the camera capability a session drives. *camera.Session implements it.
type Camera interface {
	Acquire(ctx context.Context, facing camera.Facing) (camera.Acquisition, error)
	Ready() <-chan struct{}
	IsReady() bool
	Capture() (*image.RGBA, error)
	Release()
}

// Status is a point-in-time view of a session
type Status struct {
	ID        string `json:"id"`
	Mode      Mode   `json:"mode"`
	State     string `json:"state"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// Session runs one scan from camera acquisition to a delivered result.
// All state changes happen under mu; camera acquisition, decoding and
// lookups run outside it and are discarded when gen moved on.
type Session struct {
	id         string
	mode       Mode
	cfg        Config
	camera     Camera
	decoder    scanning.Decoder
	classifier *scanning.Classifier
	router     *Router
	gate       *Gate
	loop       *Loop
	clock      clock.Clock
	metrics    *metrics.Metrics
	onScan     func(text string)
	onClose    func()
	onNotice   func(Notice)

	mu            sync.Mutex
	state         State
	gen           uint64
	attempts      int
	inFlight      bool
	lastError     error
	resumeTimer   clock.Timer
	live          bool
	closeNotified bool
	cancel        context.CancelFunc
	runCtx        context.Context
}

// ID returns the session's unique identifier
func (s *Session) ID() string {
	return s.id
}

// Mode returns the scan mode fixed at creation
func (s *Session) Mode() Mode {
	return s.mode
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns decode attempts since the last start or resume
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// LastError returns the most recent non-fatal or terminal error
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Status returns a snapshot of the session
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{
		ID:       s.id,
		Mode:     s.mode,
		State:    s.state.String(),
		Attempts: s.attempts,
	}
	if s.lastError != nil {
		status.LastError = s.lastError.Error()
	}
	return status
}

// Start acquires the camera and begins scanning once the first frame is ready.
// It blocks until the camera is acquired or has failed. Calling Start on a
// session that is already running does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Idle, Failed, Completed, Closed:
	default:
		state := s.state
		s.mu.Unlock()
		slog.Debug("Ignoring start of running scan session", "session", s.id, "state", state)
		return nil
	}
	s.gen++
	gen := s.gen
	s.state = AcquiringCamera
	s.attempts = 0
	s.lastError = nil
	s.inFlight = false
	s.closeNotified = false
	s.gate.Reset()
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	runCtx := s.runCtx
	s.mu.Unlock()

	s.metrics.SessionStarted()
	slog.Info("Starting scan session", "session", s.id, "mode", s.mode)

	acq, err := s.camera.Acquire(ctx, s.cfg.Facing)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		s.finishLocked(Failed)
		s.lastError = err
		s.mu.Unlock()

		reason := camera.ReasonUnknown
		var unavailable *camera.UnavailableError
		if errors.As(err, &unavailable) {
			reason = unavailable.Reason
		}
		s.metrics.CameraFailure(string(reason))
		slog.Error("Failed to acquire camera", "session", s.id, "reason", reason, "error", err)
		s.notify(Notice{Kind: NoticeCameraFailed, SessionID: s.id, Err: err})
		return err
	}

	s.state = AwaitingFirstFrame
	s.live = true
	ready := s.camera.Ready()
	s.mu.Unlock()

	s.metrics.StreamAcquired()
	slog.Info("Camera acquired", "session", s.id, "fallback_constraints", acq.Fallback)

	go s.awaitReady(runCtx, gen, ready)
	return nil
}

func (s *Session) awaitReady(ctx context.Context, gen uint64, ready <-chan struct{}) {
	select {
	case <-ready:
	case <-ctx.Done():
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != AwaitingFirstFrame {
		return
	}
	s.state = Scanning
	s.loop.Start()
	slog.Debug("Scanning", "session", s.id)
}

// tick is the sampling loop handler. It reports whether a decode was started.
func (s *Session) tick(loopGen uint64) bool {
	s.mu.Lock()
	if s.state != Scanning || s.inFlight || !s.camera.IsReady() {
		s.mu.Unlock()
		return false
	}
	if !s.gate.ShouldProcess() {
		s.mu.Unlock()
		return false
	}
	frame, err := s.camera.Capture()
	if err != nil {
		s.mu.Unlock()
		if !errors.Is(err, camera.ErrNoFrame) {
			slog.Debug("Frame capture failed", "session", s.id, "error", err)
		}
		return false
	}
	if b := frame.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		s.mu.Unlock()
		return false
	}
	s.inFlight = true
	s.attempts++
	gen := s.gen
	ctx := s.runCtx
	state := s.gate.State()
	s.mu.Unlock()

	s.metrics.DecodeAttempt()
	go s.decode(ctx, gen, loopGen, frame, state)
	return true
}

func (s *Session) decode(ctx context.Context, gen, loopGen uint64, frame *image.RGBA, state *scanning.DecoderState) {
	candidate, err := s.decoder.Detect(ctx, frame, state)
	classified, ok := s.settle(gen, candidate, err)
	s.loop.Next(loopGen)
	if !ok {
		return
	}

	decision := s.router.Route(ctx, classified, s.mode)
	s.apply(gen, classified, decision)
}

// settle records a finished decode and moves to Processing when the candidate is accepted
func (s *Session) settle(gen uint64, candidate *scanning.Candidate, err error) (scanning.Classified, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return scanning.Classified{}, false
	}
	s.inFlight = false

	if err != nil {
		s.lastError = &DecodeError{Err: err}
		s.metrics.DecodeError()
		slog.Warn("Decode attempt failed", "session", s.id, "error", err)
		return scanning.Classified{}, false
	}
	if candidate == nil || s.state != Scanning {
		return scanning.Classified{}, false
	}
	if candidate.Confidence <= s.cfg.MinConfidence {
		s.metrics.LowConfidence()
		slog.Debug("Ignoring low confidence candidate", "session", s.id, "confidence", candidate.Confidence)
		return scanning.Classified{}, false
	}

	s.state = Processing
	classified := s.classifier.ClassifyCandidate(*candidate)
	slog.Info("Barcode decoded", "session", s.id, "category", classified.Category, "format", candidate.Format, "confidence", candidate.Confidence)
	return classified, true
}

func (s *Session) apply(gen uint64, classified scanning.Classified, decision Decision) {
	s.mu.Lock()
	if s.gen != gen || s.state != Processing {
		s.mu.Unlock()
		return
	}

	text := classified.Candidate.Text
	category := string(classified.Category)

	switch decision.Action {
	case ResumeAfterDelay:
		s.lastError = decision.Err
		s.resumeTimer = s.clock.AfterFunc(s.cfg.ResumeDelay, func() { s.resume(gen) })
		s.mu.Unlock()

		s.metrics.LookupFailure()
		slog.Warn("Lookup failed, resuming scan after delay", "session", s.id, "delay", s.cfg.ResumeDelay, "error", decision.Err)
		s.notify(Notice{Kind: NoticeLookupFailed, SessionID: s.id, Text: text, Err: decision.Err})

	case AcceptWithWarning:
		s.lastError = decision.Err
		s.finishLocked(Completed)
		s.mu.Unlock()

		s.metrics.Scan(category, "mismatch")
		slog.Warn("Forwarding scan that does not match mode", "session", s.id, "mode", s.mode, "category", category)
		s.notify(Notice{Kind: NoticeMismatch, SessionID: s.id, Text: text, Err: decision.Err})
		s.deliver(text)

	default:
		s.finishLocked(Completed)
		s.mu.Unlock()

		s.metrics.Scan(category, "accepted")
		slog.Info("Scan accepted", "session", s.id, "category", category)
		s.deliver(text)
	}
}

func (s *Session) resume(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != Processing {
		return
	}
	s.resumeTimer = nil
	s.gate.Reset()
	s.attempts = 0
	s.state = Scanning
	slog.Debug("Scanning resumed", "session", s.id)
}

// Stop ends the session from any state. It stops the sampling loop, releases
// the camera and resets the gate before returning. Repeated calls do nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.finishLocked(Closed)
	s.gate.Reset()
	notifyClose := !s.closeNotified
	s.closeNotified = true
	s.mu.Unlock()

	slog.Info("Scan session closed", "session", s.id)
	if notifyClose && s.onClose != nil {
		s.onClose()
	}
}

// finishLocked moves to a terminal state and releases everything the session holds
func (s *Session) finishLocked(state State) {
	s.state = state
	s.inFlight = false
	s.loop.Stop()
	if s.resumeTimer != nil {
		s.resumeTimer.Stop()
		s.resumeTimer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.camera.Release()
	if s.live {
		s.live = false
		s.metrics.StreamReleased()
	}
}

func (s *Session) deliver(text string) {
	if s.onScan != nil {
		s.onScan(text)
	}
}

func (s *Session) notify(n Notice) {
	if s.onNotice != nil {
		s.onNotice(n)
	}
}

func newSessionID() string {
	return uuid.NewString()
}
