package scan

import (
	"context"
	"sync"

	"github.com/zombor/arcade-scan/internal/clock"
	"github.com/zombor/arcade-scan/internal/metrics"
	"github.com/zombor/arcade-scan/internal/scanning"
)

// Deps are the collaborators a Scanner wires into every session
type Deps struct {
	Camera  Camera
	Decoder scanning.Decoder
	Lookup  Lookup
	// Optional
	Classifier *scanning.Classifier
	Clock      clock.Clock
	Scheduler  FrameScheduler
	Metrics    *metrics.Metrics
	Notices    func(Notice)
}

// Scanner opens scan sessions. Callers must not keep two sessions open on the same camera.
type Scanner struct {
	deps Deps
	cfg  Config

	mu      sync.Mutex
	current *Session
}

// NewScanner creates a Scanner, filling unset optional deps and config with defaults
func NewScanner(deps Deps, cfg Config) *Scanner {
	cfg = cfg.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Classifier == nil {
		deps.Classifier = scanning.NewClassifier(scanning.DefaultRules)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewTickScheduler(deps.Clock, cfg.FrameInterval)
	}
	return &Scanner{deps: deps, cfg: cfg}
}

// NewSession creates an idle session. Start it with Session.Start.
func (sc *Scanner) NewSession(mode Mode, onScan func(text string), onClose func()) *Session {
	s := &Session{
		id:         newSessionID(),
		mode:       mode,
		cfg:        sc.cfg,
		camera:     sc.deps.Camera,
		decoder:    sc.deps.Decoder,
		classifier: sc.deps.Classifier,
		router:     NewRouter(sc.deps.Lookup),
		gate:       NewGate(sc.cfg.MinInterval, sc.deps.Clock),
		clock:      sc.deps.Clock,
		metrics:    sc.deps.Metrics,
		onScan:     onScan,
		onClose:    onClose,
		onNotice:   sc.deps.Notices,
		state:      Idle,
	}
	s.loop = NewLoop(sc.deps.Scheduler, s.tick)

	sc.mu.Lock()
	sc.current = s
	sc.mu.Unlock()
	return s
}

// Open creates a session and starts it. The session is returned even when the
// camera could not be acquired so the caller can retry with Start.
func (sc *Scanner) Open(ctx context.Context, mode Mode, onScan func(text string), onClose func()) (*Session, error) {
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	s := sc.NewSession(mode, onScan, onClose)
	if err := s.Start(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// Current returns the most recently created session, or nil
func (sc *Scanner) Current() *Session {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.current
}

// Status returns the status of the current session. ok is false before any session exists.
func (sc *Scanner) Status() (status Status, ok bool) {
	s := sc.Current()
	if s == nil {
		return Status{}, false
	}
	return s.Status(), true
}
