package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/zombor/arcade-scan/internal/camera"
	"github.com/zombor/arcade-scan/internal/scanning"
)

// DefaultMinConfidence is the acceptance threshold for decoded candidates.
// A candidate is accepted only when its confidence is strictly greater.
const DefaultMinConfidence = 0.5

const (
	DefaultMinInterval   = 250 * time.Millisecond
	DefaultFrameInterval = 33 * time.Millisecond
	DefaultResumeDelay   = 3 * time.Second
)

// Config tunes a scan session
type Config struct {
	MinConfidence float64
	// MinInterval is the minimum time between decode attempts
	MinInterval time.Duration
	// FrameInterval is the sampling tick period used by TickScheduler
	FrameInterval time.Duration
	// ResumeDelay is the cool-down after a failed lookup before scanning resumes
	ResumeDelay time.Duration
	Facing      camera.Facing
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MinConfidence: DefaultMinConfidence,
		MinInterval:   DefaultMinInterval,
		FrameInterval: DefaultFrameInterval,
		ResumeDelay:   DefaultResumeDelay,
		Facing:        camera.FacingEnvironment,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinConfidence < 0 || c.MinConfidence >= 1 {
		c.MinConfidence = d.MinConfidence
	}
	if c.MinInterval < 0 {
		c.MinInterval = d.MinInterval
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = d.FrameInterval
	}
	if c.ResumeDelay <= 0 {
		c.ResumeDelay = d.ResumeDelay
	}
	if c.Facing == "" {
		c.Facing = d.Facing
	}
	return c
}

// Mode is the caller's expectation of what will be scanned
type Mode string

const (
	ModeMachine Mode = "machine"
	ModePrize   Mode = "prize"
	ModePart    Mode = "part"
	ModeAuto    Mode = "auto"
)

// ParseMode parses a mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeMachine, ModePrize, ModePart, ModeAuto:
		return m, nil
	default:
		return "", fmt.Errorf("invalid scan mode %q: want machine, prize, part or auto", s)
	}
}

// Matches reports whether a category satisfies the mode. Unknown never matches.
func (m Mode) Matches(c scanning.Category) bool {
	if !c.Known() {
		return false
	}
	return m == ModeAuto || string(m) == string(c)
}
