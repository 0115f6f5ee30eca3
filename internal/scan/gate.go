package scan

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zombor/arcade-scan/internal/clock"
	"github.com/zombor/arcade-scan/internal/scanning"
)

// Gate rate-limits decode attempts and owns the decoder state of a session
type Gate struct {
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	limiter *rate.Limiter
	state   *scanning.DecoderState
}

// NewGate allows at most one decode attempt per interval
func NewGate(interval time.Duration, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.Real{}
	}
	g := &Gate{clock: clk, interval: interval}
	g.Reset()
	return g
}

// ShouldProcess reports whether a decode attempt is permitted now and consumes the slot if so
func (g *Gate) ShouldProcess() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limiter.AllowN(g.clock.Now(), 1)
}

// Reset makes the next attempt eligible immediately and discards the decoder state
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	limit := rate.Inf
	if g.interval > 0 {
		limit = rate.Every(g.interval)
	}
	g.limiter = rate.NewLimiter(limit, 1)
	g.state = scanning.NewDecoderState()
}

// State returns the decoder state handed to the decoder
func (g *Gate) State() *scanning.DecoderState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
