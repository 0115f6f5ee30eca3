package scanning

import (
	"context"
	"image"
	"sync"
)

// Candidate is a single barcode reading produced by a Decoder
type Candidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..1
	Format     string  `json:"format"`
}

// DecoderState carries hints between decode attempts of one scan session.
// The pipeline treats it as opaque and replaces it whenever the session resets.
type DecoderState struct {
	mu         sync.Mutex
	lastFormat string
	attempts   int
}

// NewDecoderState returns an empty state
func NewDecoderState() *DecoderState {
	return &DecoderState{}
}

// Observe records a decode attempt and, when present, the format it produced
func (s *DecoderState) Observe(c *Candidate) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if c != nil && c.Format != "" {
		s.lastFormat = c.Format
	}
}

// LastFormat returns the most recent symbology seen in this session
func (s *DecoderState) LastFormat() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFormat
}

// Attempts returns how many frames were handed to the decoder with this state
func (s *DecoderState) Attempts() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Decoder defines the interface for barcode decoding backends
type Decoder interface {
	// Detect looks for a barcode in frame. It returns nil, nil when no barcode is present;
	// errors are reserved for I/O or processing failures.
	Detect(ctx context.Context, frame *image.RGBA, state *DecoderState) (*Candidate, error)
	// Close closes the decoder and releases resources
	Close() error
}
