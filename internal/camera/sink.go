package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"
)

// FrameReader is implemented by streams that produce frames on demand
type FrameReader interface {
	ReadFrame() (*image.RGBA, error)
}

// PullSink plays a FrameReader stream by pulling frames at a fixed interval
// and keeping the most recent one, the way a video element holds its current frame.
type PullSink struct {
	interval time.Duration

	mu         sync.Mutex
	reader     FrameReader
	latest     *image.RGBA
	state      ReadyState
	onMetadata func()
	stop       chan struct{}
	done       chan struct{}
}

// NewPullSink creates a sink that reads a frame every interval
func NewPullSink(interval time.Duration) *PullSink {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return &PullSink{interval: interval}
}

// Attach binds the sink to a stream. The stream must implement FrameReader.
func (p *PullSink) Attach(s Stream) error {
	reader, ok := s.(FrameReader)
	if !ok {
		return fmt.Errorf("stream %T does not produce frames", s)
	}
	p.Detach()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.reader = reader
	p.latest = nil
	p.state = HaveNothing
	return nil
}

// Play starts pulling frames in the background
func (p *PullSink) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reader == nil {
		return fmt.Errorf("no stream attached")
	}
	if p.stop != nil {
		return nil
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.reader, p.stop, p.done)
	return nil
}

func (p *PullSink) run(reader FrameReader, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.pull(reader)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (p *PullSink) pull(reader FrameReader) {
	frame, err := reader.ReadFrame()
	if err != nil {
		if !errors.Is(err, ErrNoFrame) && !errors.Is(err, ErrReleased) {
			slog.Debug("Failed to read frame", "error", err)
		}
		return
	}

	p.mu.Lock()
	if p.reader != reader {
		p.mu.Unlock()
		return
	}
	p.latest = frame
	first := p.state < HaveMetadata
	p.state = HaveEnoughData
	notify := p.onMetadata
	p.mu.Unlock()

	if first && notify != nil {
		notify()
	}
}

// OnMetadata registers fn to run when the first frame arrives
func (p *PullSink) OnMetadata(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMetadata = fn
}

// ReadyState reports how much data the sink holds
func (p *PullSink) ReadyState() ReadyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Dimensions returns the size of the current frame
func (p *PullSink) Dimensions() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return 0, 0
	}
	b := p.latest.Bounds()
	return b.Dx(), b.Dy()
}

// Snapshot copies the current frame
func (p *PullSink) Snapshot() (*image.RGBA, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return nil, ErrNoFrame
	}
	frame := &image.RGBA{
		Pix:    make([]byte, len(p.latest.Pix)),
		Stride: p.latest.Stride,
		Rect:   p.latest.Rect,
	}
	copy(frame.Pix, p.latest.Pix)
	return frame, nil
}

// Detach stops pulling and drops the stream and current frame
func (p *PullSink) Detach() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.reader = nil
	p.latest = nil
	p.state = HaveNothing
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
