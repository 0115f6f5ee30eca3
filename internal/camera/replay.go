package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zombor/arcade-scan/internal/scanning"
)

// ReplayDevice plays a directory of still images as a looping camera feed.
// Supported files are JPEG, PNG, GIF, HEIC/HEIF and PDF (first page).
type ReplayDevice struct {
	dir string
}

// NewReplayDevice creates a ReplayDevice reading frames from dir
func NewReplayDevice(dir string) *ReplayDevice {
	return &ReplayDevice{dir: dir}
}

var replayContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".heic": "image/heic",
	".heif": "image/heif",
	".pdf":  "application/pdf",
}

// Open loads every frame in the directory. Frames smaller than the minimum
// resolution of c are rejected with ErrOverconstrained.
func (d *ReplayDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("reading replay directory: %w", ErrPermissionDenied)
		}
		return nil, fmt.Errorf("reading replay directory %s: %w", d.dir, ErrNotFound)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := replayContentTypes[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	frames := make([]*image.RGBA, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(d.dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading frame %s: %w", name, err)
		}
		frame, err := scanning.LoadFrame(data, replayContentTypes[strings.ToLower(filepath.Ext(name))])
		if err != nil {
			return nil, fmt.Errorf("loading frame %s: %w", name, err)
		}
		b := frame.Bounds()
		if float64(b.Dx()) < c.Width.Min || float64(b.Dy()) < c.Height.Min {
			return nil, fmt.Errorf("%w: frame %s is %dx%d", ErrOverconstrained, name, b.Dx(), b.Dy())
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames in %s: %w", d.dir, ErrNotFound)
	}

	return &replayStream{frames: frames}, nil
}

type replayStream struct {
	mu      sync.Mutex
	frames  []*image.RGBA
	next    int
	stopped bool
}

func (s *replayStream) Tracks() []Track {
	return []Track{s}
}

func (s *replayStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.frames = nil
}

// Stopped reports whether the stream's track was stopped
func (s *replayStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *replayStream) ReadFrame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrReleased
	}
	frame := s.frames[s.next]
	s.next = (s.next + 1) % len(s.frames)
	return frame, nil
}
