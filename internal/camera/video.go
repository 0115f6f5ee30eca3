package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"

	"gocv.io/x/gocv"

	"github.com/zombor/arcade-scan/internal/scanning"
)

// VideoDevice opens a local capture device through OpenCV
type VideoDevice struct {
	id int
}

// NewVideoDevice creates a VideoDevice for the capture device with the given index
func NewVideoDevice(id int) *VideoDevice {
	return &VideoDevice{id: id}
}

// Open opens the capture device and applies c. Facing is ignored; local devices have a single direction.
func (d *VideoDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(d.id)
	if err != nil {
		return nil, fmt.Errorf("opening video device %d: %w", d.id, d.openFailure(err))
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("opening video device %d: %w", d.id, d.openFailure(nil))
	}

	if !c.Minimal() {
		if err := applyConstraints(vc, c); err != nil {
			vc.Close()
			return nil, err
		}
	}

	return &videoStream{vc: vc, mat: gocv.NewMat()}, nil
}

// openFailure guesses why OpenCV could not open the device
func (d *VideoDevice) openFailure(cause error) error {
	if runtime.GOOS == "linux" {
		node := fmt.Sprintf("/dev/video%d", d.id)
		if _, err := os.Stat(node); os.IsNotExist(err) {
			return ErrNotFound
		} else if os.IsPermission(err) {
			return ErrPermissionDenied
		}
		return ErrDeviceBusy
	}
	if cause != nil {
		return cause
	}
	return ErrNotFound
}

func applyConstraints(vc *gocv.VideoCapture, c Constraints) error {
	if c.Width.Ideal > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, c.Width.Ideal)
	}
	if c.Height.Ideal > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, c.Height.Ideal)
	}
	if c.FrameRate.Ideal > 0 {
		vc.Set(gocv.VideoCaptureFPS, c.FrameRate.Ideal)
	}

	width := vc.Get(gocv.VideoCaptureFrameWidth)
	height := vc.Get(gocv.VideoCaptureFrameHeight)
	fps := vc.Get(gocv.VideoCaptureFPS)
	if width < c.Width.Min || height < c.Height.Min {
		return fmt.Errorf("%w: %.0fx%.0f below %.0fx%.0f", ErrOverconstrained, width, height, c.Width.Min, c.Height.Min)
	}
	// Some backends report 0 fps; only reject a known low rate
	if fps > 0 && fps < c.FrameRate.Min {
		return fmt.Errorf("%w: %.0f fps below %.0f", ErrOverconstrained, fps, c.FrameRate.Min)
	}
	return nil
}

type videoStream struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

func (s *videoStream) Tracks() []Track {
	return []Track{s}
}

// Stop closes the capture device. Reads after Stop return ErrReleased.
func (s *videoStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.mat.Close()
	s.vc.Close()
}

func (s *videoStream) ReadFrame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrReleased
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, ErrNoFrame
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return scanning.ToRGBA(img), nil
}
