package scan

import (
	"errors"
	"fmt"

	"github.com/zombor/arcade-scan/internal/scanning"
)

// ErrClosed is returned by Start when the session was stopped while the camera was being acquired
var ErrClosed = errors.New("scan session closed")

// DecodeError wraps a decoder failure. It never ends a session.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// LookupError reports a failed catalog lookup for a decoded barcode
type LookupError struct {
	Category scanning.Category
	Code     string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("looking up %s %q: %v", e.Category, e.Code, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// MismatchError reports a scan whose category does not satisfy the requested mode
type MismatchError struct {
	Mode     Mode
	Category scanning.Category
	Text     string
}

func (e *MismatchError) Error() string {
	if e.Category == scanning.CategoryUnknown {
		return fmt.Sprintf("unrecognized barcode %q scanned in %s mode", e.Text, e.Mode)
	}
	return fmt.Sprintf("scanned a %s barcode %q in %s mode", e.Category, e.Text, e.Mode)
}

// NoticeKind identifies a non-fatal event surfaced to the caller
type NoticeKind string

const (
	NoticeMismatch     NoticeKind = "mismatch"
	NoticeLookupFailed NoticeKind = "lookup_failed"
	NoticeCameraFailed NoticeKind = "camera_failed"
)

// Notice is a non-blocking notification about a session
type Notice struct {
	Kind      NoticeKind
	SessionID string
	Text      string
	Err       error
}
