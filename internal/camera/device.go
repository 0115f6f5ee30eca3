package camera

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDevice parses a device name: "video:<index>" for a capture device or
// "replay:<dir>" for a directory of still frames.
func ParseDevice(name string) (Device, error) {
	kind, arg, ok := strings.Cut(strings.TrimSpace(name), ":")
	if !ok || arg == "" {
		return nil, fmt.Errorf("invalid device %q: want video:<index> or replay:<dir>", name)
	}

	switch kind {
	case "video":
		id, err := strconv.Atoi(arg)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid video device index %q", arg)
		}
		return NewVideoDevice(id), nil
	case "replay":
		return NewReplayDevice(arg), nil
	default:
		return nil, fmt.Errorf("invalid device %q: unknown kind %q", name, kind)
	}
}
