// Package camera captures still frames for registration and recognition.
//
// The actual camera device is external; the default implementation shells
// out to a capture command that writes one JPEG to stdout (ffmpeg,
// fswebcam, or imagesnap depending on platform). Tests use canned frames.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrCaptureFailed wraps any failure to produce a frame.
var ErrCaptureFailed = errors.New("camera: capture failed")

// Camera produces one still frame per call.
type Camera interface {
	// Capture returns an encoded image (JPEG or PNG).
	Capture(ctx context.Context) ([]byte, error)
}

// CommandCamera shells out to a capture command whose stdout is the
// encoded frame.
type CommandCamera struct {
	bin  string
	args []string
}

// NewCommandCamera configures the capture command.
func NewCommandCamera(bin string, args ...string) *CommandCamera {
	return &CommandCamera{bin: bin, args: args}
}

func (c *CommandCamera) Capture(ctx context.Context) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin, c.args...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCaptureFailed, c.bin, err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: %s produced no frame", ErrCaptureFailed, c.bin)
	}
	return out.Bytes(), nil
}

// Static always returns the same frame. For tests and batch enrolment.
type Static struct {
	Frame []byte
	Err   error
}

func (s *Static) Capture(context.Context) ([]byte, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	cp := make([]byte, len(s.Frame))
	copy(cp, s.Frame)
	return cp, nil
}
