package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandInput captures audio by running a recorder command that writes
// raw signed 16-bit little-endian mono PCM to stdout for a fixed
// duration. The default argument template fits arecord; ffmpeg or sox
// work with a custom template.
//
// Occurrences of "{seconds}" and "{rate}" in the argument template are
// replaced per capture.
type CommandInput struct {
	bin  string
	args []string
	rate int
}

// NewCommandInput builds a capture device. An empty args template selects
// the arecord defaults.
func NewCommandInput(bin string, rate int, args ...string) *CommandInput {
	if len(args) == 0 {
		args = []string{"-q", "-f", "S16_LE", "-r", "{rate}", "-c", "1", "-t", "raw", "-d", "{seconds}"}
	}
	if rate <= 0 {
		rate = SampleRate
	}
	return &CommandInput{bin: bin, args: args, rate: rate}
}

// Rate returns the device's native sample rate.
func (c *CommandInput) Rate() int { return c.rate }

func (c *CommandInput) Capture(ctx context.Context, d time.Duration) (*Buffer, error) {
	seconds := int(d.Seconds() + 0.5)
	if seconds < 1 {
		seconds = 1
	}

	args := make([]string, len(c.args))
	for i, a := range c.args {
		a = strings.ReplaceAll(a, "{seconds}", strconv.Itoa(seconds))
		a = strings.ReplaceAll(a, "{rate}", strconv.Itoa(c.rate))
		args[i] = a
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audio: capture via %s: %w", c.bin, err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("audio: %s produced no samples", c.bin)
	}
	return FromPCM16(out.Bytes()), nil
}
