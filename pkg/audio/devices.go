package audio

import (
	"context"
	"fmt"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"
)

// InputDevice captures a fixed-duration clip from the microphone.
//
// Implementations talk to the platform audio stack; tests use canned
// buffers. Callers must hold the arbiter's recording guard while
// capturing.
type InputDevice interface {
	// Capture records for the given duration and returns the clip.
	Capture(ctx context.Context, d time.Duration) (*Buffer, error)
}

// OutputDevice plays a synthesized clip, blocking until playback
// completes. Callers must hold the arbiter's playback guard.
type OutputDevice interface {
	Play(ctx context.Context, b *Buffer) error
}

// SilenceDetector gates transcription: clips whose RMS energy (int16
// scale) stays under the threshold are dropped without being decoded.
type SilenceDetector struct {
	// EnergyThreshold is the RMS floor. The useful range for typical
	// webcam microphones is a few hundred.
	EnergyThreshold float64
}

// DefaultEnergyThreshold suits most built-in microphones.
const DefaultEnergyThreshold = 300

// NewSilenceDetector returns a detector; threshold <= 0 selects
// DefaultEnergyThreshold.
func NewSilenceDetector(threshold float64) *SilenceDetector {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return &SilenceDetector{EnergyThreshold: threshold}
}

// IsSilence reports whether the clip is quiet enough to skip.
func (s *SilenceDetector) IsSilence(b *Buffer) bool {
	return b.Energy() < s.EnergyThreshold
}

// ResampledInput adapts a device capturing at a foreign sample rate to
// the pipeline's 16 kHz. Mono only.
type ResampledInput struct {
	device     InputDevice
	sourceRate int
}

// NewResampledInput wraps device, whose clips arrive at sourceRate.
// A device already at SampleRate is returned unwrapped.
func NewResampledInput(device InputDevice, sourceRate int) (InputDevice, error) {
	if sourceRate == SampleRate {
		return device, nil
	}
	if sourceRate <= 0 {
		return nil, fmt.Errorf("audio: invalid source rate %d", sourceRate)
	}
	return &ResampledInput{device: device, sourceRate: sourceRate}, nil
}

// Capture records at the device's native rate and resamples down to the
// pipeline rate.
func (r *ResampledInput) Capture(ctx context.Context, d time.Duration) (*Buffer, error) {
	raw, err := r.device.Capture(ctx, d)
	if err != nil {
		return nil, err
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(r.sourceRate),
		OutputRate: float64(SampleRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: resampler: %w", err)
	}

	input := make([]float64, len(raw.Samples))
	for i, s := range raw.Samples {
		input[i] = float64(s)
	}
	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}

	samples := make([]float32, len(output))
	for i, s := range output {
		samples[i] = float32(s)
	}
	return NewBuffer(samples), nil
}
