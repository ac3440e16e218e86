package speech

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyylabs/facegate/pkg/audio"
)

// Capture durations used by the orchestrators.
const (
	WakeCaptureDuration     = 3 * time.Second
	FreeFormCaptureDuration = 5 * time.Second
	LongCaptureDuration     = 10 * time.Second
)

// Pipeline is the facade over capture, the silence gate, transcription,
// and speech output. Every device touch serializes through the arbiter;
// the pipeline itself is single-threaded relative to its caller.
type Pipeline struct {
	arbiter *audio.Arbiter
	input   audio.InputDevice
	silence *audio.SilenceDetector
	tts     Synthesizer
	log     zerolog.Logger
}

// NewPipeline assembles the facade.
func NewPipeline(arb *audio.Arbiter, input audio.InputDevice, silence *audio.SilenceDetector, tts Synthesizer, log zerolog.Logger) *Pipeline {
	return &Pipeline{arbiter: arb, input: input, silence: silence, tts: tts, log: log}
}

// Listen captures for the given duration and transcribes with the given
// engine. Silent captures are dropped before transcription and return the
// empty string.
func (p *Pipeline) Listen(ctx context.Context, engine *Engine, d time.Duration) (string, error) {
	release, err := p.arbiter.AcquireForRecording()
	if err != nil {
		return "", err
	}
	buf, err := p.input.Capture(ctx, d)
	release()
	if err != nil {
		return "", err
	}

	if p.silence.IsSilence(buf) {
		p.log.Debug().Float64("energy", buf.Energy()).Msg("silent capture dropped")
		return "", nil
	}

	text, err := engine.Transcribe(ctx, buf.PCM16())
	if err != nil {
		return "", err
	}
	p.log.Debug().Str("text", text).Dur("duration", d).Msg("transcribed")
	return text, nil
}

// Say synthesizes text and blocks until playback finishes.
func (p *Pipeline) Say(ctx context.Context, text string) error {
	release, err := p.arbiter.AcquireForPlayback()
	if err != nil {
		return err
	}
	defer release()

	p.log.Debug().Str("text", text).Msg("speaking")
	return p.tts.Speak(ctx, text)
}

// Ask speaks the prompt and immediately listens for the reply.
func (p *Pipeline) Ask(ctx context.Context, prompt string, engine *Engine, d time.Duration) (string, error) {
	if err := p.Say(ctx, prompt); err != nil {
		return "", err
	}
	return p.Listen(ctx, engine, d)
}
