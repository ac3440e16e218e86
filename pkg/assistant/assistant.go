// Package assistant drives the multi-turn voice flows: recognize,
// register, update, and delete. Each flow is a small state machine whose
// transitions are prompt-and-listen turns, camera captures, or tool calls
// through the synchronous facade.
//
// The assistant process never touches the biometric stores directly;
// everything goes through the tool surface, so every decision it triggers
// is authenticated and audited server-side.
package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyylabs/facegate/pkg/camera"
	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/intent"
	"github.com/skyylabs/facegate/pkg/speech"
	"github.com/skyylabs/facegate/pkg/toolclient"
)

// Voice is the prompt-and-listen surface of the speech pipeline.
// *speech.Pipeline implements it; flow tests script it.
type Voice interface {
	Say(ctx context.Context, text string) error
	Listen(ctx context.Context, engine *speech.Engine, d time.Duration) (string, error)
}

// Gateway is the subset of the tool facade the flows call.
// *toolclient.Facade implements it.
type Gateway interface {
	RecognizeFace(image []byte, threshold float32) (*toolclient.RecognizeResponse, error)
	RegisterUser(name string, image []byte, metadata map[string]string) (*toolclient.RegisterResponse, error)
	UpdateUser(userID, name string, metadata map[string]string) (*toolclient.UpdateResponse, error)
	DeleteUser(userID string) error
}

var _ Gateway = (*toolclient.Facade)(nil)

// Command phrases understood after the wake word, in grammar mode.
const (
	CmdRecognize = "who am i"
	CmdRegister  = "register my face"
	CmdUpdate    = "update my profile"
	CmdDelete    = "delete my profile"
	CmdStop      = "stop listening"
)

// Assistant owns the flow state machines.
type Assistant struct {
	voice   Voice
	tools   Gateway
	oracle  *intent.Oracle
	camera  camera.Camera
	wake    *speech.WakeWordDetector
	wakeEng *speech.Engine
	cmdEng  *speech.Engine
	freeEng *speech.Engine
	log     zerolog.Logger

	// now is swappable so greeting tests are deterministic.
	now func() time.Time
}

// Config for New.
type Config struct {
	Voice      Voice
	Tools      Gateway
	Oracle     *intent.Oracle
	Camera     camera.Camera
	Recognizer speech.Recognizer

	// WakeWords open a session, e.g. ["hey facegate"].
	WakeWords []string

	Logger zerolog.Logger
}

// New wires the assistant. The wake-word and command grammars are built
// here; a malformed grammar configuration fails construction.
func New(cfg Config) (*Assistant, error) {
	wakeEng, err := speech.NewGrammarEngine(cfg.Recognizer, cfg.WakeWords)
	if err != nil {
		return nil, err
	}
	commands := []string{CmdRecognize, CmdRegister, CmdUpdate, CmdDelete, CmdStop}
	cmdEng, err := speech.NewGrammarEngine(cfg.Recognizer, commands)
	if err != nil {
		return nil, err
	}

	return &Assistant{
		voice:   cfg.Voice,
		tools:   cfg.Tools,
		oracle:  cfg.Oracle,
		camera:  cfg.Camera,
		wake:    speech.NewWakeWordDetector(cfg.WakeWords),
		wakeEng: wakeEng,
		cmdEng:  cmdEng,
		freeEng: speech.NewFreeFormEngine(cfg.Recognizer),
		log:     cfg.Logger,
		now:     time.Now,
	}, nil
}

// Run is the top-level session loop: wait for a wake word, take one
// command, run its flow, repeat. Returns when ctx is cancelled or the
// user says the stop phrase.
func (a *Assistant) Run(ctx context.Context) error {
	a.log.Info().Msg("assistant listening for wake word")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		heard, err := a.voice.Listen(ctx, a.wakeEng, speech.WakeCaptureDuration)
		if err != nil {
			a.log.Error().Err(err).Msg("wake listen failed")
			continue
		}
		if a.wake.Match(heard) == "" {
			continue
		}
		a.log.Info().Str("phrase", heard).Msg("wake word detected")

		cmd, err := a.voice.Listen(ctx, a.cmdEng, speech.WakeCaptureDuration)
		if err != nil {
			a.log.Error().Err(err).Msg("command listen failed")
			continue
		}

		switch cmd {
		case CmdRecognize, "":
			// The bare wake word defaults to recognition.
			a.runFlow(ctx, "recognize", a.RecognizeFlow)
		case CmdRegister:
			a.runFlow(ctx, "register", a.RegisterFlow)
		case CmdUpdate:
			a.runFlow(ctx, "update", a.UpdateFlow)
		case CmdDelete:
			a.runFlow(ctx, "delete", a.DeleteFlow)
		case CmdStop:
			_ = a.voice.Say(ctx, "Goodbye.")
			return nil
		}
	}
}

func (a *Assistant) runFlow(ctx context.Context, name string, flow func(context.Context) error) {
	a.log.Info().Str("flow", name).Msg("flow started")
	if err := flow(ctx); err != nil {
		a.log.Error().Err(err).Str("flow", name).Msg("flow failed")
		_ = a.voice.Say(ctx, "Sorry, something went wrong. Let's try again later.")
		return
	}
	a.log.Info().Str("flow", name).Msg("flow finished")
}

// askYesNo speaks the question and classifies the reply. One retry on an
// empty capture before giving up as Unclear.
func (a *Assistant) askYesNo(ctx context.Context, question string) intent.Verdict {
	for attempt := 0; attempt < 2; attempt++ {
		if err := a.voice.Say(ctx, question); err != nil {
			return intent.Unclear
		}
		reply, err := a.voice.Listen(ctx, a.freeEng, speech.FreeFormCaptureDuration)
		if err != nil {
			return intent.Unclear
		}
		if reply == "" {
			continue
		}
		return a.oracle.Classify(ctx, reply)
	}
	return intent.Unclear
}

// askYesNoDestructive applies the Unclear→Negative rule.
func (a *Assistant) askYesNoDestructive(ctx context.Context, question string) intent.Verdict {
	if v := a.askYesNo(ctx, question); v == intent.Affirmative {
		return intent.Affirmative
	}
	return intent.Negative
}

// captureFrame takes a still from the camera with a spoken heads-up.
func (a *Assistant) captureFrame(ctx context.Context) ([]byte, error) {
	if err := a.voice.Say(ctx, "Hold still for a moment while I take a look."); err != nil {
		return nil, err
	}
	return a.camera.Capture(ctx)
}

// greeting returns a time-of-day salutation for the user's first name,
// with the match similarity mentioned when it is anything but certain.
func (a *Assistant) greeting(u *facegate.User, similarity float32) string {
	hour := a.now().Hour()
	var tod string
	switch {
	case hour < 12:
		tod = "Good morning"
	case hour < 18:
		tod = "Good afternoon"
	default:
		tod = "Good evening"
	}
	msg := tod + ", " + u.FirstName() + "! Nice to see you again."
	if similarity < 90 {
		msg += fmt.Sprintf(" I'm about %.0f percent sure it's you.", similarity)
	}
	return msg
}
