package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/identity"
	"github.com/skyylabs/facegate/pkg/intent"
	"github.com/skyylabs/facegate/pkg/speech"
)

// RegisterFlow: capture name → validate → confirm → camera →
// register_user.
func (a *Assistant) RegisterFlow(ctx context.Context) error {
	name, ok, err := a.captureName(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return a.voice.Say(ctx, "Let's try registering another time.")
	}

	frame, err := a.captureFrame(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("camera capture failed")
		return a.voice.Say(ctx, "I couldn't get a picture from the camera. Sorry about that.")
	}
	return a.registerAs(ctx, name, frame)
}

// registerWithFrame registers using a frame already captured during the
// recognize flow, skipping the second camera round trip.
func (a *Assistant) registerWithFrame(ctx context.Context, frame []byte) error {
	name, ok, err := a.captureName(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return a.voice.Say(ctx, "Let's try registering another time.")
	}
	return a.registerAs(ctx, name, frame)
}

// captureName runs the prompt → free-form capture → validate → confirm
// loop, with one retry per stage. ok is false when the user gave up or
// never produced a confirmable name.
func (a *Assistant) captureName(ctx context.Context) (name string, ok bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := a.voice.Say(ctx, "What name should I remember you by?"); err != nil {
			return "", false, err
		}
		heard, err := a.voice.Listen(ctx, a.freeEng, speech.FreeFormCaptureDuration)
		if err != nil {
			return "", false, err
		}
		candidate := tidyName(heard)
		if candidate == "" {
			continue
		}
		if facegate.ValidateName(candidate) != nil {
			if err := a.voice.Say(ctx, "I didn't quite get a usable name."); err != nil {
				return "", false, err
			}
			continue
		}

		switch a.askYesNo(ctx, fmt.Sprintf("I heard %s. Did I get that right?", candidate)) {
		case intent.Affirmative:
			return candidate, true, nil
		case intent.Negative:
			continue
		default:
			return "", false, nil
		}
	}
	return "", false, nil
}

// registerAs calls register_user and narrates the outcome, including the
// degraded-mode queue explanation.
func (a *Assistant) registerAs(ctx context.Context, name string, frame []byte) error {
	res, err := a.tools.RegisterUser(name, frame, nil)
	if err != nil {
		a.log.Error().Err(err).Str("name", name).Msg("register_user call failed")
		return a.voice.Say(ctx, "I couldn't save your face right now. Please try again later.")
	}

	switch res.Status {
	case identity.StatusRegistered:
		return a.voice.Say(ctx, fmt.Sprintf("All set, %s. I'll recognize you next time.", firstWord(name)))
	case identity.StatusQueued:
		return a.voice.Say(ctx, fmt.Sprintf(
			"Thanks, %s. My face database is busy right now, so I've queued your registration at position %d. It will finish automatically.",
			firstWord(name), res.User.QueuePosition))
	case identity.StatusAlreadyExists:
		return a.voice.Say(ctx, fmt.Sprintf("Someone named %s is already registered. If that's you, say the wake word and ask me who you are.", name))
	default:
		return a.voice.Say(ctx, "Something unexpected happened while saving your face.")
	}
}

// tidyName normalizes a transcribed name: trims, collapses spaces, and
// title-cases each word the way the decoder's lowercase output needs.
func tidyName(heard string) string {
	fields := strings.Fields(heard)
	for i, f := range fields {
		if len(f) > 0 {
			fields[i] = strings.ToUpper(f[:1]) + f[1:]
		}
	}
	return strings.Join(fields, " ")
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
