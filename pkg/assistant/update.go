package assistant

import (
	"context"
	"fmt"

	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/identity"
	"github.com/skyylabs/facegate/pkg/intent"
	"github.com/skyylabs/facegate/pkg/speech"
)

// UpdateFlow: prove identity by recognition → confirm → choose fields →
// capture new values → update_user.
func (a *Assistant) UpdateFlow(ctx context.Context) error {
	user, ok, err := a.proveIdentity(ctx, "Before changing anything I need to check who you are.")
	if err != nil || !ok {
		return err
	}

	var (
		newName  string
		metadata map[string]string
	)

	if a.askYesNo(ctx, "Do you want to change the name I call you?") == intent.Affirmative {
		name, ok, err := a.captureName(ctx)
		if err != nil {
			return err
		}
		if ok {
			newName = name
		}
	}

	if a.askYesNo(ctx, "Do you want to update your notes?") == intent.Affirmative {
		if err := a.voice.Say(ctx, "Go ahead, tell me what to remember."); err != nil {
			return err
		}
		value, err := a.voice.Listen(ctx, a.freeEng, speech.LongCaptureDuration)
		if err != nil {
			return err
		}
		if value != "" && a.askYesNo(ctx, fmt.Sprintf("I heard: %s. Save that?", value)) == intent.Affirmative {
			metadata = map[string]string{"notes": value}
		}
	}

	if newName == "" && len(metadata) == 0 {
		return a.voice.Say(ctx, "Nothing to change, then. All good.")
	}

	res, err := a.tools.UpdateUser(user.UserID, newName, metadata)
	if err != nil {
		a.log.Error().Err(err).Str("user_id", user.UserID).Msg("update_user call failed")
		return a.voice.Say(ctx, "I couldn't save the changes. Please try again later.")
	}
	return a.voice.Say(ctx, fmt.Sprintf("Done, %s. Your profile is updated.", res.User.FirstName()))
}

// proveIdentity runs a recognition and a spoken identity confirmation.
// ok is false when the user is unknown or denies being the match.
func (a *Assistant) proveIdentity(ctx context.Context, intro string) (*facegate.User, bool, error) {
	if err := a.voice.Say(ctx, intro); err != nil {
		return nil, false, err
	}
	frame, err := a.captureFrame(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("camera capture failed")
		return nil, false, a.voice.Say(ctx, "I couldn't get a picture from the camera.")
	}
	res, err := a.tools.RecognizeFace(frame, 0)
	if err != nil {
		a.log.Error().Err(err).Msg("recognize_face call failed")
		return nil, false, a.voice.Say(ctx, "I couldn't check your identity right now.")
	}
	if res.Status != identity.StatusRecognized || res.User == nil {
		return nil, false, a.voice.Say(ctx, "I don't recognize you, so I can't make changes.")
	}

	// Identity confirmations guard account changes: ambiguity cancels.
	q := fmt.Sprintf("You look like %s. Is that you?", res.User.Name)
	if a.askYesNoDestructive(ctx, q) != intent.Affirmative {
		return nil, false, a.voice.Say(ctx, "Better safe than sorry. I won't change anything.")
	}
	return res.User, true, nil
}
