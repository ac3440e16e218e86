package assistant

import (
	"context"

	"github.com/skyylabs/facegate/pkg/identity"
	"github.com/skyylabs/facegate/pkg/intent"
)

// RecognizeFlow: consent → camera → recognize_face → greet or offer
// registration.
func (a *Assistant) RecognizeFlow(ctx context.Context) error {
	switch a.askYesNo(ctx, "May I take a look to see who you are?") {
	case intent.Affirmative:
	default:
		return a.voice.Say(ctx, "No problem. Say the wake word if you change your mind.")
	}

	frame, err := a.captureFrame(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("camera capture failed")
		return a.voice.Say(ctx, "I couldn't get a picture from the camera. Sorry about that.")
	}

	res, err := a.tools.RecognizeFace(frame, 0)
	if err != nil {
		a.log.Error().Err(err).Msg("recognize_face call failed")
		return a.voice.Say(ctx, "I couldn't check right now. Please try again in a bit.")
	}

	if res.Status == identity.StatusRecognized && res.User != nil {
		sim := float32(100)
		if res.SimilarityPercent != nil {
			sim = *res.SimilarityPercent
		}
		return a.voice.Say(ctx, a.greeting(res.User, sim))
	}

	// Unknown face: offer to register.
	if err := a.voice.Say(ctx, "I don't think we've met before."); err != nil {
		return err
	}
	if a.askYesNo(ctx, "Would you like me to remember your face?") == intent.Affirmative {
		return a.registerWithFrame(ctx, frame)
	}
	return a.voice.Say(ctx, "Alright, I won't remember you. Have a nice day.")
}
