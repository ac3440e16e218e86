package assistant

import (
	"context"
	"fmt"

	"github.com/skyylabs/facegate/pkg/intent"
)

// DeleteFlow: prove identity → explain consequences → final confirmation
// → delete_user → goodbye.
//
// Both confirmations use the destructive rule: anything that is not a
// clear yes cancels the deletion.
func (a *Assistant) DeleteFlow(ctx context.Context) error {
	user, ok, err := a.proveIdentity(ctx, "Deleting a profile starts with checking who you are.")
	if err != nil || !ok {
		return err
	}

	explain := fmt.Sprintf(
		"This permanently deletes the face data and profile for %s. I won't recognize you afterwards, and this cannot be undone.",
		user.Name)
	if err := a.voice.Say(ctx, explain); err != nil {
		return err
	}

	if a.askYesNoDestructive(ctx, "Are you completely sure you want me to forget you?") != intent.Affirmative {
		return a.voice.Say(ctx, "Okay, I'll keep your profile. Nothing was deleted.")
	}

	if err := a.tools.DeleteUser(user.UserID); err != nil {
		a.log.Error().Err(err).Str("user_id", user.UserID).Msg("delete_user call failed")
		return a.voice.Say(ctx, "The deletion didn't go through. Your profile is unchanged.")
	}

	a.log.Info().Str("user_id", user.UserID).Msg("profile deleted by voice request")
	return a.voice.Say(ctx, fmt.Sprintf("Done. Goodbye, %s — it was nice knowing you.", user.FirstName()))
}
