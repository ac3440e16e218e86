package identity

import (
	"context"
	"time"

	"github.com/skyylabs/facegate/pkg/audit"
	"github.com/skyylabs/facegate/pkg/facegate"
)

// Recognition statuses.
const (
	StatusRecognized    = "recognized"
	StatusNotRecognized = "not_recognized"
)

// RecognizeResult is the outcome of a recognition attempt.
type RecognizeResult struct {
	Status            string         `json:"status"`
	User              *facegate.User `json:"user,omitempty"`
	Distance          *float32       `json:"distance,omitempty"`
	SimilarityPercent *float32       `json:"similarity_percent,omitempty"`
	Threshold         float32        `json:"threshold"`
}

// Recognize embeds the face in image and matches it against the index.
// threshold <= 0 selects the configured default. A successful match
// bumps the user's recognition counter and timestamp.
func (s *Service) Recognize(ctx context.Context, clientID string, image []byte, threshold float32) (*RecognizeResult, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}

	analysis, err := s.analyzer.Analyze(image)
	if err != nil {
		s.sink.Log(audit.Event{
			EventType:    "recognition",
			Outcome:      audit.OutcomeFailure,
			ClientID:     clientID,
			Threshold:    audit.F(threshold),
			ErrorMessage: err.Error(),
		})
		return nil, faceToolError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := s.index.Query(analysis.Embedding, 1)
	if err != nil {
		s.log.Error().Err(err).Msg("vector query failed")
		s.sink.Log(audit.Event{
			EventType:    "recognition",
			Outcome:      audit.OutcomeFailure,
			ClientID:     clientID,
			Threshold:    audit.F(threshold),
			ErrorMessage: err.Error(),
		})
		return nil, facegate.WrapError(facegate.KindInternal, err, "recognition failed")
	}

	if len(matches) == 0 || matches[0].Distance > threshold {
		res := &RecognizeResult{Status: StatusNotRecognized, Threshold: threshold}
		ev := audit.Event{
			EventType: "recognition",
			Outcome:   audit.OutcomeFailure,
			ClientID:  clientID,
			Threshold: audit.F(threshold),
			BiometricData: map[string]float32{
				"detection_score": analysis.DetectionScore,
			},
		}
		if len(matches) > 0 {
			d := matches[0].Distance
			res.Distance = &d
			ev.ConfidenceScore = audit.F(d)
			ev.BiometricData["nearest_distance"] = d
		}
		s.sink.Log(ev)
		return res, nil
	}

	match := matches[0]
	user, err := s.users.Get(ctx, match.ID)
	if err != nil {
		// Index hit without a metadata row: an inconsistency Reconcile
		// should have removed. Repair on the spot.
		s.log.Error().Err(err).Str("user_id", match.ID).Msg("match without metadata; removing vector")
		_ = s.index.Delete(match.ID)
		s.persistLocked()
		return nil, facegate.WrapError(facegate.KindInternal, err, "recognition failed")
	}

	now := time.Now().UTC()
	user.LastRecognizedAt = &now
	user.RecognitionCount++
	if err := s.users.Put(ctx, user); err != nil {
		s.log.Error().Err(err).Str("user_id", user.UserID).Msg("recognition stats update failed")
	}

	dist := match.Distance
	sim := facegate.SimilarityPercent(dist)
	s.log.Info().Str("user_id", user.UserID).Float32("distance", dist).Msg("user recognized")
	s.sink.Log(audit.Event{
		EventType:       "recognition",
		Outcome:         audit.OutcomeSuccess,
		ClientID:        clientID,
		UserID:          user.UserID,
		UserName:        user.Name,
		ConfidenceScore: audit.F(dist),
		Threshold:       audit.F(threshold),
		BiometricData: map[string]float32{
			"detection_score": analysis.DetectionScore,
		},
	})

	return &RecognizeResult{
		Status:            StatusRecognized,
		User:              user,
		Distance:          &dist,
		SimilarityPercent: &sim,
		Threshold:         threshold,
	}, nil
}
