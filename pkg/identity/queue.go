package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/skyylabs/facegate/pkg/audit"
	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/health"
)

// ProcessQueue drains the degraded-mode registration queue in enqueue
// order. It is invoked by the health registry callback on the vector
// index's Degraded→Healthy transition, and may also be called directly
// by an operator.
//
// Each item runs through the normal registration path; per-item success
// and failure surface only through audit events, since the original
// caller is long gone.
func (s *Service) ProcessQueue(ctx context.Context) {
	queued := s.registry.Drain()
	if len(queued) == 0 {
		return
	}
	s.log.Info().Int("count", len(queued)).Msg("draining queued registrations")

	for i, q := range queued {
		if err := s.registerQueued(ctx, q); err != nil {
			s.log.Error().Err(err).Str("name", q.Name).Int("position", i+1).
				Msg("queued registration failed")
		}
	}
}

// registerQueued persists one queued registration.
func (s *Service) registerQueued(ctx context.Context, q health.QueuedRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clientID := q.ClientID
	if clientID == "" {
		clientID = "queue"
	}

	if existing, err := s.findBySlugLocked(ctx, facegate.Slug(q.Name)); err != nil {
		s.auditQueueItem(clientID, "", q, audit.OutcomeFailure, err)
		return err
	} else if existing != nil {
		err := fmt.Errorf("identity: queued name %q already registered as %s", q.Name, existing.UserID)
		s.auditQueueItem(clientID, existing.UserID, q, audit.OutcomeFailure, err)
		return err
	}

	analysis, err := s.analyzer.Analyze(q.Image)
	if err != nil {
		s.auditQueueItem(clientID, "", q, audit.OutcomeFailure, err)
		return err
	}

	userID, err := s.allocateIDLocked(ctx, q.Name)
	if err != nil {
		s.auditQueueItem(clientID, "", q, audit.OutcomeFailure, err)
		return err
	}

	user := &facegate.User{
		UserID:         userID,
		Name:           q.Name,
		Metadata:       q.Metadata,
		RegisteredAt:   time.Now().UTC(),
		DetectionScore: analysis.DetectionScore,
		FaceQuality:    analysis.Quality.Score(),
	}

	if err := s.index.Upsert(userID, analysis.Embedding); err != nil {
		// Still failing: put the item back at the head so order holds,
		// and drop the component back to degraded.
		s.registry.Update(health.ComponentVectorIndex, health.Degraded,
			"vector write failed during drain", err.Error())
		s.requeueFront(q)
		s.auditQueueItem(clientID, "", q, audit.OutcomeQueued, err)
		return err
	}
	if err := s.users.Put(ctx, user); err != nil {
		_ = s.index.Delete(userID)
		s.auditQueueItem(clientID, "", q, audit.OutcomeFailure, err)
		return err
	}
	s.persistLocked()
	s.retainImage(userID, q.Image)

	s.log.Info().Str("user_id", userID).Msg("queued registration persisted")
	s.sink.Log(audit.Event{
		EventType: "registration",
		Outcome:   audit.OutcomeSuccess,
		ClientID:  clientID,
		UserID:    userID,
		UserName:  q.Name,
		BiometricData: map[string]float32{
			"detection_score": analysis.DetectionScore,
			"face_quality":    user.FaceQuality,
		},
		AdditionalInfo: map[string]string{"source": "queue_drain"},
	})
	return nil
}

// requeueFront restores a failed item to the front of the queue. The
// registry only appends, so rebuild the queue around it.
func (s *Service) requeueFront(q health.QueuedRegistration) {
	rest := s.registry.Drain()
	s.registry.Enqueue(q)
	for _, r := range rest {
		s.registry.Enqueue(r)
	}
}

func (s *Service) auditQueueItem(clientID, userID string, q health.QueuedRegistration, outcome audit.Outcome, err error) {
	ev := audit.Event{
		EventType:      "registration",
		Outcome:        outcome,
		ClientID:       clientID,
		UserID:         userID,
		UserName:       q.Name,
		AdditionalInfo: map[string]string{"source": "queue_drain"},
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}
	s.sink.Log(ev)
}
