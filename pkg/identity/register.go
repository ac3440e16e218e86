package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skyylabs/facegate/pkg/audit"
	"github.com/skyylabs/facegate/pkg/face"
	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/health"
	"github.com/skyylabs/facegate/pkg/userstore"
)

// Registration statuses.
const (
	StatusRegistered    = "registered"
	StatusQueued        = "queued"
	StatusAlreadyExists = "already_exists"
)

// RegisterResult is the outcome of a registration attempt.
type RegisterResult struct {
	Status        string         `json:"status"`
	User          *facegate.User `json:"user,omitempty"`
	QueuePosition int            `json:"queue_position,omitempty"`
}

// Register validates the request, embeds the face, and persists the new
// user. While the vector index is degraded the registration is queued
// instead; the caller gets its queue position.
//
// clientID is the authenticated caller, recorded on the audit event.
func (s *Service) Register(ctx context.Context, clientID, name string, image []byte, metadata map[string]string) (*RegisterResult, error) {
	if err := facegate.ValidateName(name); err != nil {
		s.auditRegister(clientID, "", name, audit.OutcomeDenied, nil, err)
		return nil, err
	}
	if err := facegate.ValidateMetadata(metadata); err != nil {
		s.auditRegister(clientID, "", name, audit.OutcomeDenied, nil, err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Duplicate-name policy: one registration per display-name slug.
	if existing, err := s.findBySlugLocked(ctx, facegate.Slug(name)); err != nil {
		return nil, s.internalRegister(clientID, name, err)
	} else if existing != nil {
		res := &RegisterResult{Status: StatusAlreadyExists, User: existing}
		s.auditRegister(clientID, existing.UserID, name, audit.OutcomeFailure, nil,
			fmt.Errorf("name already registered"))
		return res, nil
	}

	// Degraded index: accept the write into the queue.
	if s.registry.Status(health.ComponentVectorIndex) == health.Degraded {
		return s.enqueueLocked(clientID, name, image, metadata), nil
	}

	analysis, err := s.analyzer.Analyze(image)
	if err != nil {
		s.auditRegister(clientID, "", name, audit.OutcomeFailure, nil, err)
		return nil, faceToolError(err)
	}

	userID, err := s.allocateIDLocked(ctx, name)
	if err != nil {
		return nil, s.internalRegister(clientID, name, err)
	}

	user := &facegate.User{
		UserID:         userID,
		Name:           name,
		Metadata:       metadata,
		RegisteredAt:   time.Now().UTC(),
		DetectionScore: analysis.DetectionScore,
		FaceQuality:    analysis.Quality.Score(),
	}

	if err := s.index.Upsert(userID, analysis.Embedding); err != nil {
		// A failing index write flips the component to degraded and the
		// registration falls back to the queue.
		s.registry.Update(health.ComponentVectorIndex, health.Degraded,
			"vector write failed", err.Error())
		s.log.Warn().Err(err).Msg("vector upsert failed; queueing registration")
		return s.enqueueLocked(clientID, name, image, metadata), nil
	}
	if err := s.users.Put(ctx, user); err != nil {
		// Metadata write failed: roll the vector back so the two stores
		// stay consistent.
		_ = s.index.Delete(userID)
		return nil, s.internalRegister(clientID, name, err)
	}
	s.persistLocked()
	s.retainImage(userID, image)

	s.log.Info().Str("user_id", userID).Float32("detection_score", analysis.DetectionScore).
		Int("faces", analysis.FaceCount).Msg("user registered")
	s.sink.Log(audit.Event{
		EventType: "registration",
		Outcome:   audit.OutcomeSuccess,
		ClientID:  clientID,
		UserID:    userID,
		UserName:  name,
		BiometricData: map[string]float32{
			"detection_score": analysis.DetectionScore,
			"face_quality":    user.FaceQuality,
			"face_count":      float32(analysis.FaceCount),
		},
	})

	return &RegisterResult{Status: StatusRegistered, User: user}, nil
}

// enqueueLocked appends the registration to the health registry queue.
// Caller holds s.mu.
func (s *Service) enqueueLocked(clientID, name string, image []byte, metadata map[string]string) *RegisterResult {
	img := make([]byte, len(image))
	copy(img, image)
	pos := s.registry.Enqueue(health.QueuedRegistration{
		Name:     name,
		Image:    img,
		Metadata: metadata,
		ClientID: clientID,
	})
	s.log.Info().Str("name", name).Int("position", pos).Msg("registration queued (index degraded)")
	s.sink.Log(audit.Event{
		EventType:      "registration",
		Outcome:        audit.OutcomeQueued,
		ClientID:       clientID,
		UserName:       name,
		AdditionalInfo: map[string]string{"queue_position": fmt.Sprint(pos)},
	})
	return &RegisterResult{
		Status:        StatusQueued,
		User:          &facegate.User{Name: name, Metadata: metadata},
		QueuePosition: pos,
	}
}

// allocateIDLocked returns slug(name)_n with the smallest n that is not
// taken. Caller holds s.mu.
func (s *Service) allocateIDLocked(ctx context.Context, name string) (string, error) {
	slug := facegate.Slug(name)
	if slug == "" {
		slug = "user"
	}
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s_%d", slug, n)
		_, err := s.users.Get(ctx, id)
		if errors.Is(err, userstore.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// findBySlugLocked returns the user whose name slugs to slug, or nil.
func (s *Service) findBySlugLocked(ctx context.Context, slug string) (*facegate.User, error) {
	_, users, err := s.users.List(ctx, 0, 1<<30)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if facegate.Slug(u.Name) == slug {
			return u, nil
		}
	}
	return nil, nil
}

func (s *Service) internalRegister(clientID, name string, err error) error {
	s.log.Error().Err(err).Str("name", name).Msg("registration failed")
	s.auditRegister(clientID, "", name, audit.OutcomeFailure, nil, err)
	return facegate.WrapError(facegate.KindInternal, err, "registration failed")
}

func (s *Service) auditRegister(clientID, userID, name string, outcome audit.Outcome, bio map[string]float32, err error) {
	ev := audit.Event{
		EventType:     "registration",
		Outcome:       outcome,
		ClientID:      clientID,
		UserID:        userID,
		UserName:      name,
		BiometricData: bio,
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}
	s.sink.Log(ev)
}

// faceToolError maps analyzer failures onto tool-surface errors.
// Detection problems read as validation (the client sent a bad image);
// a missing model reads as unavailable.
func faceToolError(err error) error {
	switch {
	case errors.Is(err, face.ErrModelUnavailable):
		return facegate.WrapError(facegate.KindUnavailable, err, "face model unavailable")
	case errors.Is(err, face.ErrNoFace):
		return facegate.WrapError(facegate.KindValidation, err, "no face detected in image")
	case errors.Is(err, face.ErrMultipleFaces):
		return facegate.WrapError(facegate.KindValidation, err, "multiple faces detected in image")
	case errors.Is(err, face.ErrDecode):
		return facegate.WrapError(facegate.KindValidation, err, "image could not be decoded")
	default:
		return facegate.WrapError(facegate.KindInternal, err, "face analysis failed")
	}
}
