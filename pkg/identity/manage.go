package identity

import (
	"context"
	"errors"

	"github.com/skyylabs/facegate/pkg/audit"
	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/userstore"
)

// UpdateRequest carries the optional fields of an update. Nil name leaves
// the name alone; metadata keys are merged into the existing map.
type UpdateRequest struct {
	Name     *string
	Metadata map[string]string
}

// Update changes a user's name and/or metadata. The user id never
// changes, even on rename: identity is stable.
func (s *Service) Update(ctx context.Context, clientID, userID string, req UpdateRequest) (*facegate.User, error) {
	if req.Name != nil {
		if err := facegate.ValidateName(*req.Name); err != nil {
			s.auditLifecycle("update", clientID, userID, "", audit.OutcomeDenied, err)
			return nil, err
		}
	}
	if err := facegate.ValidateMetadata(req.Metadata); err != nil {
		s.auditLifecycle("update", clientID, userID, "", audit.OutcomeDenied, err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, userstore.ErrNotFound) {
		s.auditLifecycle("update", clientID, userID, "", audit.OutcomeFailure, err)
		return nil, facegate.NewError(facegate.KindNotFound, "user %s not found", userID)
	}
	if err != nil {
		return nil, facegate.WrapError(facegate.KindInternal, err, "update failed")
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if len(req.Metadata) > 0 {
		if user.Metadata == nil {
			user.Metadata = make(map[string]string, len(req.Metadata))
		}
		for k, v := range req.Metadata {
			user.Metadata[k] = v
		}
	}

	if err := s.users.Put(ctx, user); err != nil {
		s.auditLifecycle("update", clientID, userID, user.Name, audit.OutcomeFailure, err)
		return nil, facegate.WrapError(facegate.KindInternal, err, "update failed")
	}

	s.log.Info().Str("user_id", userID).Msg("user updated")
	s.auditLifecycle("update", clientID, userID, user.Name, audit.OutcomeSuccess, nil)
	return user, nil
}

// Delete removes the vector and the metadata record together. The
// metadata row goes first; the vector delete cannot fail, so the pair is
// atomic from the caller's perspective.
func (s *Service) Delete(ctx context.Context, clientID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, userstore.ErrNotFound) {
		s.auditLifecycle("deletion", clientID, userID, "", audit.OutcomeFailure, err)
		return facegate.NewError(facegate.KindNotFound, "user %s not found", userID)
	}
	if err != nil {
		return facegate.WrapError(facegate.KindInternal, err, "deletion failed")
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		s.auditLifecycle("deletion", clientID, userID, user.Name, audit.OutcomeFailure, err)
		return facegate.WrapError(facegate.KindInternal, err, "deletion failed")
	}
	_ = s.index.Delete(userID)
	s.persistLocked()
	s.removeImage(userID)

	s.log.Info().Str("user_id", userID).Msg("user deleted")
	s.auditLifecycle("deletion", clientID, userID, user.Name, audit.OutcomeSuccess, nil)
	return nil
}

// Get returns one user record.
func (s *Service) Get(ctx context.Context, userID string) (*facegate.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, userstore.ErrNotFound) {
		return nil, facegate.NewError(facegate.KindNotFound, "user %s not found", userID)
	}
	if err != nil {
		return nil, facegate.WrapError(facegate.KindInternal, err, "lookup failed")
	}
	return user, nil
}

// ListResult is a page of users.
type ListResult struct {
	Total   int              `json:"total"`
	Count   int              `json:"count"`
	Offset  int              `json:"offset"`
	Limit   int              `json:"limit"`
	HasMore bool             `json:"has_more"`
	Users   []*facegate.User `json:"users"`
}

// List returns a page of users ordered by id.
func (s *Service) List(ctx context.Context, offset, limit int) (*ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, users, err := s.users.List(ctx, offset, limit)
	if err != nil {
		return nil, facegate.WrapError(facegate.KindInternal, err, "list failed")
	}
	return &ListResult{
		Total:   total,
		Count:   len(users),
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+len(users) < total,
		Users:   users,
	}, nil
}

// Stats describes the face database.
type Stats struct {
	Count     int    `json:"count"`
	Dims      int    `json:"dims"`
	IndexType string `json:"index_type"`
}

// Stats returns database statistics.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, err := s.users.Count(ctx)
	if err != nil {
		return nil, facegate.WrapError(facegate.KindInternal, err, "stats failed")
	}
	return &Stats{Count: count, Dims: facegate.EmbeddingDim, IndexType: indexTypeName(s.index)}, nil
}

func indexTypeName(ix any) string {
	if _, ok := ix.(Snapshotter); ok {
		return "hnsw"
	}
	return "flat"
}

func (s *Service) auditLifecycle(eventType, clientID, userID, name string, outcome audit.Outcome, err error) {
	ev := audit.Event{
		EventType: eventType,
		Outcome:   outcome,
		ClientID:  clientID,
		UserID:    userID,
		UserName:  name,
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}
	s.sink.Log(ev)
}
