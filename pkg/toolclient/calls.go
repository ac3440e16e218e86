package toolclient

import (
	"encoding/base64"

	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/health"
)

// RegisteredUser is the user object inside register/list/get responses.
type RegisteredUser struct {
	facegate.User
	QueuePosition int `json:"queue_position,omitempty"`
}

// RegisterResponse is the register_user result.
type RegisterResponse struct {
	Status string         `json:"status"`
	User   RegisteredUser `json:"user"`
}

// RecognizeResponse is the recognize_face result.
type RecognizeResponse struct {
	Status            string         `json:"status"`
	User              *facegate.User `json:"user,omitempty"`
	Distance          *float32       `json:"distance,omitempty"`
	SimilarityPercent *float32       `json:"similarity_percent,omitempty"`
	Threshold         float32        `json:"threshold"`
}

// ListResponse is the list_users result.
type ListResponse struct {
	Total   int              `json:"total"`
	Count   int              `json:"count"`
	Offset  int              `json:"offset"`
	Limit   int              `json:"limit"`
	HasMore bool             `json:"has_more"`
	Users   []*facegate.User `json:"users"`
}

// UpdateResponse is the update_user result.
type UpdateResponse struct {
	Status string         `json:"status"`
	User   *facegate.User `json:"user"`
}

// StatsResponse is the get_database_stats result.
type StatsResponse struct {
	Count     int    `json:"count"`
	Dims      int    `json:"dims"`
	IndexType string `json:"index_type"`
}

// RegisterUser registers a face image under the given name.
func (f *Facade) RegisterUser(name string, image []byte, metadata map[string]string) (*RegisterResponse, error) {
	args := map[string]any{
		"name":       name,
		"image_data": base64.StdEncoding.EncodeToString(image),
	}
	if len(metadata) > 0 {
		md := make(map[string]any, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
		args["metadata"] = md
	}
	var out RegisterResponse
	if err := f.call("register_user", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecognizeFace matches a face image. threshold <= 0 uses the server
// default.
func (f *Facade) RecognizeFace(image []byte, threshold float32) (*RecognizeResponse, error) {
	args := map[string]any{
		"image_data": base64.StdEncoding.EncodeToString(image),
	}
	if threshold > 0 {
		args["confidence_threshold"] = threshold
	}
	var out RecognizeResponse
	if err := f.call("recognize_face", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListUsers pages through registered users.
func (f *Facade) ListUsers(offset, limit int) (*ListResponse, error) {
	var out ListResponse
	err := f.call("list_users", map[string]any{"offset": offset, "limit": limit}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserProfile fetches one user record.
func (f *Facade) GetUserProfile(userID string) (*facegate.User, error) {
	var out facegate.User
	if err := f.call("get_user_profile", map[string]any{"user_id": userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUser changes name and/or metadata.
func (f *Facade) UpdateUser(userID string, name string, metadata map[string]string) (*UpdateResponse, error) {
	args := map[string]any{"user_id": userID}
	if name != "" {
		args["name"] = name
	}
	if len(metadata) > 0 {
		md := make(map[string]any, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
		args["metadata"] = md
	}
	var out UpdateResponse
	if err := f.call("update_user", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes a user.
func (f *Facade) DeleteUser(userID string) error {
	return f.call("delete_user", map[string]any{"user_id": userID}, nil)
}

// DatabaseStats fetches index statistics.
func (f *Facade) DatabaseStats() (*StatsResponse, error) {
	var out StatsResponse
	if err := f.call("get_database_stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HealthStatus fetches the health snapshot.
func (f *Facade) HealthStatus() (*health.Snapshot, error) {
	var out health.Snapshot
	if err := f.call("get_health_status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
