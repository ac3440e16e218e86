package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/health"
	"github.com/skyylabs/facegate/pkg/identity"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func (s *Server) registerIdentityTools(m *server.MCPServer) {
	m.AddTool(mcp.NewTool("register_user",
		mcp.WithDescription("Register a new user from a face image. Returns the created user, or its queue position while the vector index is degraded."),
		mcp.WithString("access_token", mcp.Required(), mcp.Description("OAuth access token")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name, 2-100 characters (letters, spaces, ' . -)")),
		mcp.WithString("image_data", mcp.Required(), mcp.Description("Base64-encoded JPEG or PNG containing one face")),
		mcp.WithObject("metadata", mcp.Description("Optional whitelisted metadata keys (department, position, location, ...)")),
	), s.handleRegisterUser)

	m.AddTool(mcp.NewTool("recognize_face",
		mcp.WithDescription("Match a face image against registered users"),
		mcp.WithString("access_token", mcp.Required(), mcp.Description("OAuth access token")),
		mcp.WithString("image_data", mcp.Required(), mcp.Description("Base64-encoded JPEG or PNG to match")),
		mcp.WithNumber("confidence_threshold", mcp.Description("Maximum cosine distance for a match, 0..1. Default 0.4")),
	), s.handleRecognizeFace)

	m.AddTool(mcp.NewTool("list_users",
		mcp.WithDescription("List registered users with pagination"),
		mcp.WithString("access_token", mcp.Required(), mcp.Description("OAuth access token")),
		mcp.WithNumber("limit", mcp.Description("Page size 1-100, default 20")),
		mcp.WithNumber("offset", mcp.Description("Rows to skip, default 0")),
	), s.handleListUsers)

	m.AddTool(mcp.NewTool("get_user_profile",
		mcp.WithDescription("Fetch one user's full profile (embedding excluded)"),
		mcp.WithString("access_token", mcp.Required(), mcp.Description("OAuth access token")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User id, e.g. john_smith_1")),
	), s.handleGetUserProfile)

	m.AddTool(mcp.NewTool("update_user",
		mcp.WithDescription("Update a user's name and/or metadata. The user id never changes."),
		mcp.WithString("access_token", mcp.Required(), mcp.Description("OAuth access token")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User id")),
		mcp.WithString("name", mcp.Description("New display name")),
		mcp.WithObject("metadata", mcp.Description("Metadata keys to set; existing keys are kept")),
	), s.handleUpdateUser)

	m.AddTool(mcp.NewTool("delete_user",
		mcp.WithDescription("Delete a user's biometric data and profile"),
		mcp.WithString("access_token", mcp.Required(), mcp.Description("OAuth access token")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User id")),
	), s.handleDeleteUser)

	m.AddTool(mcp.NewTool("get_database_stats",
		mcp.WithDescription("Face database statistics"),
		mcp.WithString("access_token", mcp.Required(), mcp.Description("OAuth access token")),
	), s.handleDatabaseStats)
}

// wireUser is the tool-surface user shape: the stored record plus the
// queue position reported for queued registrations.
type wireUser struct {
	*facegate.User
	QueuePosition int `json:"queue_position,omitempty"`
}

func (s *Server) handleRegisterUser(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID, fail := s.authenticate(req, "registration")
	if fail != nil {
		return fail, nil
	}

	name, err := req.RequireString("name")
	if err != nil {
		return respondErr(facegate.KindValidation, "name is required"), nil
	}
	image, failRes := s.imageArg(req, clientID, "registration")
	if failRes != nil {
		return failRes, nil
	}
	metadata, err := stringMapArg(req, "metadata")
	if err != nil {
		return respondErr(facegate.KindValidation, "%s", err.Error()), nil
	}

	if fail := s.requireCapability(clientID, "registration", func(c health.Capabilities) bool {
		return c.CanRegister || c.CanQueueRegistration
	}); fail != nil {
		return fail, nil
	}

	res, err := s.identity.Register(ctx, clientID, name, image, metadata)
	if err != nil {
		return respondServiceErr(err), nil
	}

	out := struct {
		Status string   `json:"status"`
		User   wireUser `json:"user"`
	}{Status: res.Status, User: wireUser{User: res.User, QueuePosition: res.QueuePosition}}
	return respondJSON(out), nil
}

func (s *Server) handleRecognizeFace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID, fail := s.authenticate(req, "recognition")
	if fail != nil {
		return fail, nil
	}

	image, failRes := s.imageArg(req, clientID, "recognition")
	if failRes != nil {
		return failRes, nil
	}

	threshold := float32(0)
	if raw, ok := req.GetArguments()["confidence_threshold"].(float64); ok {
		if raw < 0 || raw > 1 {
			return respondErr(facegate.KindValidation, "confidence_threshold must be within [0, 1]"), nil
		}
		threshold = float32(raw)
	}

	if fail := s.requireCapability(clientID, "recognition", func(c health.Capabilities) bool {
		return c.CanRecognize
	}); fail != nil {
		return fail, nil
	}

	res, err := s.identity.Recognize(ctx, clientID, image, threshold)
	if err != nil {
		return respondServiceErr(err), nil
	}
	return respondJSON(res), nil
}

func (s *Server) handleListUsers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID, fail := s.authenticate(req, "list_users")
	if fail != nil {
		return fail, nil
	}

	limit := defaultListLimit
	if raw, ok := req.GetArguments()["limit"].(float64); ok {
		limit = int(raw)
		if limit < 1 || limit > maxListLimit {
			return respondErr(facegate.KindValidation, "limit must be within [1, %d]", maxListLimit), nil
		}
	}
	offset := 0
	if raw, ok := req.GetArguments()["offset"].(float64); ok {
		offset = int(raw)
		if offset < 0 {
			return respondErr(facegate.KindValidation, "offset must be >= 0"), nil
		}
	}

	if fail := s.requireCapability(clientID, "list_users", func(c health.Capabilities) bool {
		return c.CanRecognize
	}); fail != nil {
		return fail, nil
	}

	res, err := s.identity.List(ctx, offset, limit)
	if err != nil {
		return respondServiceErr(err), nil
	}
	return respondJSON(res), nil
}

func (s *Server) handleGetUserProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID, fail := s.authenticate(req, "get_user_profile")
	if fail != nil {
		return fail, nil
	}
	userID, err := req.RequireString("user_id")
	if err != nil {
		return respondErr(facegate.KindValidation, "user_id is required"), nil
	}

	if fail := s.requireCapability(clientID, "get_user_profile", func(c health.Capabilities) bool {
		return c.CanRecognize
	}); fail != nil {
		return fail, nil
	}

	user, err := s.identity.Get(ctx, userID)
	if err != nil {
		return respondServiceErr(err), nil
	}
	return respondJSON(user), nil
}

func (s *Server) handleUpdateUser(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID, fail := s.authenticate(req, "update")
	if fail != nil {
		return fail, nil
	}
	userID, err := req.RequireString("user_id")
	if err != nil {
		return respondErr(facegate.KindValidation, "user_id is required"), nil
	}

	var update identity.UpdateRequest
	if raw, ok := req.GetArguments()["name"].(string); ok && raw != "" {
		update.Name = &raw
	}
	update.Metadata, err = stringMapArg(req, "metadata")
	if err != nil {
		return respondErr(facegate.KindValidation, "%s", err.Error()), nil
	}
	if update.Name == nil && len(update.Metadata) == 0 {
		return respondErr(facegate.KindValidation, "nothing to update: provide name or metadata"), nil
	}

	if fail := s.requireCapability(clientID, "update", func(c health.Capabilities) bool {
		return c.CanRegister
	}); fail != nil {
		return fail, nil
	}

	user, err := s.identity.Update(ctx, clientID, userID, update)
	if err != nil {
		return respondServiceErr(err), nil
	}
	out := struct {
		Status string         `json:"status"`
		User   *facegate.User `json:"user"`
	}{Status: "ok", User: user}
	return respondJSON(out), nil
}

func (s *Server) handleDeleteUser(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID, fail := s.authenticate(req, "deletion")
	if fail != nil {
		return fail, nil
	}
	userID, err := req.RequireString("user_id")
	if err != nil {
		return respondErr(facegate.KindValidation, "user_id is required"), nil
	}

	if fail := s.requireCapability(clientID, "deletion", func(c health.Capabilities) bool {
		return c.CanRegister
	}); fail != nil {
		return fail, nil
	}

	if err := s.identity.Delete(ctx, clientID, userID); err != nil {
		return respondServiceErr(err), nil
	}
	return respondJSON(map[string]string{"status": "ok"}), nil
}

func (s *Server) handleDatabaseStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID, fail := s.authenticate(req, "get_database_stats")
	if fail != nil {
		return fail, nil
	}

	if fail := s.requireCapability(clientID, "get_database_stats", func(c health.Capabilities) bool {
		return c.CanRecognize
	}); fail != nil {
		return fail, nil
	}

	stats, err := s.identity.Stats(ctx)
	if err != nil {
		return respondServiceErr(err), nil
	}
	return respondJSON(stats), nil
}

// imageArg validates and decodes the image_data argument. The base64
// length floor is enforced before any decode work.
func (s *Server) imageArg(req mcp.CallToolRequest, clientID, toolName string) ([]byte, *mcp.CallToolResult) {
	raw, err := req.RequireString("image_data")
	if err != nil {
		return nil, respondErr(facegate.KindValidation, "image_data is required")
	}
	if err := facegate.ValidateImageData(raw); err != nil {
		s.auditDenied(toolName, clientID, "image_data too short")
		return nil, respondServiceErr(err)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		s.auditDenied(toolName, clientID, "image_data is not base64")
		return nil, respondErr(facegate.KindValidation, "image_data is not valid base64")
	}
	return decoded, nil
}

// stringMapArg decodes an optional object argument into a string map.
func stringMapArg(req mcp.CallToolRequest, key string) (map[string]string, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object", key)
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		sv, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s.%s must be a string", key, k)
		}
		out[k] = sv
	}
	return out, nil
}
