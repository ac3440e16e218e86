package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (s *Server) registerHealthTools(m *server.MCPServer) {
	m.AddTool(mcp.NewTool("get_health_status",
		mcp.WithDescription("Component health, capability map, and queued registration count"),
		mcp.WithString("access_token", mcp.Required(), mcp.Description("OAuth access token")),
	), s.handleHealthStatus)

	m.AddTool(mcp.NewTool("issue_token_info",
		mcp.WithDescription("Verify the supplied access token and report its client"),
		mcp.WithString("access_token", mcp.Required(), mcp.Description("OAuth access token to inspect")),
	), s.handleTokenInfo)
}

// get_health_status is gated on authentication only: a degraded system
// must still be able to say it is degraded.
func (s *Server) handleHealthStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, fail := s.authenticate(req, "get_health_status")
	if fail != nil {
		return fail, nil
	}
	return respondJSON(s.registry.Snapshot()), nil
}

// issue_token_info is verification only; issuing tokens happens through
// the operator CLI, never over the tool surface.
func (s *Server) handleTokenInfo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID, fail := s.authenticate(req, "issue_token_info")
	if fail != nil {
		return fail, nil
	}
	out := struct {
		Valid    bool   `json:"valid"`
		ClientID string `json:"client_id"`
	}{Valid: true, ClientID: clientID}
	return respondJSON(out), nil
}
