package mcpserver

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/skyylabs/facegate/pkg/audit"
	"github.com/skyylabs/facegate/pkg/authority"
	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/health"
)

// toolError is the wire shape of a failed tool call. Success responses
// carry the result object directly; the status field marks the error
// branch.
type toolError struct {
	Status  string             `json:"status"`
	Kind    facegate.ErrorKind `json:"kind"`
	Message string             `json:"message"`
}

// respondJSON marshals a success payload.
func respondJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return respondErr(facegate.KindInternal, "encoding failed")
	}
	return mcp.NewToolResultText(string(b))
}

// respondErr builds an error payload.
func respondErr(kind facegate.ErrorKind, format string, args ...any) *mcp.CallToolResult {
	b, _ := json.Marshal(toolError{
		Status:  "error",
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	})
	return mcp.NewToolResultText(string(b))
}

// respondServiceErr maps an identity-service error onto the wire shape.
func respondServiceErr(err error) *mcp.CallToolResult {
	return respondErr(facegate.KindOf(err), "%s", facegate.PublicMessage(err))
}

// authenticate verifies the access_token argument. On failure it emits
// the unauthenticated audit event and returns a ready-made error result.
func (s *Server) authenticate(req mcp.CallToolRequest, toolName string) (clientID string, fail *mcp.CallToolResult) {
	token, err := req.RequireString("access_token")
	if err != nil || token == "" {
		s.auditDenied(toolName, "unknown", "missing access_token")
		return "", respondErr(facegate.KindUnauthenticated, "access_token is required")
	}

	clientID, err = s.auth.VerifyToken(token)
	if err != nil {
		reason := "invalid token"
		switch {
		case errors.Is(err, authority.ErrExpiredToken):
			reason = "token expired"
		case errors.Is(err, authority.ErrDisabledClient):
			reason = "client disabled"
		}
		s.auditDenied(toolName, "unknown", reason)
		return "", respondErr(facegate.KindUnauthenticated, "%s", reason)
	}
	return clientID, nil
}

// requireCapability gates a tool on the health registry. allow reports
// whether the current capability set permits the call.
func (s *Server) requireCapability(clientID, toolName string, allow func(health.Capabilities) bool) *mcp.CallToolResult {
	caps := s.registry.Capabilities()
	if allow(caps) {
		return nil
	}
	snap := s.registry.Snapshot()
	reason := unavailableReason(snap)
	s.sink.Log(audit.Event{
		EventType:    toolName,
		Outcome:      audit.OutcomeDenied,
		ClientID:     clientID,
		ErrorMessage: reason,
	})
	return respondErr(facegate.KindUnavailable, "%s", reason)
}

// unavailableReason summarizes which component is in the way.
func unavailableReason(snap health.Snapshot) string {
	for _, name := range []string{health.ComponentFaceModel, health.ComponentVectorIndex} {
		st := snap.Components[name]
		if st.Status != health.Healthy {
			msg := st.Message
			if msg == "" {
				msg = string(st.Status)
			}
			return fmt.Sprintf("%s is %s: %s", name, st.Status, msg)
		}
	}
	return "service temporarily unavailable"
}

func (s *Server) auditDenied(toolName, clientID, reason string) {
	s.sink.Log(audit.Event{
		EventType:    toolName,
		Outcome:      audit.OutcomeDenied,
		ClientID:     clientID,
		ErrorMessage: reason,
	})
}
