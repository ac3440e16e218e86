// Package mcpserver exposes the identity service as named tools over the
// MCP stdio transport (JSON-RPC 2.0).
//
// Every tool goes through the same gauntlet before touching the identity
// service: argument validation, access-token verification, and capability
// gating against the health registry. Tool results are the operation's
// JSON object directly; failures are JSON objects with status "error",
// a stable kind, and a human-readable message.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/skyylabs/facegate/pkg/audit"
	"github.com/skyylabs/facegate/pkg/authority"
	"github.com/skyylabs/facegate/pkg/health"
	"github.com/skyylabs/facegate/pkg/identity"
)

// ServerName and ServerVersion identify this MCP server to clients.
const (
	ServerName    = "facegate"
	ServerVersion = "1.0.0"
)

// Server owns the tool handlers and their dependencies.
type Server struct {
	identity *identity.Service
	auth     *authority.Authority
	registry *health.Registry
	sink     audit.Logger
	log      zerolog.Logger
}

// New builds a tool server.
func New(svc *identity.Service, auth *authority.Authority, registry *health.Registry, sink audit.Logger, log zerolog.Logger) *Server {
	if sink == nil {
		sink = audit.Discard
	}
	return &Server{identity: svc, auth: auth, registry: registry, sink: sink, log: log}
}

// MCPServer constructs the mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	m := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
	)
	s.registerIdentityTools(m)
	s.registerHealthTools(m)
	return m
}

// ServeStdio runs the server over stdin/stdout until the peer hangs up.
func (s *Server) ServeStdio() error {
	s.log.Info().Str("server", ServerName).Str("version", ServerVersion).
		Msg("starting MCP server (stdio transport)")
	return server.ServeStdio(s.MCPServer())
}
