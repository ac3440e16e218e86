// Package toolclient is the voice assistant's synchronous gateway to the
// facegate MCP server.
//
// It owns exactly one stdio MCP session: the server subprocess is spawned
// on Connect, initialized once, and every tool call is serialized through
// a single mutex for the life of the facade. This is the only place where
// the assistant touches the tool protocol; the orchestrators above it see
// plain method calls with typed results.
package toolclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/skyylabs/facegate/pkg/facegate"
)

// DefaultCallTimeout bounds each tool call.
const DefaultCallTimeout = 30 * time.Second

// Facade is the synchronous tool-call client.
type Facade struct {
	mu      sync.Mutex
	mcp     *client.Client
	token   string
	timeout time.Duration
	log     zerolog.Logger
}

// Options for Connect.
type Options struct {
	// ServerCommand launches the tool server, e.g. "facegate-mcp".
	ServerCommand string

	// ServerArgs are passed to the server binary.
	ServerArgs []string

	// ServerEnv is extra environment for the server process.
	ServerEnv []string

	// AccessToken is attached to every call.
	AccessToken string

	// CallTimeout defaults to DefaultCallTimeout.
	CallTimeout time.Duration

	Logger zerolog.Logger
}

// Connect spawns the tool server over stdio and initializes the session.
func Connect(ctx context.Context, opts Options) (*Facade, error) {
	if opts.ServerCommand == "" {
		return nil, fmt.Errorf("toolclient: ServerCommand is required")
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}

	c, err := client.NewStdioMCPClient(opts.ServerCommand, opts.ServerEnv, opts.ServerArgs...)
	if err != nil {
		return nil, fmt.Errorf("toolclient: spawn server: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "facegate-assistant", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("toolclient: initialize: %w", err)
	}

	opts.Logger.Info().Str("command", opts.ServerCommand).Msg("tool server session established")
	return &Facade{
		mcp:     c,
		token:   opts.AccessToken,
		timeout: opts.CallTimeout,
		log:     opts.Logger,
	}, nil
}

// Disconnect tears the session down. The facade is unusable afterwards.
func (f *Facade) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mcp == nil {
		return nil
	}
	err := f.mcp.Close()
	f.mcp = nil
	return err
}

// call invokes one tool with the access token injected, enforcing the
// per-call deadline and decoding the response into out.
func (f *Facade) call(toolName string, args map[string]any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mcp == nil {
		return fmt.Errorf("toolclient: not connected")
	}

	if args == nil {
		args = make(map[string]any, 1)
	}
	args["access_token"] = f.token

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	start := time.Now()
	res, err := f.mcp.CallTool(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		f.log.Error().Err(err).Str("tool", toolName).Dur("elapsed", elapsed).Msg("tool call failed")
		return fmt.Errorf("toolclient: %s: %w", toolName, err)
	}
	f.log.Debug().Str("tool", toolName).Dur("elapsed", elapsed).Msg("tool call completed")

	text, err := textContent(res)
	if err != nil {
		return fmt.Errorf("toolclient: %s: %w", toolName, err)
	}

	// The error branch is a JSON object with status "error".
	var probe struct {
		Status  string             `json:"status"`
		Kind    facegate.ErrorKind `json:"kind"`
		Message string             `json:"message"`
	}
	if err := json.Unmarshal([]byte(text), &probe); err == nil && probe.Status == "error" {
		return facegate.NewError(probe.Kind, "%s", probe.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("toolclient: %s: decode result: %w", toolName, err)
	}
	return nil
}

func textContent(res *mcp.CallToolResult) (string, error) {
	if res == nil || len(res.Content) == 0 {
		return "", fmt.Errorf("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		return "", fmt.Errorf("unexpected content type %T", res.Content[0])
	}
	return tc.Text, nil
}
