package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyylabs/facegate/pkg/audit"
	"github.com/skyylabs/facegate/pkg/authority"
	"github.com/skyylabs/facegate/pkg/face"
	"github.com/skyylabs/facegate/pkg/health"
	"github.com/skyylabs/facegate/pkg/identity"
	"github.com/skyylabs/facegate/pkg/userstore"
	"github.com/skyylabs/facegate/pkg/vecstore"
)

// pixelModel embeds deterministically from pixel content.
type pixelModel struct{ dim int }

func (m *pixelModel) Detect(img image.Image) ([]face.Detection, error) {
	h := fnv.New64a()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			_, _ = h.Write([]byte{byte(r), byte(g), byte(bl)})
		}
	}
	rng := rand.New(rand.NewPCG(h.Sum64(), 1))
	emb := make([]float32, m.dim)
	for i := range emb {
		emb[i] = float32(rng.NormFloat64())
	}
	return []face.Detection{{Box: image.Rect(0, 0, 8, 8), Score: 0.9, Embedding: emb}}, nil
}
func (m *pixelModel) Dimension() int { return m.dim }
func (m *pixelModel) Close() error   { return nil }

type memorySink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memorySink) Log(ev audit.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *memorySink) count(outcome audit.Outcome) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Outcome == outcome {
			n++
		}
	}
	return n
}

type env struct {
	server   *Server
	auth     *authority.Authority
	registry *health.Registry
	sink     *memorySink
	token    string
	clientID string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	auth, err := authority.New(authority.Config{
		KeysDir:     filepath.Join(dir, "keys"),
		ClientsPath: filepath.Join(dir, "clients.json"),
	})
	require.NoError(t, err)
	clientID, secret, err := auth.Clients().Create("test-suite")
	require.NoError(t, err)
	token, err := auth.IssueToken(clientID, secret)
	require.NoError(t, err)

	users, err := userstore.Open(userstore.Options{InMemory: true, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = users.Close() })

	registry := health.NewRegistry()
	registry.Update(health.ComponentFaceModel, health.Healthy, "", "")
	registry.Update(health.ComponentVectorIndex, health.Healthy, "", "")
	registry.Update(health.ComponentTokenAuthority, health.Healthy, "", "")

	sink := &memorySink{}
	svc, err := identity.New(identity.Config{
		Analyzer: face.NewAnalyzer(&pixelModel{dim: 16}),
		Index:    vecstore.NewFlat(16),
		Users:    users,
		Registry: registry,
		Sink:     sink,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	return &env{
		server:   New(svc, auth, registry, sink, zerolog.Nop()),
		auth:     auth,
		registry: registry,
		sink:     sink,
		token:    token,
		clientID: clientID,
	}
}

func callArgs(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", res.Content[0])
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &out))
	return out
}

func imageB64(t *testing.T, seed byte) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{uint8(x) * seed, uint8(y) ^ seed, seed, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestRegisterAndRecognizeTools(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	img := imageB64(t, 3)

	res, err := e.server.handleRegisterUser(ctx, callArgs(map[string]any{
		"access_token": e.token,
		"name":         "John Smith",
		"image_data":   img,
		"metadata":     map[string]any{"department": "engineering"},
	}))
	require.NoError(t, err)
	reg := decodeResult(t, res)
	assert.Equal(t, "registered", reg["status"])
	user := reg["user"].(map[string]any)
	assert.Equal(t, "john_smith_1", user["user_id"])
	_, hasEmbedding := user["embedding"]
	assert.False(t, hasEmbedding, "embedding must never cross the tool surface")

	res, err = e.server.handleRecognizeFace(ctx, callArgs(map[string]any{
		"access_token":         e.token,
		"image_data":           img,
		"confidence_threshold": 0.4,
	}))
	require.NoError(t, err)
	rec := decodeResult(t, res)
	assert.Equal(t, "recognized", rec["status"])
	assert.LessOrEqual(t, rec["distance"].(float64), 0.1)
	assert.Equal(t, "john_smith_1", rec["user"].(map[string]any)["user_id"])
}

func TestUnauthenticatedCalls(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for name, token := range map[string]string{
		"missing": "",
		"garbage": "nonsense.token.here",
	} {
		t.Run(name, func(t *testing.T) {
			args := map[string]any{"image_data": imageB64(t, 1)}
			if token != "" {
				args["access_token"] = token
			}
			res, err := e.server.handleRecognizeFace(ctx, callArgs(args))
			require.NoError(t, err)
			out := decodeResult(t, res)
			assert.Equal(t, "error", out["status"])
			assert.Equal(t, "unauthenticated", out["kind"])
		})
	}
	assert.GreaterOrEqual(t, e.sink.count(audit.OutcomeDenied), 2)
}

func TestTokenExpiryOverToolSurface(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id, secret, err := e.auth.Clients().Create("short-lived")
	require.NoError(t, err)
	shortToken, err := e.auth.IssueTokenTTL(id, secret, time.Second)
	require.NoError(t, err)

	res, err := e.server.handleListUsers(ctx, callArgs(map[string]any{"access_token": shortToken}))
	require.NoError(t, err)
	assert.NotEqual(t, "error", decodeResult(t, res)["status"])

	time.Sleep(2 * time.Second)
	res, err = e.server.handleListUsers(ctx, callArgs(map[string]any{"access_token": shortToken}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "unauthenticated", out["kind"])
}

func TestCapabilityGating(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.registry.Update(health.ComponentVectorIndex, health.Unavailable, "index corrupt", "")

	res, err := e.server.handleRecognizeFace(ctx, callArgs(map[string]any{
		"access_token": e.token,
		"image_data":   imageB64(t, 2),
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "unavailable", out["kind"])
	assert.Contains(t, out["message"], "vector_index")

	// Degraded index still accepts registrations, as queued.
	e.registry.Update(health.ComponentVectorIndex, health.Degraded, "recovering", "")
	res, err = e.server.handleRegisterUser(ctx, callArgs(map[string]any{
		"access_token": e.token,
		"name":         "Jane Doe",
		"image_data":   imageB64(t, 5),
	}))
	require.NoError(t, err)
	reg := decodeResult(t, res)
	assert.Equal(t, "queued", reg["status"])
	user := reg["user"].(map[string]any)
	assert.Equal(t, float64(1), user["queue_position"])

	health_, err := e.server.handleHealthStatus(ctx, callArgs(map[string]any{"access_token": e.token}))
	require.NoError(t, err)
	snap := decodeResult(t, health_)
	assert.Equal(t, float64(1), snap["queued_count"])
}

func TestImageDataBoundary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// 99 base64 characters: rejected by the length gate.
	res, err := e.server.handleRecognizeFace(ctx, callArgs(map[string]any{
		"access_token": e.token,
		"image_data":   strings.Repeat("A", 99),
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "validation", out["kind"])
	assert.Contains(t, out["message"], "100")

	// Exactly 100 characters: passes the length gate; the failure, if
	// any, is about image content, not size.
	res, err = e.server.handleRecognizeFace(ctx, callArgs(map[string]any{
		"access_token": e.token,
		"image_data":   strings.Repeat("A", 100),
	}))
	require.NoError(t, err)
	out = decodeResult(t, res)
	assert.Equal(t, "validation", out["kind"])
	assert.NotContains(t, out["message"], "at least")
}

func TestListUsersValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for name, args := range map[string]map[string]any{
		"limit too big":   {"access_token": e.token, "limit": 101},
		"limit zero":      {"access_token": e.token, "limit": 0},
		"negative offset": {"access_token": e.token, "offset": -1},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := e.server.handleListUsers(ctx, callArgs(toFloatArgs(args)))
			require.NoError(t, err)
			out := decodeResult(t, res)
			assert.Equal(t, "validation", out["kind"])
		})
	}
}

// toFloatArgs mimics JSON decoding, where all numbers arrive as float64.
func toFloatArgs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if n, ok := v.(int); ok {
			out[k] = float64(n)
		} else {
			out[k] = v
		}
	}
	return out
}

func TestDeleteUserTool(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	img := imageB64(t, 8)

	res, err := e.server.handleRegisterUser(ctx, callArgs(map[string]any{
		"access_token": e.token, "name": "Brief Visitor", "image_data": img,
	}))
	require.NoError(t, err)
	uid := decodeResult(t, res)["user"].(map[string]any)["user_id"].(string)

	res, err = e.server.handleDeleteUser(ctx, callArgs(map[string]any{
		"access_token": e.token, "user_id": uid,
	}))
	require.NoError(t, err)
	assert.Equal(t, "ok", decodeResult(t, res)["status"])

	res, err = e.server.handleGetUserProfile(ctx, callArgs(map[string]any{
		"access_token": e.token, "user_id": uid,
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "not_found", out["kind"])
}

func TestTokenInfoTool(t *testing.T) {
	e := newEnv(t)
	res, err := e.server.handleTokenInfo(context.Background(), callArgs(map[string]any{
		"access_token": e.token,
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, e.clientID, out["client_id"])
}
