package face

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// SidecarModel runs the face recognition network in a helper process and
// talks to it over stdin/stdout, one JSON object per line. The helper owns
// the model weights (e.g. the buffalo_l bundle) and the inference runtime;
// this side owns process lifecycle and protocol.
//
// Protocol: on start the helper prints a hello line
//
//	{"dim": 512}
//
// then answers each request line
//
//	{"id": 1, "image": "<base64 PNG>"}
//
// with a response line
//
//	{"id": 1, "faces": [{"box": [x0,y0,x1,y1], "score": 0.98,
//	  "embedding": [...], "pose": [yaw,pitch,roll]}]}
//	{"id": 1, "error": "..."}
//
// Requests are serialized; the helper never sees concurrent lines.
type SidecarModel struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bufio.Reader
	dim    int
	nextID uint64
	closed bool
}

type sidecarHello struct {
	Dim int `json:"dim"`
}

type sidecarRequest struct {
	ID    uint64 `json:"id"`
	Image string `json:"image"`
}

type sidecarFace struct {
	Box       [4]int     `json:"box"`
	Score     float32    `json:"score"`
	Embedding []float32  `json:"embedding"`
	Pose      [3]float32 `json:"pose"`
}

type sidecarResponse struct {
	ID    uint64        `json:"id"`
	Faces []sidecarFace `json:"faces"`
	Error string        `json:"error,omitempty"`
}

// StartSidecar launches the helper binary with the given arguments and
// performs the hello handshake.
func StartSidecar(bin string, args ...string) (*SidecarModel, error) {
	cmd := exec.Command(bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrModelUnavailable, bin, err)
	}

	m := &SidecarModel{cmd: cmd, stdin: stdin, out: bufio.NewReader(stdout)}

	line, err := m.out.ReadString('\n')
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("%w: hello: %v", ErrModelUnavailable, err)
	}
	var hello sidecarHello
	if err := json.Unmarshal([]byte(line), &hello); err != nil || hello.Dim <= 0 {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("%w: bad hello %q", ErrModelUnavailable, strings.TrimSpace(line))
	}
	m.dim = hello.Dim
	return m, nil
}

func (m *SidecarModel) Dimension() int { return m.dim }

func (m *SidecarModel) Detect(img image.Image) ([]Detection, error) {
	var buf strings.Builder
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if err := png.Encode(enc, img); err != nil {
		return nil, fmt.Errorf("face: encode frame: %w", err)
	}
	_ = enc.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrModelUnavailable
	}

	m.nextID++
	req, _ := json.Marshal(sidecarRequest{ID: m.nextID, Image: buf.String()})
	if _, err := m.stdin.Write(append(req, '\n')); err != nil {
		return nil, fmt.Errorf("%w: write: %v", ErrModelUnavailable, err)
	}

	line, err := m.out.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrModelUnavailable, err)
	}
	var resp sidecarResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrModelUnavailable, err)
	}
	if resp.ID != m.nextID {
		return nil, fmt.Errorf("%w: response id %d, want %d", ErrModelUnavailable, resp.ID, m.nextID)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("face: sidecar: %s", resp.Error)
	}

	out := make([]Detection, len(resp.Faces))
	for i, f := range resp.Faces {
		out[i] = Detection{
			Box:       image.Rect(f.Box[0], f.Box[1], f.Box[2], f.Box[3]),
			Score:     f.Score,
			Embedding: f.Embedding,
			Pose:      f.Pose,
		}
	}
	return out, nil
}

func (m *SidecarModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	_ = m.stdin.Close()
	return m.cmd.Wait()
}
