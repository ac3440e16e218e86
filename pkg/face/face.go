// Package face turns raw image bytes into a face embedding plus quality
// metrics.
//
// The neural network that detects faces and produces embeddings is a
// black box behind the [Model] interface; the package owns everything
// around it: image decoding, largest-face selection, L2 normalization of
// the embedding, and quality scoring.
//
// # Pipeline
//
//  1. decode image bytes (JPEG or PNG)
//  2. Model.Detect: image → candidate faces with boxes and raw embeddings
//  3. pick the face with the largest bounding box (ties: highest score)
//  4. L2-normalize the embedding, compute quality metrics
package face

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	"github.com/skyylabs/facegate/pkg/vecstore"
)

// Sentinel errors. The tool boundary maps these onto its validation /
// unavailable error kinds.
var (
	ErrNoFace           = errors.New("face: no face detected")
	ErrMultipleFaces    = errors.New("face: multiple faces detected")
	ErrDecode           = errors.New("face: image decode failed")
	ErrModelUnavailable = errors.New("face: model unavailable")
)

// Detection is one candidate face reported by a Model.
type Detection struct {
	// Box is the face bounding box in image pixel coordinates.
	Box image.Rectangle

	// Score is the detector confidence in [0, 1].
	Score float32

	// Embedding is the raw (not necessarily normalized) face embedding.
	Embedding []float32

	// Pose holds yaw, pitch, roll estimates in degrees, if the model
	// provides them; zero otherwise.
	Pose [3]float32
}

// Model detects faces in a decoded image and embeds them.
//
// Implementations must be safe for concurrent use. A Model that has lost
// its backend should return an error wrapping ErrModelUnavailable.
type Model interface {
	// Detect returns every face found in img.
	Detect(img image.Image) ([]Detection, error)

	// Dimension returns the embedding length produced by Detect.
	Dimension() int

	// Close releases model resources.
	Close() error
}

// Quality captures the registration-time quality metrics stored on the
// user record.
type Quality struct {
	// BoxArea is the face box area as a fraction of the image area.
	BoxArea float32 `json:"bbox_area"`

	// Sharpness is the Laplacian variance of the face crop, normalized
	// to [0, 1] (higher is sharper).
	Sharpness float32 `json:"sharpness"`

	// Pose is yaw, pitch, roll in degrees.
	Pose [3]float32 `json:"pose"`
}

// Score collapses the quality metrics into a single [0, 1] figure stored
// as face_quality on the user record.
func (q Quality) Score() float32 {
	s := 0.5*q.Sharpness + 0.5*minf(q.BoxArea*10, 1)
	if s > 1 {
		return 1
	}
	return s
}

// Result is a successful analysis.
type Result struct {
	// Embedding is the L2-normalized face embedding.
	Embedding []float32

	// DetectionScore is the detector confidence for the chosen face.
	DetectionScore float32

	// Quality holds the quality metrics for the chosen face.
	Quality Quality

	// FaceCount is the number of faces the detector reported.
	FaceCount int
}

// Analyzer runs the full decode → detect → embed pipeline.
type Analyzer struct {
	mu    sync.RWMutex
	model Model

	// StrictSingleFace makes Analyze fail with ErrMultipleFaces instead
	// of picking the largest box when more than one face is present.
	StrictSingleFace bool
}

// NewAnalyzer wraps a model. The model may be nil and set later with
// SetModel; until then Analyze fails with ErrModelUnavailable.
func NewAnalyzer(m Model) *Analyzer {
	return &Analyzer{model: m}
}

// SetModel swaps the backing model (used after a deferred model load).
func (a *Analyzer) SetModel(m Model) {
	a.mu.Lock()
	a.model = m
	a.mu.Unlock()
}

// Analyze decodes imageBytes, detects faces, and returns the embedding of
// the dominant face.
func (a *Analyzer) Analyze(imageBytes []byte) (*Result, error) {
	a.mu.RLock()
	m := a.model
	a.mu.RUnlock()
	if m == nil {
		return nil, ErrModelUnavailable
	}

	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	faces, err := m.Detect(img)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, ErrNoFace
	}
	if len(faces) > 1 && a.StrictSingleFace {
		return nil, fmt.Errorf("%w: %d faces", ErrMultipleFaces, len(faces))
	}

	chosen := pickDominant(faces)
	if len(chosen.Embedding) != m.Dimension() {
		return nil, fmt.Errorf("face: model returned %d-d embedding, want %d",
			len(chosen.Embedding), m.Dimension())
	}

	emb := make([]float32, len(chosen.Embedding))
	copy(emb, chosen.Embedding)
	vecstore.NormalizeL2(emb)

	return &Result{
		Embedding:      emb,
		DetectionScore: chosen.Score,
		Quality:        measureQuality(img, chosen),
		FaceCount:      len(faces),
	}, nil
}

// Close closes the backing model.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.model == nil {
		return nil
	}
	err := a.model.Close()
	a.model = nil
	return err
}

// pickDominant selects the face with the largest bounding box, breaking
// ties by detection score.
func pickDominant(faces []Detection) Detection {
	best := faces[0]
	bestArea := area(best.Box)
	for _, f := range faces[1:] {
		a := area(f.Box)
		if a > bestArea || (a == bestArea && f.Score > best.Score) {
			best, bestArea = f, a
		}
	}
	return best
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
