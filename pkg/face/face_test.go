package face

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

// fakeModel returns canned detections regardless of input.
type fakeModel struct {
	faces []Detection
	err   error
	dim   int
}

func (f *fakeModel) Detect(image.Image) ([]Detection, error) { return f.faces, f.err }
func (f *fakeModel) Dimension() int                          { return f.dim }
func (f *fakeModel) Close() error                            { return nil }

// testImage renders a small PNG with some texture so sharpness is nonzero.
func testImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*7 + y*13) % 256)
			img.Set(x, y, color.RGBA{v, 255 - v, v / 2, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func rawEmbedding(dim int) []float32 {
	e := make([]float32, dim)
	for i := range e {
		e[i] = float32(i%5) + 1 // deliberately not normalized
	}
	return e
}

func TestAnalyzeNormalizesEmbedding(t *testing.T) {
	m := &fakeModel{
		dim: 8,
		faces: []Detection{
			{Box: image.Rect(10, 10, 50, 50), Score: 0.97, Embedding: rawEmbedding(8)},
		},
	}
	a := NewAnalyzer(m)

	res, err := a.Analyze(testImage(t, 64, 64))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	var norm float64
	for _, x := range res.Embedding {
		norm += float64(x) * float64(x)
	}
	if d := math.Abs(math.Sqrt(norm) - 1); d > 1e-4 {
		t.Fatalf("|norm-1| = %g, want <= 1e-4", d)
	}
	if res.DetectionScore != 0.97 {
		t.Fatalf("DetectionScore = %g", res.DetectionScore)
	}
	if res.FaceCount != 1 {
		t.Fatalf("FaceCount = %d", res.FaceCount)
	}
}

func TestAnalyzePicksLargestFace(t *testing.T) {
	small := Detection{Box: image.Rect(0, 0, 10, 10), Score: 0.99, Embedding: rawEmbedding(4)}
	big := Detection{Box: image.Rect(0, 0, 40, 40), Score: 0.80, Embedding: []float32{9, 9, 9, 9}}
	m := &fakeModel{dim: 4, faces: []Detection{small, big}}
	a := NewAnalyzer(m)

	res, err := a.Analyze(testImage(t, 64, 64))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	// The big face's embedding is all-equal; after normalization every
	// component is 0.5.
	if math.Abs(float64(res.Embedding[0])-0.5) > 1e-5 {
		t.Fatalf("chose wrong face, embedding[0] = %g", res.Embedding[0])
	}
	if res.DetectionScore != 0.80 {
		t.Fatalf("DetectionScore = %g, want the larger face's 0.80", res.DetectionScore)
	}
	if res.FaceCount != 2 {
		t.Fatalf("FaceCount = %d, want 2", res.FaceCount)
	}
}

func TestAnalyzeTieBreaksOnScore(t *testing.T) {
	a1 := Detection{Box: image.Rect(0, 0, 20, 20), Score: 0.5, Embedding: []float32{1, 0}}
	a2 := Detection{Box: image.Rect(30, 30, 50, 50), Score: 0.9, Embedding: []float32{0, 1}}
	m := &fakeModel{dim: 2, faces: []Detection{a1, a2}}
	a := NewAnalyzer(m)

	res, err := a.Analyze(testImage(t, 64, 64))
	if err != nil {
		t.Fatal(err)
	}
	if res.Embedding[1] != 1 {
		t.Fatalf("tie should go to higher score, got %v", res.Embedding)
	}
}

func TestAnalyzeStrictSingleFace(t *testing.T) {
	m := &fakeModel{dim: 2, faces: []Detection{
		{Box: image.Rect(0, 0, 5, 5), Embedding: []float32{1, 0}},
		{Box: image.Rect(6, 6, 12, 12), Embedding: []float32{0, 1}},
	}}
	a := NewAnalyzer(m)
	a.StrictSingleFace = true

	if _, err := a.Analyze(testImage(t, 32, 32)); !errors.Is(err, ErrMultipleFaces) {
		t.Fatalf("err = %v, want ErrMultipleFaces", err)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	t.Run("no face", func(t *testing.T) {
		a := NewAnalyzer(&fakeModel{dim: 2})
		if _, err := a.Analyze(testImage(t, 16, 16)); !errors.Is(err, ErrNoFace) {
			t.Fatalf("err = %v, want ErrNoFace", err)
		}
	})

	t.Run("decode error", func(t *testing.T) {
		a := NewAnalyzer(&fakeModel{dim: 2})
		if _, err := a.Analyze([]byte("definitely not an image")); !errors.Is(err, ErrDecode) {
			t.Fatalf("err = %v, want ErrDecode", err)
		}
	})

	t.Run("nil model", func(t *testing.T) {
		a := NewAnalyzer(nil)
		if _, err := a.Analyze(testImage(t, 16, 16)); !errors.Is(err, ErrModelUnavailable) {
			t.Fatalf("err = %v, want ErrModelUnavailable", err)
		}
	})
}

func TestQualityMetrics(t *testing.T) {
	m := &fakeModel{dim: 2, faces: []Detection{
		{Box: image.Rect(0, 0, 32, 32), Score: 1, Embedding: []float32{1, 0}},
	}}
	a := NewAnalyzer(m)

	res, err := a.Analyze(testImage(t, 64, 64))
	if err != nil {
		t.Fatal(err)
	}
	// 32×32 box in a 64×64 image covers a quarter of the frame.
	if math.Abs(float64(res.Quality.BoxArea)-0.25) > 1e-5 {
		t.Fatalf("BoxArea = %g, want 0.25", res.Quality.BoxArea)
	}
	// The striped test image has strong local contrast.
	if res.Quality.Sharpness <= 0 {
		t.Fatal("Sharpness should be positive for textured crop")
	}
	if s := res.Quality.Score(); s <= 0 || s > 1 {
		t.Fatalf("quality score = %g, want (0, 1]", s)
	}
}
