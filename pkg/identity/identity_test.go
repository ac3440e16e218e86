package identity

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyylabs/facegate/pkg/audit"
	"github.com/skyylabs/facegate/pkg/face"
	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/health"
	"github.com/skyylabs/facegate/pkg/userstore"
	"github.com/skyylabs/facegate/pkg/vecstore"
)

// hashModel derives a deterministic embedding from image pixels: the same
// image always embeds identically, different images embed to independent
// random unit vectors.
type hashModel struct{ dim int }

func (m *hashModel) Detect(img image.Image) ([]face.Detection, error) {
	h := fnv.New64a()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			_, _ = h.Write([]byte{byte(r), byte(g), byte(bb)})
		}
	}
	rng := rand.New(rand.NewPCG(h.Sum64(), 0))
	emb := make([]float32, m.dim)
	for i := range emb {
		emb[i] = float32(rng.NormFloat64())
	}
	return []face.Detection{{
		Box:       image.Rect(0, 0, b.Dx()/2, b.Dy()/2),
		Score:     0.95,
		Embedding: emb,
	}}, nil
}

func (m *hashModel) Dimension() int { return m.dim }
func (m *hashModel) Close() error   { return nil }

// noFaceModel reports an empty frame.
type noFaceModel struct{}

func (noFaceModel) Detect(image.Image) ([]face.Detection, error) { return nil, nil }
func (noFaceModel) Dimension() int                               { return 16 }
func (noFaceModel) Close() error                                 { return nil }

// recordingSink collects audit events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Log(ev audit.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) byType(eventType string, outcome audit.Outcome) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, ev := range r.events {
		if ev.EventType == eventType && ev.Outcome == outcome {
			out = append(out, ev)
		}
	}
	return out
}

// faceImage renders a PNG whose pixels are a function of seed.
func faceImage(t *testing.T, seed byte) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{uint8(x*3) ^ seed, uint8(y * 5), seed, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fixture struct {
	svc      *Service
	registry *health.Registry
	sink     *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users, err := userstore.Open(userstore.Options{InMemory: true, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = users.Close() })

	registry := health.NewRegistry()
	registry.Update(health.ComponentFaceModel, health.Healthy, "", "")
	registry.Update(health.ComponentVectorIndex, health.Healthy, "", "")
	registry.Update(health.ComponentTokenAuthority, health.Healthy, "", "")

	sink := &recordingSink{}
	svc, err := New(Config{
		Analyzer: face.NewAnalyzer(&hashModel{dim: 16}),
		Index:    vecstore.NewFlat(16),
		Users:    users,
		Registry: registry,
		Sink:     sink,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{svc: svc, registry: registry, sink: sink}
}

func TestRegisterRecognizeRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	img := faceImage(t, 1)

	reg, err := f.svc.Register(ctx, "client-a", "John Smith", img, map[string]string{"department": "eng"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Status != StatusRegistered {
		t.Fatalf("status = %s", reg.Status)
	}
	if reg.User.UserID != "john_smith_1" {
		t.Fatalf("user_id = %s, want john_smith_1", reg.User.UserID)
	}

	rec, err := f.svc.Recognize(ctx, "client-a", img, 0.4)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if rec.Status != StatusRecognized || rec.User.UserID != "john_smith_1" {
		t.Fatalf("recognize = %+v", rec)
	}
	if *rec.Distance > 0.1 {
		t.Fatalf("same-image distance = %g, want <= 0.1", *rec.Distance)
	}
	if rec.User.RecognitionCount != 1 || rec.User.LastRecognizedAt == nil {
		t.Fatalf("stats not bumped: %+v", rec.User)
	}

	// A different face must not match at a sane threshold.
	other, err := f.svc.Recognize(ctx, "client-a", faceImage(t, 99), 0.4)
	if err != nil {
		t.Fatal(err)
	}
	if other.Status != StatusNotRecognized {
		t.Fatalf("stranger matched: %+v", other)
	}

	if n := len(f.sink.byType("recognition", audit.OutcomeSuccess)); n != 1 {
		t.Fatalf("recognition success audit events = %d, want 1", n)
	}
	if n := len(f.sink.byType("registration", audit.OutcomeSuccess)); n != 1 {
		t.Fatalf("registration success audit events = %d, want 1", n)
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, "c", "Jane Doe", faceImage(t, 2), nil); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Register(ctx, "c", "Jane Doe", faceImage(t, 3), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusAlreadyExists || res.User.UserID != "jane_doe_1" {
		t.Fatalf("duplicate = %+v", res)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	img := faceImage(t, 4)

	cases := []struct {
		name     string
		userName string
		metadata map[string]string
	}{
		{"too short", "J", nil},
		{"too long", longName(101), nil},
		{"bad charset", "Robert; DROP TABLE", nil},
		{"bad metadata key", "Fine Name", map[string]string{"password": "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, "c", tc.userName, img, tc.metadata)
			if facegate.KindOf(err) != facegate.KindValidation {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}

	// Boundary lengths: exactly 2 and exactly 100 pass validation.
	if _, err := f.svc.Register(ctx, "c", "Al", img, nil); err != nil {
		t.Fatalf("2-char name rejected: %v", err)
	}
	if _, err := f.svc.Register(ctx, "c", longName(100), faceImage(t, 5), nil); err != nil {
		t.Fatalf("100-char name rejected: %v", err)
	}
}

func longName(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	b[0] = 'A'
	return string(b)
}

func TestRegisterNoFace(t *testing.T) {
	f := newFixture(t)
	f.svc.analyzer.SetModel(noFaceModel{})

	_, err := f.svc.Register(context.Background(), "c", "Ghost User", faceImage(t, 6), nil)
	if facegate.KindOf(err) != facegate.KindValidation {
		t.Fatalf("err = %v, want validation kind", err)
	}
	var fe *facegate.Error
	if !errors.As(err, &fe) || fe.Message != "no face detected in image" {
		t.Fatalf("message = %v", err)
	}
}

func TestDegradedQueueAndDrain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.registry.Update(health.ComponentVectorIndex, health.Degraded, "index locked", "")

	res, err := f.svc.Register(ctx, "c", "Jane Doe", faceImage(t, 7), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusQueued || res.QueuePosition != 1 {
		t.Fatalf("queued = %+v", res)
	}
	res2, err := f.svc.Register(ctx, "c", "Bob Roe", faceImage(t, 8), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res2.QueuePosition != 2 {
		t.Fatalf("second position = %d", res2.QueuePosition)
	}
	if f.registry.QueueLen() != 2 {
		t.Fatalf("queue len = %d", f.registry.QueueLen())
	}

	// Recovery drains the queue via the registry callback.
	f.registry.Update(health.ComponentVectorIndex, health.Healthy, "recovered", "")

	deadline := time.After(5 * time.Second)
	for f.registry.QueueLen() != 0 {
		select {
		case <-deadline:
			t.Fatal("queue never drained")
		case <-time.After(10 * time.Millisecond):
		}
	}
	// Drain runs asynchronously; wait for both records to land.
	for {
		list, err := f.svc.List(ctx, 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if list.Total == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("drained users missing: total = %d", list.Total)
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Drain preserves enqueue order: Jane got the first success event.
	succ := f.sink.byType("registration", audit.OutcomeSuccess)
	if len(succ) != 2 || succ[0].UserName != "Jane Doe" || succ[1].UserName != "Bob Roe" {
		t.Fatalf("drain audit order = %+v", succ)
	}

	if _, err := f.svc.Get(ctx, "jane_doe_1"); err != nil {
		t.Fatalf("jane_doe_1 missing after drain: %v", err)
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	img := faceImage(t, 9)

	reg, err := f.svc.Register(ctx, "c", "Erase Me", img, nil)
	if err != nil {
		t.Fatal(err)
	}
	uid := reg.User.UserID

	if err := f.svc.Delete(ctx, "c", uid); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := f.svc.Get(ctx, uid); facegate.KindOf(err) != facegate.KindNotFound {
		t.Fatalf("Get after delete = %v, want not_found", err)
	}
	rec, err := f.svc.Recognize(ctx, "c", img, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status == StatusRecognized {
		t.Fatal("deleted user still recognized")
	}

	if err := f.svc.Delete(ctx, "c", uid); facegate.KindOf(err) != facegate.KindNotFound {
		t.Fatalf("second delete = %v, want not_found", err)
	}
}

func TestUpdateMergesMetadataAndKeepsID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "c", "Renee Original", faceImage(t, 10),
		map[string]string{"department": "eng", "location": "lab"})
	if err != nil {
		t.Fatal(err)
	}
	uid := reg.User.UserID

	newName := "Renee Renamed"
	updated, err := f.svc.Update(ctx, "c", uid, UpdateRequest{
		Name:     &newName,
		Metadata: map[string]string{"location": "office", "notes": "updated"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.UserID != uid {
		t.Fatalf("user id changed on rename: %s", updated.UserID)
	}
	if updated.Name != newName {
		t.Fatalf("name = %s", updated.Name)
	}
	// Union semantics: untouched keys survive, provided keys overwrite.
	if updated.Metadata["department"] != "eng" ||
		updated.Metadata["location"] != "office" ||
		updated.Metadata["notes"] != "updated" {
		t.Fatalf("metadata = %+v", updated.Metadata)
	}

	if _, err := f.svc.Update(ctx, "c", "missing_1", UpdateRequest{}); facegate.KindOf(err) != facegate.KindNotFound {
		t.Fatalf("update missing = %v", err)
	}
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	names := []string{"Ann Ape", "Ben Bee", "Cat Cow", "Dan Doe", "Eve Elk"}
	for i, n := range names {
		if _, err := f.svc.Register(ctx, "c", n, faceImage(t, byte(20+i)), nil); err != nil {
			t.Fatal(err)
		}
	}

	page, err := f.svc.List(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 5 || page.Count != 2 || !page.HasMore {
		t.Fatalf("page = %+v", page)
	}

	last, err := f.svc.List(ctx, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if last.Count != 1 || last.HasMore {
		t.Fatalf("last page = %+v", last)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, "c", "Solo Person", faceImage(t, 31), nil); err != nil {
		t.Fatal(err)
	}
	st, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 1 || st.Dims != facegate.EmbeddingDim {
		t.Fatalf("stats = %+v", st)
	}
}

func TestReconcileRemovesOrphanVectors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Plant a vector with no metadata row.
	orphan := make([]float32, 16)
	orphan[0] = 1
	if err := f.svc.index.Upsert("ghost_1", orphan); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if f.svc.index.Contains("ghost_1") {
		t.Fatal("orphan vector survived reconcile")
	}
	if f.registry.Status(health.ComponentVectorIndex) != health.Healthy {
		t.Fatal("reconcile should leave the index healthy")
	}
}

func TestThresholdExtremes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	img := faceImage(t, 40)
	if _, err := f.svc.Register(ctx, "c", "Edge Case", img, nil); err != nil {
		t.Fatal(err)
	}

	// A near-zero threshold rejects everything except an exact embedding.
	rec, err := f.svc.Recognize(ctx, "c", faceImage(t, 41), 1e-6)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status == StatusRecognized {
		t.Fatal("near-zero threshold matched a stranger")
	}

	// A maximal threshold accepts any face.
	rec, err = f.svc.Recognize(ctx, "c", faceImage(t, 42), 2)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusRecognized {
		t.Fatal("threshold 2 must accept the nearest face")
	}
}
