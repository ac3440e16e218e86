package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func allHealthy(r *Registry) {
	r.Update(ComponentFaceModel, Healthy, "", "")
	r.Update(ComponentVectorIndex, Healthy, "", "")
	r.Update(ComponentTokenAuthority, Healthy, "", "")
}

func TestCapabilityDerivation(t *testing.T) {
	cases := []struct {
		name      string
		face, vec Status
		want      Capabilities
	}{
		{"all healthy", Healthy, Healthy, Capabilities{CanRegister: true, CanRecognize: true}},
		{"vector degraded", Healthy, Degraded, Capabilities{CanRegister: true, CanQueueRegistration: true}},
		{"vector down", Healthy, Unavailable, Capabilities{}},
		{"face down", Unavailable, Healthy, Capabilities{}},
		{"both down", Unavailable, Unavailable, Capabilities{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			r.Update(ComponentFaceModel, tc.face, "", "")
			r.Update(ComponentVectorIndex, tc.vec, "", "")
			r.Update(ComponentTokenAuthority, Healthy, "", "")
			if got := r.Capabilities(); got != tc.want {
				t.Fatalf("capabilities = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestOverallIsWorstComponent(t *testing.T) {
	r := NewRegistry()
	allHealthy(r)
	if s := r.Snapshot(); s.Overall != Healthy {
		t.Fatalf("overall = %s, want healthy", s.Overall)
	}

	r.Update(ComponentVectorIndex, Degraded, "index locked", "")
	if s := r.Snapshot(); s.Overall != Degraded {
		t.Fatalf("overall = %s, want degraded", s.Overall)
	}

	r.Update(ComponentFaceModel, Unavailable, "model load failed", "boom")
	if s := r.Snapshot(); s.Overall != Unavailable {
		t.Fatalf("overall = %s, want unavailable", s.Overall)
	}
}

func TestCallbackFiresOnlyOnTransition(t *testing.T) {
	r := NewRegistry()
	allHealthy(r)

	var mu sync.Mutex
	var got []Change
	done := make(chan struct{}, 10)
	r.OnChange(func(ch Change) {
		mu.Lock()
		got = append(got, ch)
		mu.Unlock()
		done <- struct{}{}
	})

	r.Update(ComponentVectorIndex, Degraded, "locked", "")
	<-done
	// Same status again: no transition, no callback.
	r.Update(ComponentVectorIndex, Degraded, "still locked", "")
	r.Update(ComponentVectorIndex, Healthy, "recovered", "")
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %d callbacks, want 2: %+v", len(got), got)
	}
	if got[0].To != Degraded || got[1].To != Healthy {
		t.Fatalf("transitions = %+v", got)
	}
	if got[1].From != Degraded {
		t.Fatalf("second transition From = %s, want degraded", got[1].From)
	}
}

func TestCallbackDoesNotBlockUpdate(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})
	r.OnChange(func(Change) { <-release })

	start := time.Now()
	r.Update(ComponentVectorIndex, Degraded, "", "")
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Update blocked for %v on a slow callback", elapsed)
	}
	close(release)
}

func TestQueueFIFO(t *testing.T) {
	r := NewRegistry()

	if pos := r.Enqueue(QueuedRegistration{Name: "First"}); pos != 1 {
		t.Fatalf("pos = %d, want 1", pos)
	}
	if pos := r.Enqueue(QueuedRegistration{Name: "Second"}); pos != 2 {
		t.Fatalf("pos = %d, want 2", pos)
	}
	if n := r.QueueLen(); n != 2 {
		t.Fatalf("QueueLen = %d", n)
	}
	if s := r.Snapshot(); s.QueuedCount != 2 {
		t.Fatalf("snapshot queued = %d", s.QueuedCount)
	}

	q := r.Drain()
	if len(q) != 2 || q[0].Name != "First" || q[1].Name != "Second" {
		t.Fatalf("drain order wrong: %+v", q)
	}
	if r.QueueLen() != 0 {
		t.Fatal("queue not empty after drain")
	}
	if q[0].Timestamp.IsZero() {
		t.Fatal("enqueue must stamp the registration")
	}
}

func TestProberRecoversComponent(t *testing.T) {
	r := NewRegistry()
	allHealthy(r)

	var calls atomic.Int32
	probe := func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("still locked")
		}
		return nil
	}

	p := NewProber(r, ComponentVectorIndex, probe, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go p.Run(ctx)

	r.Update(ComponentVectorIndex, Degraded, "locked", "")

	deadline := time.After(25 * time.Second)
	for r.Status(ComponentVectorIndex) != Healthy {
		select {
		case <-deadline:
			t.Fatalf("component never recovered; probe calls = %d", calls.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
	if calls.Load() < 3 {
		t.Fatalf("probe calls = %d, want >= 3", calls.Load())
	}
}
