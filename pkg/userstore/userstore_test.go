package userstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyylabs/facegate/pkg/facegate"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleUser(id, name string) *facegate.User {
	return &facegate.User{
		UserID:         id,
		Name:           name,
		Metadata:       map[string]string{"department": "engineering"},
		RegisteredAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		DetectionScore: 0.93,
		FaceQuality:    0.71,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := sampleUser("john_smith_1", "John Smith")
	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "john_smith_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != want.Name || got.Metadata["department"] != "engineering" {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}
	if !got.RegisteredAt.Equal(want.RegisteredAt) {
		t.Fatalf("RegisteredAt = %v, want %v", got.RegisteredAt, want.RegisteredAt)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, sampleUser("a_1", "Aa")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "a_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "a_1"); !errors.Is(err, ErrNotFound) {
		t.Fatal("record survived delete")
	}
	if err := s.Delete(ctx, "a_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestListPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 7 {
		id := fmt.Sprintf("user_%d", i)
		if err := s.Put(ctx, sampleUser(id, "User Seven")); err != nil {
			t.Fatal(err)
		}
	}

	total, page, err := s.List(ctx, 2, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 7 {
		t.Fatalf("total = %d, want 7", total)
	}
	if len(page) != 3 {
		t.Fatalf("page size = %d, want 3", len(page))
	}

	// Offset past the end yields an empty page but the correct total.
	total, page, err = s.List(ctx, 10, 3)
	if err != nil {
		t.Fatal(err)
	}
	if total != 7 || len(page) != 0 {
		t.Fatalf("past-end list = (%d, %d items)", total, len(page))
	}
}

func TestIDsSorted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"zeta_1", "alpha_1", "mid_1"} {
		if err := s.Put(ctx, sampleUser(id, "Some One")); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := s.IDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"alpha_1", "mid_1", "zeta_1"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs = %v, want %v", ids, want)
		}
	}
}
