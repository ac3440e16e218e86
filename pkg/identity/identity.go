// Package identity implements the biometric identity service: user
// registration, recognition, lifecycle management, and the degraded-mode
// queue drain.
//
// The service composes the face analyzer, the vector index, the metadata
// store, the health registry, and the audit sink. It owns every user
// record: nothing else writes to the index or the store.
//
// # Ordering
//
// Mutations (register, update, delete, drain) serialize behind a single
// write lock; reads run concurrently. On-device face databases are small
// enough that finer-grained per-user locking would buy nothing.
package identity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/skyylabs/facegate/pkg/audit"
	"github.com/skyylabs/facegate/pkg/face"
	"github.com/skyylabs/facegate/pkg/facegate"
	"github.com/skyylabs/facegate/pkg/health"
	"github.com/skyylabs/facegate/pkg/userstore"
	"github.com/skyylabs/facegate/pkg/vecstore"
)

// Snapshotter is optionally implemented by indexes that persist to disk
// (the HNSW index does; the Flat test index does not).
type Snapshotter interface {
	SaveFile(path string) error
}

// Service is the identity core.
type Service struct {
	mu sync.RWMutex

	analyzer *face.Analyzer
	index    vecstore.Index
	users    *userstore.Store
	registry *health.Registry
	sink     audit.Logger
	log      zerolog.Logger

	threshold    float32
	snapshotPath string
	imagesDir    string
}

// Config for New.
type Config struct {
	Analyzer *face.Analyzer
	Index    vecstore.Index
	Users    *userstore.Store
	Registry *health.Registry
	Sink     audit.Logger
	Logger   zerolog.Logger

	// DistanceThreshold is the default match cutoff. Defaults to
	// facegate.DefaultDistanceThreshold.
	DistanceThreshold float32

	// SnapshotPath, when set and the index supports it, receives an
	// index snapshot after every mutation.
	SnapshotPath string

	// ImagesDir, when set, retains the registration image per user as
	// <user_id>.jpg and removes it on deletion.
	ImagesDir string
}

// New wires the service and registers the queue-drain callback: when the
// vector index transitions Degraded→Healthy, queued registrations drain
// in enqueue order.
func New(cfg Config) (*Service, error) {
	if cfg.Analyzer == nil || cfg.Index == nil || cfg.Users == nil || cfg.Registry == nil {
		return nil, fmt.Errorf("identity: analyzer, index, users, and registry are required")
	}
	if cfg.Sink == nil {
		cfg.Sink = audit.Discard
	}
	if cfg.DistanceThreshold <= 0 {
		cfg.DistanceThreshold = facegate.DefaultDistanceThreshold
	}

	s := &Service{
		analyzer:     cfg.Analyzer,
		index:        cfg.Index,
		users:        cfg.Users,
		registry:     cfg.Registry,
		sink:         cfg.Sink,
		log:          cfg.Logger,
		threshold:    cfg.DistanceThreshold,
		snapshotPath: cfg.SnapshotPath,
		imagesDir:    cfg.ImagesDir,
	}

	cfg.Registry.OnChange(func(ch health.Change) {
		if ch.Component == health.ComponentVectorIndex &&
			ch.From == health.Degraded && ch.To == health.Healthy {
			s.ProcessQueue(context.Background())
		}
	})

	return s, nil
}

// DefaultThreshold returns the configured match cutoff.
func (s *Service) DefaultThreshold() float32 { return s.threshold }

// Reconcile compares the index against the metadata store and removes
// index entries with no metadata row. Run once at startup, before the
// vector index is reported healthy. Metadata rows without a vector cannot
// be repaired (the embedding is gone) and are only reported.
func (s *Service) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	known, err := s.users.IDs(ctx)
	if err != nil {
		return fmt.Errorf("identity: reconcile: %w", err)
	}
	knownSet := make(map[string]bool, len(known))
	for _, id := range known {
		knownSet[id] = true
	}

	orphanVectors := 0
	for _, id := range s.index.IDs() {
		if !knownSet[id] {
			_ = s.index.Delete(id)
			orphanVectors++
			s.log.Warn().Str("user_id", id).Msg("removed orphan vector")
		}
	}

	orphanRecords := 0
	for _, id := range known {
		if !s.index.Contains(id) {
			orphanRecords++
			s.log.Error().Str("user_id", id).Msg("user record has no vector; re-registration required")
		}
	}

	msg := "reconciled"
	if orphanVectors+orphanRecords > 0 {
		msg = fmt.Sprintf("reconciled: %d orphan vectors removed, %d records missing vectors",
			orphanVectors, orphanRecords)
		s.persistLocked()
	}
	s.registry.Update(health.ComponentVectorIndex, health.Healthy, msg, "")
	return nil
}

// persistLocked snapshots the index if it supports persistence. Caller
// holds s.mu for writing.
func (s *Service) persistLocked() {
	if s.snapshotPath == "" {
		return
	}
	sn, ok := s.index.(Snapshotter)
	if !ok {
		return
	}
	if err := sn.SaveFile(s.snapshotPath); err != nil {
		s.log.Error().Err(err).Msg("index snapshot failed")
		s.registry.Update(health.ComponentVectorIndex, health.Degraded,
			"snapshot write failed", err.Error())
	}
}

func (s *Service) imagePath(userID string) string {
	return filepath.Join(s.imagesDir, userID+".jpg")
}

func (s *Service) retainImage(userID string, img []byte) {
	if s.imagesDir == "" {
		return
	}
	if err := os.MkdirAll(s.imagesDir, 0o755); err != nil {
		s.log.Error().Err(err).Msg("create images dir")
		return
	}
	if err := os.WriteFile(s.imagePath(userID), img, 0o600); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("retain registration image")
	}
}

func (s *Service) removeImage(userID string) {
	if s.imagesDir == "" {
		return
	}
	if err := os.Remove(s.imagePath(userID)); err != nil && !os.IsNotExist(err) {
		s.log.Error().Err(err).Str("user_id", userID).Msg("remove registration image")
	}
}
