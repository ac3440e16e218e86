package vecstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Snapshot persistence for the HNSW index.
//
// Only ids and vectors are written; the graph is rebuilt on load. Face
// databases are small enough (thousands of vectors) that a rebuild takes
// well under a second, and rebuilding sidesteps every cross-version graph
// compatibility concern.

var snapshotMagic = [4]byte{'F', 'G', 'V', 'X'}

const snapshotVersion uint32 = 1

// WriteSnapshot serializes all vectors in the index to w.
//
// Layout (little-endian):
//
//	[4B magic "FGVX"] [4B version] [4B dim] [4B count]
//	count × { [4B idLen] [idLen bytes id] [dim × 4B float32] }
func (h *HNSW) WriteSnapshot(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	if _, err := bw.Write(snapshotMagic[:]); err != nil {
		return fmt.Errorf("vecstore: write magic: %w", err)
	}
	for _, v := range []uint32{snapshotVersion, uint32(h.cfg.Dim), uint32(h.live)} {
		if err := binary.Write(bw, le, v); err != nil {
			return fmt.Errorf("vecstore: write header: %w", err)
		}
	}

	for _, nd := range h.slots {
		if nd == nil {
			continue
		}
		if err := binary.Write(bw, le, uint32(len(nd.id))); err != nil {
			return err
		}
		if _, err := bw.WriteString(nd.id); err != nil {
			return err
		}
		if err := binary.Write(bw, le, nd.vec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadSnapshot builds a fresh HNSW from a snapshot written by
// WriteSnapshot, using cfg for graph parameters. cfg.Dim must match the
// snapshot dimension.
func ReadSnapshot(r io.Reader, cfg HNSWConfig) (*HNSW, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("vecstore: read magic: %w", err)
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("vecstore: bad snapshot magic %q", magic)
	}

	var version, dim, count uint32
	for _, p := range []*uint32{&version, &dim, &count} {
		if err := binary.Read(br, le, p); err != nil {
			return nil, fmt.Errorf("vecstore: read header: %w", err)
		}
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("vecstore: unsupported snapshot version %d", version)
	}
	if cfg.Dim == 0 {
		cfg.Dim = int(dim)
	}
	if cfg.Dim != int(dim) {
		return nil, fmt.Errorf("%w: snapshot dim %d, config dim %d", ErrDimension, dim, cfg.Dim)
	}

	h := NewHNSW(cfg)
	for i := uint32(0); i < count; i++ {
		var idLen uint32
		if err := binary.Read(br, le, &idLen); err != nil {
			return nil, fmt.Errorf("vecstore: read entry %d: %w", i, err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(br, idBytes); err != nil {
			return nil, fmt.Errorf("vecstore: read entry %d id: %w", i, err)
		}
		vec := make([]float32, dim)
		if err := binary.Read(br, le, vec); err != nil {
			return nil, fmt.Errorf("vecstore: read entry %d vector: %w", i, err)
		}
		if err := h.Upsert(string(idBytes), vec); err != nil {
			return nil, fmt.Errorf("vecstore: rebuild entry %q: %w", idBytes, err)
		}
	}
	return h, nil
}

// SaveFile atomically writes the snapshot to path: the data goes to a
// temp file in the same directory first, then replaces path by rename.
func (h *HNSW) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := h.WriteSnapshot(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads a snapshot from path. A missing file yields an empty
// index, since first start has nothing to load.
func LoadFile(path string, cfg HNSWConfig) (*HNSW, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewHNSW(cfg), nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadSnapshot(f, cfg)
}
