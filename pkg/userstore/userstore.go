// Package userstore persists user records in BadgerDB, keyed by user id.
//
// It is the metadata half of the face database: embeddings live in the
// vector index, everything else about a user lives here. Records are
// msgpack-encoded. The store is safe for concurrent use; badger provides
// snapshot isolation per transaction, so List sees a stable view.
package userstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/skyylabs/facegate/pkg/facegate"
)

// ErrNotFound is returned when a user id is not present.
var ErrNotFound = errors.New("userstore: not found")

const userPrefix = "user:"

// Store is a badger-backed user record store.
type Store struct {
	db *badger.DB
}

// Options configures a Store.
type Options struct {
	// Dir is the badger data directory. Required unless InMemory is set.
	Dir string

	// InMemory runs badger without disk persistence. For tests.
	InMemory bool

	// Logger receives badger's internal log output. Badger is chatty at
	// INFO, so its info output is demoted to debug level.
	Logger zerolog.Logger
}

// Open opens (or creates) the store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("userstore: Options.Dir is required for on-disk mode")
	}
	bo := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bo = bo.WithInMemory(true)
	}
	bo = bo.WithLogger(badgerLogger{opts.Logger})
	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("userstore: open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func userKey(id string) []byte { return []byte(userPrefix + id) }

// Put stores or replaces a user record.
func (s *Store) Put(_ context.Context, u *facegate.User) error {
	val, err := msgpack.Marshal(u)
	if err != nil {
		return fmt.Errorf("userstore: encode %s: %w", u.UserID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(u.UserID), val)
	})
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(_ context.Context, id string) (*facegate.User, error) {
	var u facegate.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &u)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Delete removes the record for id. Returns ErrNotFound if absent.
func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(userKey(id))
	})
}

// List returns a page of user records ordered by user id, plus the total
// record count. The page and count come from one badger transaction, so
// they are consistent with each other.
func (s *Store) List(_ context.Context, offset, limit int) (total int, users []*facegate.User, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(userPrefix)
		idx := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			total++
			if idx < offset || len(users) >= limit {
				idx++
				continue
			}
			idx++
			var u facegate.User
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &u)
			}); err != nil {
				return err
			}
			users = append(users, &u)
		}
		return nil
	})
	return total, users, err
}

// IDs returns all user ids, sorted.
func (s *Store) IDs(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(userPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of stored users.
func (s *Store) Count(ctx context.Context) (int, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// badgerLogger routes badger's log output into zerolog. Errors and
// warnings keep their level; info and debug output go to debug level.
type badgerLogger struct {
	log zerolog.Logger
}

func (b badgerLogger) Errorf(f string, args ...any)   { b.log.Error().Msgf("badger: "+f, args...) }
func (b badgerLogger) Warningf(f string, args ...any) { b.log.Warn().Msgf("badger: "+f, args...) }
func (b badgerLogger) Infof(f string, args ...any)    { b.log.Debug().Msgf("badger: "+f, args...) }
func (b badgerLogger) Debugf(f string, args ...any)   { b.log.Debug().Msgf("badger: "+f, args...) }
