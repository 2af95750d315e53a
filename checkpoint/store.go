// Package checkpoint persists per-batch recurrent state to BadgerDB, so a
// caller can save a rollout line and later seed a new run from it via
// state.Restore, surviving a process restart the way an in-memory
// Snapshot alone cannot.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/cahya-wirawan/web-rwkv/state"
)

// Store is a BadgerDB-backed table of state.Checkpoints, keyed by an
// arbitrary run identifier plus batch index.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Options configures Open.
type Options struct {
	// DataDir is the directory Badger stores its files under. Ignored
	// when InMemory is set.
	DataDir string
	// InMemory runs Badger with no on-disk footprint, for tests and
	// scratch runs that don't need durability.
	InMemory bool
}

// Open opens (creating if necessary) a checkpoint store at opts.DataDir,
// or an in-memory one if opts.InMemory is set.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory is a convenience wrapper around Open for tests.
func OpenInMemory() (*Store, error) {
	return Open(Options{InMemory: true})
}

func key(run string, batch int) []byte {
	return []byte(fmt.Sprintf("ckpt\x00%s\x00%d", run, batch))
}

// Save gob-encodes cp and stores it under (run, batch), overwriting
// whatever was previously saved there.
func (s *Store) Save(run string, batch int, cp state.Checkpoint) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("checkpoint: store is closed")
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(run, batch), buf.Bytes())
	})
}

// Load reads back the Checkpoint previously Saved under (run, batch).
func (s *Store) Load(run string, batch int) (state.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return state.Checkpoint{}, fmt.Errorf("checkpoint: store is closed")
	}

	var cp state.Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(run, batch))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("checkpoint: no checkpoint for run %q batch %d", run, batch)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&cp)
		})
	})
	if err != nil {
		return state.Checkpoint{}, err
	}
	return cp, nil
}

// Delete removes a previously saved checkpoint, if any.
func (s *Store) Delete(run string, batch int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("checkpoint: store is closed")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(run, batch))
	})
}

// Close releases the underlying Badger handle. Safe to call more than
// once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
