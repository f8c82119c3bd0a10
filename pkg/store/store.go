// Package store is the small public facade over internal/engine: the
// durable key-value storage core's front door.
package store

import (
	"errors"
	"fmt"

	"github.com/kelsi-vault/skv/internal/engine"
	"github.com/kelsi-vault/skv/internal/storeerr"
	"github.com/kelsi-vault/skv/internal/telemetry"
)

// ErrNotFound is returned by Get when the key has no live value.
var ErrNotFound = errors.New("store: key not found")

// ErrClosed is returned by any operation on a closed Store.
var ErrClosed = errors.New("store: closed")

// Stats mirrors engine.StoreStats.
type Stats = engine.StoreStats

// Entry is one key/value pair returned from a range scan.
type Entry = engine.RangeEntry

// Store wraps a storage engine instance.
type Store struct {
	e *engine.Engine
}

// Open opens (creating if absent) the store at path with default
// configuration.
func Open(path string) (*Store, error) {
	return OpenConfig(engine.DefaultConfig(path))
}

// OpenConfig opens the store with an explicit Config, e.g. one loaded
// via engine.LoadConfig.
func OpenConfig(cfg engine.Config) (*Store, error) {
	if cfg.DataDirectory == "" {
		return nil, fmt.Errorf("store: data directory cannot be empty")
	}

	logger, err := telemetry.NewLogger(false)
	if err != nil {
		return nil, fmt.Errorf("store: failed to build logger: %w", err)
	}

	e, err := engine.Open(cfg, logger, nil)
	if err != nil {
		return nil, translateErr(err)
	}
	return &Store{e: e}, nil
}

// Close closes the underlying engine and releases the data directory
// lock. Idempotent.
func (s *Store) Close() error {
	if s.e == nil {
		return ErrClosed
	}
	return translateErr(s.e.Close())
}

// Put stores key/value. Returns false if either is absent.
func (s *Store) Put(key, value []byte) (bool, error) {
	if s.e == nil {
		return false, ErrClosed
	}
	ok, err := s.e.Put(key, value)
	return ok, translateErr(err)
}

// Get retrieves the value for key, or ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	if s.e == nil {
		return nil, ErrClosed
	}
	val, found, err := s.e.Read(key)
	if err != nil {
		return nil, translateErr(err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return val, nil
}

// Delete removes key. Not an error if the key never existed.
func (s *Store) Delete(key []byte) (bool, error) {
	if s.e == nil {
		return false, ErrClosed
	}
	ok, err := s.e.Delete(key)
	return ok, translateErr(err)
}

// BatchPut writes every key/value pair as one atomic WAL record.
func (s *Store) BatchPut(keys, values [][]byte) (bool, error) {
	if s.e == nil {
		return false, ErrClosed
	}
	ok, err := s.e.BatchPut(keys, values)
	return ok, translateErr(err)
}

// ReadKeyRange returns every live key K with start <= K < end, sorted.
func (s *Store) ReadKeyRange(start, end []byte) ([]Entry, error) {
	if s.e == nil {
		return nil, ErrClosed
	}
	entries, err := s.e.ReadKeyRange(start, end)
	return entries, translateErr(err)
}

// Compact flushes the memtable and forces a full compaction of the
// SSTable set.
func (s *Store) Compact() error {
	if s.e == nil {
		return ErrClosed
	}
	return translateErr(s.e.Compact())
}

// Stats reports the engine's current counters.
func (s *Store) Stats() (Stats, error) {
	if s.e == nil {
		return Stats{}, ErrClosed
	}
	stats, err := s.e.Stats()
	return stats, translateErr(err)
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storeerr.Closed) {
		return ErrClosed
	}
	return err
}
