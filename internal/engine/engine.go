// Package engine is the outward-facing storage API: the orchestrator
// that wires together the WAL, the memtable, the deleted-keys set and
// the SSTable manager behind one reader-writer lock.
package engine

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kelsi-vault/skv/internal/lock"
	"github.com/kelsi-vault/skv/internal/manager"
	"github.com/kelsi-vault/skv/internal/memtable"
	"github.com/kelsi-vault/skv/internal/sstable"
	"github.com/kelsi-vault/skv/internal/storeerr"
	"github.com/kelsi-vault/skv/internal/telemetry"
	"github.com/kelsi-vault/skv/internal/wal"
)

type lifecycle int32

const (
	stateClosed lifecycle = iota
	stateOpening
	stateOpen
	stateClosing
)

const walFileName = "wal.log"

// RangeEntry is one key/value pair in a ReadKeyRange result, in
// ascending key order.
type RangeEntry struct {
	Key   []byte
	Value []byte
}

// StoreStats is the plain struct spec.md's stats() returns.
type StoreStats struct {
	MemtableSize int
	DeletedCount int
	SSTableCount int
	TotalEntries int
	TotalBytes   int64
	WALBytes     int64
}

// Engine is the top-level storage component. A single instance owns
// exclusive access to its data directory for its entire lifetime.
type Engine struct {
	mu sync.RWMutex

	state lifecycle
	cfg   Config

	dirLock *lock.DirLock
	w       *wal.WAL
	mt      *memtable.Memtable
	deleted map[string]struct{}
	mgr     *manager.Manager

	writeCount     int
	lastCheckpoint time.Time

	log     *zap.SugaredLogger
	metrics *telemetry.Metrics
}

// Open acquires the directory lock, opens the manager and the WAL, and
// replays the WAL into a fresh memtable and deleted set. The engine is
// Open and ready to serve traffic when Open returns successfully.
func Open(cfg Config, log *zap.SugaredLogger, metrics *telemetry.Metrics) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.DataDirectory == "" {
		return nil, storeerr.ArgErr("data directory is required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	e := &Engine{state: stateOpening, cfg: cfg, log: log, metrics: metrics}

	if err := os.MkdirAll(cfg.DataDirectory, 0o755); err != nil {
		return nil, storeerr.IOErr("create data directory", err)
	}

	dirLock, err := lock.Acquire(cfg.DataDirectory)
	if err != nil {
		return nil, err
	}
	e.dirLock = dirLock

	mgr, err := manager.Open(cfg.DataDirectory, cfg.MaxSSTablesBeforeCompact, log)
	if err != nil {
		dirLock.Release()
		return nil, err
	}
	e.mgr = mgr

	w, err := wal.Open(filepath.Join(cfg.DataDirectory, walFileName), log)
	if err != nil {
		mgr.Close()
		dirLock.Release()
		return nil, err
	}
	e.w = w

	e.mt = memtable.New()
	e.deleted = make(map[string]struct{})

	replay := func(op wal.Op, key, value []byte, _ int64) error {
		switch op {
		case wal.OpPut:
			e.mt.Put(key, value)
			delete(e.deleted, string(key))
		case wal.OpDelete:
			e.mt.Delete(key)
			e.deleted[string(key)] = struct{}{}
		}
		return nil
	}
	if err := w.Replay(replay); err != nil {
		w.Close()
		mgr.Close()
		dirLock.Release()
		return nil, err
	}

	e.lastCheckpoint = time.Now()
	e.state = stateOpen
	return e, nil
}

// Put implements spec.md's put contract: absent key or value is a
// rejected no-op; otherwise the record is durably appended to the WAL
// before the memtable or deleted set are touched.
func (e *Engine) Put(key, value []byte) (bool, error) {
	if len(key) == 0 || value == nil {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return false, storeerr.ClosedErr("engine is not open")
	}

	ts := time.Now().UnixMilli()
	if _, err := e.w.Append(wal.OpPut, key, value, ts); err != nil {
		return false, err
	}

	e.mt.Put(key, value)
	delete(e.deleted, string(key))
	e.writeCount++
	if e.metrics != nil {
		e.metrics.Writes.Inc()
	}

	if err := e.maybeFlushLocked(); err != nil {
		return true, err
	}
	if err := e.maybeCheckpointLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// Read returns the value for key, consulting the deleted set, then the
// memtable, then the SSTable manager, in that order.
func (e *Engine) Read(key []byte) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.state != stateOpen {
		return nil, false, storeerr.ClosedErr("engine is not open")
	}

	if _, deleted := e.deleted[string(key)]; deleted {
		return nil, false, nil
	}
	if v, found := e.mt.Get(key); found {
		return v, true, nil
	}
	return e.mgr.Get(key)
}

// Delete removes key. It does not require the key to exist: the record
// is still durably appended to the WAL either way, since a replay after
// a crash must know a delete was attempted.
func (e *Engine) Delete(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return false, storeerr.ClosedErr("engine is not open")
	}

	ts := time.Now().UnixMilli()
	if _, err := e.w.Append(wal.OpDelete, key, nil, ts); err != nil {
		return false, err
	}

	e.mt.Delete(key)
	e.deleted[string(key)] = struct{}{}
	e.writeCount++
	if e.metrics != nil {
		e.metrics.Writes.Inc()
	}

	if err := e.maybeFlushLocked(); err != nil {
		return true, err
	}
	if err := e.maybeCheckpointLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// BatchPut puts every key/value pair as a single framed WAL record, so
// replay restores either all of them or none. Mismatched lengths or a
// nil element reject the whole call before anything is appended.
func (e *Engine) BatchPut(keys, values [][]byte) (bool, error) {
	if len(keys) != len(values) {
		return false, storeerr.ArgErr("batch_put: keys and values length mismatch")
	}
	for i := range keys {
		if len(keys[i]) == 0 || values[i] == nil {
			return false, storeerr.ArgErr("batch_put: empty key or nil value")
		}
	}
	if len(keys) == 0 {
		return true, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return false, storeerr.ClosedErr("engine is not open")
	}

	ops := make([]wal.Op, len(keys))
	for i := range ops {
		ops[i] = wal.OpPut
	}

	ts := time.Now().UnixMilli()
	if _, err := e.w.AppendBatch(ops, keys, values, ts); err != nil {
		return false, err
	}

	for i := range keys {
		e.mt.Put(keys[i], values[i])
		delete(e.deleted, string(keys[i]))
	}
	e.writeCount += len(keys)
	if e.metrics != nil {
		e.metrics.Writes.Add(float64(len(keys)))
	}

	if err := e.maybeFlushLocked(); err != nil {
		return true, err
	}
	if err := e.maybeCheckpointLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// ReadKeyRange returns every live key K with start <= K < end, sorted
// ascending: the Manager's merged range overlaid with memtable entries,
// with any key in the deleted set removed.
func (e *Engine) ReadKeyRange(start, end []byte) ([]RangeEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.state != stateOpen {
		return nil, storeerr.ClosedErr("engine is not open")
	}

	raw, err := e.mgr.GetRange(start, end)
	if err != nil {
		return nil, err
	}

	combined := make(map[string][]byte, len(raw))
	for _, entry := range raw {
		if entry.Tombstone {
			continue
		}
		combined[string(entry.Key)] = entry.Value
	}

	it := e.mt.NewIterator()
	for it.Valid() {
		key := it.Key()
		if inHalfOpenRange(key, start, end) {
			combined[string(key)] = it.Value()
		}
		it.Next()
	}

	for dk := range e.deleted {
		if inHalfOpenRange([]byte(dk), start, end) {
			delete(combined, dk)
		}
	}

	out := make([]RangeEntry, 0, len(combined))
	for k, v := range combined {
		out = append(out, RangeEntry{Key: []byte(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out, nil
}

func inHalfOpenRange(key, start, end []byte) bool {
	if start != nil && string(key) < string(start) {
		return false
	}
	if end != nil && string(key) >= string(end) {
		return false
	}
	return true
}

// Compact flushes the memtable into a new SSTable and then delegates to
// the manager's full compaction, both under the engine's exclusive
// section, so no concurrent write observes a half-compacted table set.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return storeerr.ClosedErr("engine is not open")
	}
	if err := e.flushLocked(); err != nil {
		return err
	}
	if err := e.mgr.Compact(); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.Compactions.Inc()
	}
	return nil
}

// Stats reports the spec-mandated counters.
func (e *Engine) Stats() (StoreStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.state != stateOpen {
		return StoreStats{}, storeerr.ClosedErr("engine is not open")
	}

	count, entries, bytes := e.mgr.Stats()
	walBytes, err := e.w.Size()
	if err != nil {
		return StoreStats{}, err
	}

	if e.metrics != nil {
		e.metrics.SSTableCount.Set(float64(count))
		e.metrics.MemtableSize.Set(float64(e.mt.Size()))
	}

	return StoreStats{
		MemtableSize: e.mt.Size(),
		DeletedCount: len(e.deleted),
		SSTableCount: count,
		TotalEntries: entries,
		TotalBytes:   bytes,
		WALBytes:     walBytes,
	}, nil
}

// Close flushes the memtable, closes the WAL and the manager, and
// releases the directory lock. Idempotent: calling Close again is a
// no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateOpen {
		return nil
	}
	e.state = stateClosing

	flushErr := e.flushLocked()

	var walErr, mgrErr error
	if e.w != nil {
		walErr = e.w.Close()
	}
	if e.mgr != nil {
		mgrErr = e.mgr.Close()
	}
	e.dirLock.Release()

	e.state = stateClosed

	if flushErr != nil {
		return flushErr
	}
	if walErr != nil {
		return walErr
	}
	return mgrErr
}

// maybeFlushLocked flushes the memtable once the write-count threshold
// is reached. Caller must hold e.mu for writing.
func (e *Engine) maybeFlushLocked() error {
	if e.writeCount < e.cfg.MemtableFlushThreshold {
		return nil
	}
	return e.flushLocked()
}

// maybeCheckpointLocked checkpoints once the configured interval has
// elapsed since the last one. Caller must hold e.mu for writing.
func (e *Engine) maybeCheckpointLocked() error {
	if time.Since(e.lastCheckpoint) < e.cfg.CheckpointInterval() {
		return nil
	}
	return e.checkpointLocked()
}

// flushLocked snapshots the memtable and deleted set, builds an
// SSTable entry for each — live keys as puts, deleted keys as
// tombstones — and hands it to the manager. On success both
// in-memory structures are cleared; on failure they are left intact
// and the WAL still protects the data.
func (e *Engine) flushLocked() error {
	if e.mt.EntryCount() == 0 && len(e.deleted) == 0 {
		return nil
	}

	entries := make([]sstable.Entry, 0, e.mt.EntryCount()+len(e.deleted))
	it := e.mt.NewIterator()
	for it.Valid() {
		entries = append(entries, sstable.Entry{
			Key:   append([]byte(nil), it.Key()...),
			Value: append([]byte(nil), it.Value()...),
		})
		it.Next()
	}
	for k := range e.deleted {
		entries = append(entries, sstable.Entry{Key: []byte(k), Tombstone: true})
	}

	if _, err := e.mgr.CreateSSTable(entries); err != nil {
		return err
	}

	e.mt = memtable.New()
	e.deleted = make(map[string]struct{})
	e.writeCount = 0
	if e.metrics != nil {
		e.metrics.Flushes.Inc()
	}
	return nil
}

// checkpointLocked flushes, then truncates the WAL. The WAL may only
// be truncated once the flushed SSTable and updated manifest are
// durable, which flushLocked guarantees by the time it returns.
func (e *Engine) checkpointLocked() error {
	if err := e.flushLocked(); err != nil {
		return err
	}
	if err := e.w.Truncate(); err != nil {
		return err
	}
	e.lastCheckpoint = time.Now()
	return nil
}
