// Package manager owns the ordered list of live SSTables, the manifest
// that enumerates them, and the compaction policy that keeps their
// count bounded.
package manager

import (
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kelsi-vault/skv/internal/sstable"
	"github.com/kelsi-vault/skv/internal/storeerr"
)

// DefaultMaxSSTables is the table count at which CreateSSTable triggers
// an automatic full compaction.
const DefaultMaxSSTables = 10

// Manager serializes SSTable creation, compaction and manifest updates
// behind one reader-writer lock.
type Manager struct {
	mu sync.RWMutex

	dataDir     string
	tables      []*sstable.Table // newest first
	nextID      int64
	maxSSTables int
	log         *zap.SugaredLogger
}

// Open reads the manifest and loads every listed SSTable. A table whose
// data/index pair is missing from disk is excluded with a warning
// rather than failing Open. On-disk sst_* files not referenced by the
// manifest are orphans from a crash between writing a table and
// persisting the manifest; an orphan is removed when its .idx and .dat
// files both load, and is otherwise left on disk.
func Open(dataDir string, maxSSTables int, log *zap.SugaredLogger) (*Manager, error) {
	if maxSSTables <= 0 {
		maxSSTables = DefaultMaxSSTables
	}

	ids, err := loadManifest(dataDir)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		dataDir:     dataDir,
		maxSSTables: maxSSTables,
		log:         log,
	}

	live := make(map[int64]bool, len(ids))
	tables := make([]*sstable.Table, 0, len(ids))
	for _, id := range ids {
		t, err := sstable.Load(dataDir, id)
		if err != nil {
			log.Warnw("excluding sstable missing or corrupt at startup", "file_id", id, "error", err)
			continue
		}
		tables = append(tables, t)
		live[id] = true
		if id >= m.nextID {
			m.nextID = id + 1
		}
	}
	// Manifest lists oldest-first; Manager keeps newest-first internally.
	for i, j := 0, len(tables)-1; i < j; i, j = i+1, j-1 {
		tables[i], tables[j] = tables[j], tables[i]
	}
	m.tables = tables

	if err := m.sweepOrphans(live); err != nil {
		log.Warnw("orphan sweep failed", "error", err)
	}

	return m, nil
}

func (m *Manager) sweepOrphans(live map[int64]bool) error {
	matches, err := filepath.Glob(filepath.Join(m.dataDir, "sst_*.idx"))
	if err != nil {
		return storeerr.IOErr("glob sstable index files", err)
	}
	for _, p := range matches {
		id, ok := fileIDFromIndexName(filepath.Base(p))
		if !ok || live[id] {
			continue
		}
		m.log.Warnw("removing orphan sstable not referenced by manifest", "file_id", id)
		if t, err := sstable.Load(m.dataDir, id); err == nil {
			t.Delete()
		}
	}
	return nil
}

// nextFileID returns a monotonically increasing id, combining wall
// clock milliseconds with a per-manager counter so two tables created
// within the same millisecond still get distinct ids.
func (m *Manager) nextFileID() int64 {
	ts := time.Now().UnixMilli()
	if ts <= m.nextID {
		id := m.nextID
		m.nextID++
		return id
	}
	m.nextID = ts + 1
	return ts
}

// CreateSSTable writes entries as a new immutable SSTable, registers it
// as the newest table, and persists the manifest. If the live table
// count then exceeds maxSSTables, a full compaction runs immediately.
func (m *Manager) CreateSSTable(entries []sstable.Entry) (*sstable.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextFileID()
	t, err := sstable.Create(m.dataDir, id, time.Now().UnixMilli(), entries)
	if err != nil {
		return nil, err
	}

	m.tables = append([]*sstable.Table{t}, m.tables...)
	if err := m.persistManifestLocked(); err != nil {
		return nil, err
	}
	m.log.Infow("created sstable", "file_id", id, "entries", len(entries))

	if len(m.tables) > m.maxSSTables {
		if err := m.compactLocked(); err != nil {
			m.log.Warnw("auto-compaction after create failed", "error", err)
		}
	}

	return t, nil
}

func (m *Manager) persistManifestLocked() error {
	ids := make([]int64, len(m.tables))
	// Manifest is oldest-first; m.tables is newest-first.
	for i, t := range m.tables {
		ids[len(m.tables)-1-i] = t.FileID()
	}
	return writeManifest(m.dataDir, ids)
}

// Get probes tables newest to oldest, returning the first hit. A
// tombstone hit is reported as absent rather than continuing the
// search into older tables.
func (m *Manager) Get(key []byte) (value []byte, found bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.tables {
		val, found, tomb, err := t.Get(key)
		if err != nil {
			return nil, false, err
		}
		if !found {
			continue
		}
		if tomb {
			return nil, false, nil
		}
		return val, true, nil
	}
	return nil, false, nil
}

// GetRange merges per-table ranges, newer tables overwriting older,
// producing a sorted result. Tombstones are included so the engine can
// overlay and then strip them.
func (m *Manager) GetRange(start, end []byte) ([]sstable.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mergedRangeLocked(start, end)
}

// GetAll returns the merged, newest-wins view across every table.
func (m *Manager) GetAll() ([]sstable.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mergedRangeLocked(nil, nil)
}

func (m *Manager) mergedRangeLocked(start, end []byte) ([]sstable.Entry, error) {
	if len(m.tables) == 0 {
		return nil, nil
	}
	mi, err := sstable.NewMergeIterator(m.tables)
	if err != nil {
		return nil, err
	}

	var out []sstable.Entry
	for mi.Valid() {
		key := mi.Key()
		if start != nil && lessBytes(key, start) {
			if err := mi.Next(); err != nil {
				return nil, err
			}
			continue
		}
		if end != nil && !lessBytes(key, end) {
			break
		}
		out = append(out, sstable.Entry{
			Key:       append([]byte(nil), key...),
			Value:     mi.Value(),
			Tombstone: mi.Tombstone(),
		})
		if err := mi.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func lessBytes(a, b []byte) bool {
	return string(a) < string(b)
}

// mergeEntries newest-wins-merges every table in the set, tombstones
// included, with no key-range filtering.
func mergeEntries(tables []*sstable.Table) ([]sstable.Entry, error) {
	mi, err := sstable.NewMergeIterator(tables)
	if err != nil {
		return nil, err
	}
	var entries []sstable.Entry
	for mi.Valid() {
		entries = append(entries, sstable.Entry{
			Key:       append([]byte(nil), mi.Key()...),
			Value:     mi.Value(),
			Tombstone: mi.Tombstone(),
		})
		if err := mi.Next(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Compact merges every live table into a single new table, purging
// tombstones since a full compaction has no older table left where a
// pre-delete value could still be hiding. Old tables are deleted from
// disk only after the new manifest referencing just the merged table
// is durable.
func (m *Manager) Compact() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compactLocked()
}

func (m *Manager) compactLocked() error {
	if len(m.tables) <= 1 {
		return nil
	}

	all, err := m.mergedRangeLocked(nil, nil)
	if err != nil {
		return err
	}

	merged := make([]sstable.Entry, 0, len(all))
	for _, e := range all {
		if e.Tombstone {
			continue
		}
		merged = append(merged, e)
	}

	id := m.nextFileID()
	newTable, err := sstable.Create(m.dataDir, id, time.Now().UnixMilli(), merged)
	if err != nil {
		return err
	}

	old := m.tables
	m.tables = []*sstable.Table{newTable}
	if err := m.persistManifestLocked(); err != nil {
		m.tables = old
		newTable.Delete()
		return err
	}

	for _, t := range old {
		if err := t.Delete(); err != nil {
			m.log.Warnw("failed to remove superseded sstable after compaction", "file_id", t.FileID(), "error", err)
		}
	}
	m.log.Infow("compaction complete", "merged_tables", len(old), "entries", len(merged))
	return nil
}

// Merge reduces the table count to at most targetCount by rewriting the
// oldest tables as a single table, leaving the newest targetCount-1
// tables untouched. Unlike Compact, tombstones are retained in the
// merged table.
func (m *Manager) Merge(targetCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if targetCount <= 0 {
		targetCount = 1
	}
	if len(m.tables) <= targetCount {
		return nil
	}

	// m.tables is newest-first; bucket the oldest tables together so the
	// newest tables are left untouched.
	toMerge := len(m.tables) - targetCount + 1
	startIdx := len(m.tables) - toMerge
	bucket := m.tables[startIdx:]

	merged, err := mergeEntries(bucket)
	if err != nil {
		return err
	}

	id := m.nextFileID()
	newTable, err := sstable.Create(m.dataDir, id, time.Now().UnixMilli(), merged)
	if err != nil {
		return err
	}

	newTables := make([]*sstable.Table, 0, targetCount)
	newTables = append(newTables, m.tables[:startIdx]...)
	newTables = append(newTables, newTable)

	old := m.tables
	m.tables = newTables
	if err := m.persistManifestLocked(); err != nil {
		m.tables = old
		newTable.Delete()
		return err
	}

	for _, t := range bucket {
		if err := t.Delete(); err != nil {
			m.log.Warnw("failed to remove merged sstable", "file_id", t.FileID(), "error", err)
		}
	}
	return nil
}

// Stats reports the live table count, total entries and total bytes.
func (m *Manager) Stats() (count, totalEntries int, totalBytes int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tables {
		totalEntries += t.EntryCount()
		totalBytes += t.DataSize()
	}
	return len(m.tables), totalEntries, totalBytes
}

// Close releases every table's open file handle without deleting
// anything.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if err := t.Close(); err != nil {
			return err
		}
	}
	return nil
}
