// Package memtable implements the in-memory, ordered buffer of recent
// PUTs that sits in front of the SSTable manager. Per the data model, a
// Memtable is populated only by PUT — deletes live in the engine's
// separate deleted-key set, disjoint from the memtable. A Memtable no
// longer owns a WAL of its own: the engine owns one log for its whole
// lifetime and replays it into a fresh memtable on Open.
package memtable

import (
	"errors"
	"sync/atomic"
)

// ErrFrozen is returned by Put/Delete once the memtable has been frozen
// ahead of a flush.
var ErrFrozen = errors.New("memtable: frozen")

// Memtable is an ordered key/value buffer backed by a skip list, plus a
// byte-size estimate surfaced through Stats.
type Memtable struct {
	sl     *SkipList
	size   int64
	frozen int32
}

// New creates an empty memtable. Recovery of prior WAL content is the
// engine's responsibility: it replays the log and calls Put/Delete here
// for each record before serving traffic.
func New() *Memtable {
	return &Memtable{sl: NewSkipList()}
}

// Put inserts or overwrites key with value.
func (mt *Memtable) Put(key, value []byte) error {
	if atomic.LoadInt32(&mt.frozen) == 1 {
		return ErrFrozen
	}
	_, existed := mt.sl.Get(key)
	mt.sl.Put(key, value)
	if !existed {
		atomic.AddInt64(&mt.size, int64(len(key)+len(value)))
	}
	return nil
}

// Delete removes key from the memtable if present, returning whether it
// was. The engine is responsible for recording the corresponding
// tombstone in its deleted-key set.
func (mt *Memtable) Delete(key []byte) bool {
	if atomic.LoadInt32(&mt.frozen) == 1 {
		return false
	}
	if mt.sl.Delete(key) {
		return true
	}
	return false
}

// Get looks up key among live PUTs in the current epoch.
func (mt *Memtable) Get(key []byte) (value []byte, found bool) {
	return mt.sl.Get(key)
}

// Size returns the current byte-size estimate.
func (mt *Memtable) Size() int { return int(atomic.LoadInt64(&mt.size)) }

// EntryCount returns the number of live keys.
func (mt *Memtable) EntryCount() int { return mt.sl.Len() }

// Freeze marks the memtable immutable; subsequent Put/Delete return
// ErrFrozen/false. Reads remain valid. Idempotent.
func (mt *Memtable) Freeze() {
	atomic.StoreInt32(&mt.frozen, 1)
}

// IsFrozen reports whether Freeze has been called.
func (mt *Memtable) IsFrozen() bool { return atomic.LoadInt32(&mt.frozen) == 1 }

// NewIterator returns an ascending-key iterator over every live entry.
func (mt *Memtable) NewIterator() *SLIterator { return mt.sl.NewIterator() }
