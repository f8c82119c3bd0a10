// Package sstable implements the immutable, sorted on-disk table pair
// (".dat" data file + ".idx" index file) that backs durable reads once a
// memtable has been flushed.
package sstable

import (
	"bytes"
	"encoding/binary"
	"os"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/kelsi-vault/skv/internal/storeerr"
)

// Entry is one key/value (or key/tombstone) pair as seen by callers
// building or reading a table.
type Entry struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

// Table is a loaded, read-only SSTable: its key index and bloom filter
// live in memory; data is read from disk on demand.
type Table struct {
	fileID       int64
	creationTime int64
	dataSize     int64
	index        []indexEntry // sorted ascending by Key
	bloom        *bloom.BloomFilter
	dataFile     *os.File
	dir          string
}

// Create sorts entries by key, writes the .dat and .idx files for fileID
// into dir, fsyncs both, and returns the table opened for reads.
func Create(dir string, fileID int64, creationTime int64, entries []Entry) (*Table, error) {
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].Key, entries[j].Key) < 0 })

	datPath := dataPath(dir, fileID)
	datFile, err := os.OpenFile(datPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, storeerr.IOErr("create sstable data file", err)
	}

	index := make([]indexEntry, 0, len(entries))
	var offset int64
	filter := newBloomFilter(len(entries))

	for _, e := range entries {
		if len(e.Key) > maxKeySize {
			datFile.Close()
			return nil, storeerr.ArgErr("sstable key exceeds maximum size")
		}
		if len(e.Value) > maxValueSize {
			datFile.Close()
			return nil, storeerr.ArgErr("sstable value exceeds maximum size")
		}

		entryType := entryTypePut
		value := e.Value
		if e.Tombstone {
			entryType = entryTypeTombstone
			value = nil
		}

		buf := make([]byte, 1+4+len(e.Key)+4+len(value))
		pos := 0
		buf[pos] = entryType
		pos++
		binary.BigEndian.PutUint32(buf[pos:], uint32(len(e.Key)))
		pos += 4
		copy(buf[pos:], e.Key)
		pos += len(e.Key)
		binary.BigEndian.PutUint32(buf[pos:], uint32(len(value)))
		pos += 4
		copy(buf[pos:], value)

		if _, err := datFile.Write(buf); err != nil {
			datFile.Close()
			return nil, storeerr.IOErr("write sstable entry", err)
		}

		index = append(index, indexEntry{Key: copyBytes(e.Key), Offset: offset})
		filter.Add(e.Key)
		offset += int64(len(buf))
	}

	if err := datFile.Sync(); err != nil {
		datFile.Close()
		return nil, storeerr.IOErr("fsync sstable data file", err)
	}

	if err := writeIndexFile(dir, fileID, creationTime, offset, index, filter); err != nil {
		datFile.Close()
		return nil, err
	}

	return &Table{
		fileID:       fileID,
		creationTime: creationTime,
		dataSize:     offset,
		index:        index,
		bloom:        filter,
		dataFile:     datFile,
		dir:          dir,
	}, nil
}

func writeIndexFile(dir string, fileID, creationTime, dataSize int64, index []indexEntry, filter *bloom.BloomFilter) error {
	idxPath := indexPath(dir, fileID)
	idxFile, err := os.OpenFile(idxPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return storeerr.IOErr("create sstable index file", err)
	}
	defer idxFile.Close()

	header := encodeIndexHeader(indexHeader{
		FileID:       fileID,
		CreationTime: creationTime,
		EntryCount:   int32(len(index)),
		DataSize:     dataSize,
	})
	if _, err := idxFile.Write(header); err != nil {
		return storeerr.IOErr("write sstable index header", err)
	}
	for _, e := range index {
		if _, err := idxFile.Write(encodeIndexEntry(e)); err != nil {
			return storeerr.IOErr("write sstable index entry", err)
		}
	}

	bloomBytes, err := serializeBloom(filter)
	if err != nil {
		return err
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(bloomBytes)))
	if _, err := idxFile.Write(lenBuf); err != nil {
		return storeerr.IOErr("write sstable bloom length", err)
	}
	if _, err := idxFile.Write(bloomBytes); err != nil {
		return storeerr.IOErr("write sstable bloom filter", err)
	}

	if err := idxFile.Sync(); err != nil {
		return storeerr.IOErr("fsync sstable index file", err)
	}
	return nil
}

// Load opens an existing table, reading its .idx file fully into memory
// and verifying the file-id embedded in its filename matches the id
// recorded in the header.
func Load(dir string, fileID int64) (*Table, error) {
	idxPath := indexPath(dir, fileID)
	raw, err := os.ReadFile(idxPath)
	if err != nil {
		return nil, storeerr.IOErr("read sstable index file", err)
	}

	nameID, ok := fileIDFromIndexName(idxPath)
	if !ok {
		return nil, storeerr.CorruptErr("malformed sstable index filename "+idxPath, nil)
	}

	header, err := decodeIndexHeader(raw)
	if err != nil {
		return nil, err
	}
	if header.FileID != nameID {
		return nil, storeerr.CorruptErr("sstable index file-id does not match filename", nil)
	}

	pos := indexHeaderSize
	index := make([]indexEntry, 0, header.EntryCount)
	for i := int32(0); i < header.EntryCount; i++ {
		e, next, err := decodeIndexEntry(raw, pos)
		if err != nil {
			return nil, err
		}
		index = append(index, e)
		pos = next
	}

	if pos+4 > len(raw) {
		return nil, storeerr.CorruptErr("truncated sstable bloom length", nil)
	}
	bloomLen := int(binary.BigEndian.Uint32(raw[pos : pos+4]))
	pos += 4
	if pos+bloomLen > len(raw) {
		return nil, storeerr.CorruptErr("truncated sstable bloom filter", nil)
	}
	filter, err := deserializeBloom(raw[pos : pos+bloomLen])
	if err != nil {
		return nil, err
	}

	datFile, err := os.Open(dataPath(dir, fileID))
	if err != nil {
		return nil, storeerr.IOErr("open sstable data file", err)
	}

	return &Table{
		fileID:       header.FileID,
		creationTime: header.CreationTime,
		dataSize:     header.DataSize,
		index:        index,
		bloom:        filter,
		dataFile:     datFile,
		dir:          dir,
	}, nil
}

func (t *Table) FileID() int64       { return t.fileID }
func (t *Table) CreationTime() int64 { return t.creationTime }
func (t *Table) DataSize() int64     { return t.dataSize }
func (t *Table) EntryCount() int     { return len(t.index) }

func (t *Table) search(key []byte) int {
	return sort.Search(len(t.index), func(i int) bool { return bytes.Compare(t.index[i].Key, key) >= 0 })
}

// Contains probes the key index (accelerated by the bloom filter) without
// touching the data file.
func (t *Table) Contains(key []byte) bool {
	if !t.bloom.Test(key) {
		return false
	}
	i := t.search(key)
	return i < len(t.index) && bytes.Equal(t.index[i].Key, key)
}

// Get returns the value for key. found is true for both live entries and
// tombstones; callers must check Tombstone before treating an absent
// value as "key not in this table".
func (t *Table) Get(key []byte) (value []byte, found bool, tombstone bool, err error) {
	if !t.bloom.Test(key) {
		return nil, false, false, nil
	}
	i := t.search(key)
	if i >= len(t.index) || !bytes.Equal(t.index[i].Key, key) {
		return nil, false, false, nil
	}
	return t.readEntry(t.index[i].Offset)
}

func (t *Table) readEntry(offset int64) (value []byte, found bool, tombstone bool, err error) {
	var typeBuf [1]byte
	if _, err := t.dataFile.ReadAt(typeBuf[:], offset); err != nil {
		return nil, false, false, storeerr.IOErr("read sstable entry type", err)
	}
	var klenBuf [4]byte
	if _, err := t.dataFile.ReadAt(klenBuf[:], offset+1); err != nil {
		return nil, false, false, storeerr.IOErr("read sstable entry key length", err)
	}
	klen := int64(binary.BigEndian.Uint32(klenBuf[:]))

	var vlenBuf [4]byte
	if _, err := t.dataFile.ReadAt(vlenBuf[:], offset+1+4+klen); err != nil {
		return nil, false, false, storeerr.IOErr("read sstable entry value length", err)
	}
	vlen := int64(binary.BigEndian.Uint32(vlenBuf[:]))
	if vlen == 0 {
		isTomb := typeBuf[0] == entryTypeTombstone
		return nil, true, isTomb, nil
	}

	val := make([]byte, vlen)
	if _, err := t.dataFile.ReadAt(val, offset+1+4+klen+4); err != nil {
		return nil, false, false, storeerr.IOErr("read sstable entry value", err)
	}
	return val, true, false, nil
}

// GetRange returns every entry (including tombstones) with start ≤ key <
// end, ordered ascending. A nil end means "no upper bound".
func (t *Table) GetRange(start, end []byte) ([]Entry, error) {
	var out []Entry
	from := sort.Search(len(t.index), func(i int) bool { return bytes.Compare(t.index[i].Key, start) >= 0 })
	for i := from; i < len(t.index); i++ {
		k := t.index[i].Key
		if end != nil && bytes.Compare(k, end) >= 0 {
			break
		}
		value, _, tombstone, err := t.readEntry(t.index[i].Offset)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Key: copyBytes(k), Value: value, Tombstone: tombstone})
	}
	return out, nil
}

// GetAll returns every entry in key order.
func (t *Table) GetAll() ([]Entry, error) {
	return t.GetRange(nil, nil)
}

// Delete removes both files from disk. Callers must ensure no concurrent
// readers remain and that a superseding manifest is already durable.
func (t *Table) Delete() error {
	if err := t.Close(); err != nil {
		return err
	}
	if err := os.Remove(dataPath(t.dir, t.fileID)); err != nil && !os.IsNotExist(err) {
		return storeerr.IOErr("remove sstable data file", err)
	}
	if err := os.Remove(indexPath(t.dir, t.fileID)); err != nil && !os.IsNotExist(err) {
		return storeerr.IOErr("remove sstable index file", err)
	}
	return nil
}

// Close releases the open data file handle without deleting anything.
func (t *Table) Close() error {
	if t.dataFile == nil {
		return nil
	}
	err := t.dataFile.Close()
	t.dataFile = nil
	if err != nil {
		return storeerr.IOErr("close sstable data file", err)
	}
	return nil
}

// Iterator walks a table's entries in ascending key order.
type Iterator struct {
	t   *Table
	pos int
}

func (t *Table) NewIterator() *Iterator { return &Iterator{t: t, pos: -1} }

func (it *Iterator) Valid() bool { return it.pos >= 0 && it.pos < len(it.t.index) }

// Next advances the iterator by one entry; check Valid() afterwards.
// The returned error is always nil.
func (it *Iterator) Next() error {
	it.pos++
	return nil
}

func (it *Iterator) Key() []byte { return it.t.index[it.pos].Key }

// Value returns the current entry's value and tombstone flag.
func (it *Iterator) Value() ([]byte, bool, error) {
	value, _, tombstone, err := it.t.readEntry(it.t.index[it.pos].Offset)
	return value, tombstone, err
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
