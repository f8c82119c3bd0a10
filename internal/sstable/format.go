package sstable

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kelsi-vault/skv/internal/storeerr"
)

// magic identifies a valid .idx file; it is the first 8 bytes written.
const magic int64 = 0x534b56535354ab01

const (
	entryTypePut       byte = 0
	entryTypeTombstone byte = 1
)

const (
	maxKeySize   = 1 << 20  // 1MB, per spec.md's suggested minimum bound
	maxValueSize = 10 << 20 // 10MB
)

func dataFileName(fileID int64) string { return fmt.Sprintf("sst_%d.dat", fileID) }
func indexFileName(fileID int64) string { return fmt.Sprintf("sst_%d.idx", fileID) }

func dataPath(dir string, fileID int64) string { return filepath.Join(dir, dataFileName(fileID)) }
func indexPath(dir string, fileID int64) string { return filepath.Join(dir, indexFileName(fileID)) }

// fileIDFromIndexName parses the numeric id embedded in a "sst_<id>.idx"
// filename, used to cross-check against the id recorded in the file's
// own header.
func fileIDFromIndexName(name string) (int64, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, "sst_") || !strings.HasSuffix(base, ".idx") {
		return 0, false
	}
	idStr := strings.TrimSuffix(strings.TrimPrefix(base, "sst_"), ".idx")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// indexHeader is the fixed-size prefix of a .idx file.
type indexHeader struct {
	FileID       int64
	CreationTime int64
	EntryCount   int32
	DataSize     int64
}

const indexHeaderSize = 8 + 8 + 8 + 4 + 8 // magic + fileID + creationTime + entryCount + dataSize

func encodeIndexHeader(h indexHeader) []byte {
	buf := make([]byte, indexHeaderSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(magic))
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.FileID))
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.CreationTime))
	binary.BigEndian.PutUint32(buf[24:28], uint32(h.EntryCount))
	binary.BigEndian.PutUint64(buf[28:36], uint64(h.DataSize))
	return buf
}

func decodeIndexHeader(buf []byte) (indexHeader, error) {
	var h indexHeader
	if len(buf) < indexHeaderSize {
		return h, storeerr.CorruptErr("truncated sstable index header", nil)
	}
	if int64(binary.BigEndian.Uint64(buf[0:8])) != magic {
		return h, storeerr.CorruptErr("bad sstable index magic number", nil)
	}
	h.FileID = int64(binary.BigEndian.Uint64(buf[8:16]))
	h.CreationTime = int64(binary.BigEndian.Uint64(buf[16:24]))
	h.EntryCount = int32(binary.BigEndian.Uint32(buf[24:28]))
	h.DataSize = int64(binary.BigEndian.Uint64(buf[28:36]))
	return h, nil
}

// indexEntry maps a key to its byte offset in the .dat file.
type indexEntry struct {
	Key    []byte
	Offset int64
}

func encodeIndexEntry(e indexEntry) []byte {
	buf := make([]byte, 4+len(e.Key)+8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(e.Key)))
	copy(buf[4:], e.Key)
	binary.BigEndian.PutUint64(buf[4+len(e.Key):], uint64(e.Offset))
	return buf
}

// decodeIndexEntry reads one entry starting at buf[pos:], returning the
// entry and the position immediately after it.
func decodeIndexEntry(buf []byte, pos int) (indexEntry, int, error) {
	var e indexEntry
	if pos+4 > len(buf) {
		return e, 0, storeerr.CorruptErr("truncated sstable index entry", nil)
	}
	klen := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	if klen < 0 || klen > maxKeySize || pos+klen+8 > len(buf) {
		return e, 0, storeerr.CorruptErr("truncated sstable index key", nil)
	}
	key := make([]byte, klen)
	copy(key, buf[pos:pos+klen])
	pos += klen
	offset := int64(binary.BigEndian.Uint64(buf[pos : pos+8]))
	pos += 8
	e.Key = key
	e.Offset = offset
	return e, pos, nil
}
