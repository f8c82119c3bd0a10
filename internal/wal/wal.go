// Package wal implements the write-ahead log: the durable record of every
// mutation applied to the engine, replayed in full on startup.
//
// Record format (big-endian, contiguous):
//
//	timestamp : i64
//	op        : 2-byte length-prefixed UTF-8 string ("PUT", "DELETE", "BATCH")
//	key_len   : i32, key bytes
//	val_len   : i32, value bytes
//
// A BATCH record's "value" is itself a sequence of sub-records (see
// batch.go) so that replaying it restores every key in the batch
// atomically: either the whole record decoded or none of it did.
package wal

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/kelsi-vault/skv/internal/storeerr"
)

// Op identifies the kind of mutation a record represents.
type Op uint8

const (
	OpPut Op = iota
	OpDelete
	OpBatch
)

func (o Op) String() string {
	switch o {
	case OpPut:
		return "PUT"
	case OpDelete:
		return "DELETE"
	case OpBatch:
		return "BATCH"
	default:
		return "UNKNOWN"
	}
}

func opFromString(s string) (Op, bool) {
	switch s {
	case "PUT":
		return OpPut, true
	case "DELETE":
		return OpDelete, true
	case "BATCH":
		return OpBatch, true
	default:
		return 0, false
	}
}

// Handler is invoked once per decoded record during Replay, in file order.
type Handler func(op Op, key, value []byte, timestamp int64) error

// WAL is the append-only log. Appends are totally ordered: callers must
// serialize their own concurrent writers (the Engine does this via its
// single-writer lock), but WAL also guards its file handle with a mutex so
// a stray concurrent call cannot interleave partial records.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	path string
	log  *zap.SugaredLogger
}

// Open creates the log file if absent and positions for appends.
func Open(path string, logger *zap.SugaredLogger) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, storeerr.IOErr("open wal", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WAL{file: f, path: path, log: logger}, nil
}

// Append durably records a single mutation and returns the byte offset at
// which the record began. The write is fsynced before this call returns —
// a caller must not apply the mutation to the memtable unless Append
// returns a nil error.
func (w *WAL) Append(op Op, key, value []byte, timestamp int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	offset, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, storeerr.IOErr("seek wal end", err)
	}

	buf := encodeRecord(op, key, value, timestamp)
	if _, err := w.file.Write(buf); err != nil {
		return 0, storeerr.IOErr("write wal record", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, storeerr.IOErr("fsync wal record", err)
	}
	return offset, nil
}

// AppendBatch durably records a set of puts/deletes as one framed record so
// that replay restores either all of them or none (see batch.go).
func (w *WAL) AppendBatch(ops []Op, keys, values [][]byte, timestamp int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	offset, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, storeerr.IOErr("seek wal end", err)
	}

	payload := encodeBatch(ops, keys, values)
	buf := encodeRecord(OpBatch, nil, payload, timestamp)
	if _, err := w.file.Write(buf); err != nil {
		return 0, storeerr.IOErr("write wal batch record", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, storeerr.IOErr("fsync wal batch record", err)
	}
	return offset, nil
}

func encodeRecord(op Op, key, value []byte, timestamp int64) []byte {
	opStr := op.String()
	size := 8 + 2 + len(opStr) + 4 + len(key) + 4 + len(value)
	buf := make([]byte, size)
	pos := 0

	binary.BigEndian.PutUint64(buf[pos:], uint64(timestamp))
	pos += 8

	binary.BigEndian.PutUint16(buf[pos:], uint16(len(opStr)))
	pos += 2
	copy(buf[pos:], opStr)
	pos += len(opStr)

	binary.BigEndian.PutUint32(buf[pos:], uint32(len(key)))
	pos += 4
	copy(buf[pos:], key)
	pos += len(key)

	binary.BigEndian.PutUint32(buf[pos:], uint32(len(value)))
	pos += 4
	copy(buf[pos:], value)

	return buf
}

// Replay scans the log from offset 0, decoding records until EOF and
// invoking handler for each in file order. A malformed trailing record (a
// partial write after a crash) truncates the replay silently at the last
// fully decoded record; any other decode error is logged and replay skips
// forward one byte at a time to resynchronize, best-effort.
func (w *WAL) Replay(handler Handler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return storeerr.IOErr("seek wal start", err)
	}
	r := bufio.NewReader(w.file)

	var pos int64
	for {
		rec, n, err := decodeRecord(r)
		if err == io.EOF {
			break
		}
		if err == errPartialRecord {
			w.log.Infow("wal replay: truncating at partial trailing record", "offset", pos)
			break
		}
		if err != nil {
			w.log.Warnw("wal replay: skipping corrupt record", "offset", pos, "error", err)
			pos++
			if _, serr := w.file.Seek(pos, io.SeekStart); serr != nil {
				return storeerr.IOErr("seek past corrupt wal record", serr)
			}
			r = bufio.NewReader(w.file)
			continue
		}
		pos += int64(n)

		if rec.op == OpBatch {
			subs, berr := decodeBatch(rec.value)
			if berr != nil {
				w.log.Warnw("wal replay: dropping malformed batch record", "offset", pos, "error", berr)
				continue
			}
			for _, s := range subs {
				if err := handler(s.op, s.key, s.value, rec.timestamp); err != nil {
					return err
				}
			}
			continue
		}

		if err := handler(rec.op, rec.key, rec.value, rec.timestamp); err != nil {
			return err
		}
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return storeerr.IOErr("seek wal end after replay", err)
	}
	return nil
}

type decodedRecord struct {
	op        Op
	key       []byte
	value     []byte
	timestamp int64
}

// errPartialRecord signals a crash-truncated trailing record.
var errPartialRecord = io.ErrUnexpectedEOF

// decodeRecord reads exactly one record from r, returning its encoded byte
// length so the caller can track its replay cursor.
func decodeRecord(r *bufio.Reader) (decodedRecord, int, error) {
	var rec decodedRecord
	n := 0

	var tsBuf [8]byte
	if _, err := io.ReadFull(r, tsBuf[:]); err != nil {
		if err == io.EOF {
			return rec, 0, io.EOF
		}
		return rec, 0, errPartialRecord
	}
	n += 8
	rec.timestamp = int64(binary.BigEndian.Uint64(tsBuf[:]))

	var opLenBuf [2]byte
	if _, err := io.ReadFull(r, opLenBuf[:]); err != nil {
		return rec, 0, errPartialRecord
	}
	n += 2
	opLen := int(binary.BigEndian.Uint16(opLenBuf[:]))

	opBytes := make([]byte, opLen)
	if _, err := io.ReadFull(r, opBytes); err != nil {
		return rec, 0, errPartialRecord
	}
	n += opLen

	op, ok := opFromString(string(opBytes))
	if !ok {
		return rec, n, storeerr.CorruptErr("unknown wal op "+string(opBytes), nil)
	}
	rec.op = op

	var klenBuf [4]byte
	if _, err := io.ReadFull(r, klenBuf[:]); err != nil {
		return rec, 0, errPartialRecord
	}
	n += 4
	klen := int32(binary.BigEndian.Uint32(klenBuf[:]))
	if klen < 0 {
		return rec, n, storeerr.CorruptErr("negative wal key length", nil)
	}

	key := make([]byte, klen)
	if _, err := io.ReadFull(r, key); err != nil {
		return rec, 0, errPartialRecord
	}
	n += int(klen)
	rec.key = key

	var vlenBuf [4]byte
	if _, err := io.ReadFull(r, vlenBuf[:]); err != nil {
		return rec, 0, errPartialRecord
	}
	n += 4
	vlen := int32(binary.BigEndian.Uint32(vlenBuf[:]))
	if vlen < 0 {
		return rec, n, storeerr.CorruptErr("negative wal value length", nil)
	}

	value := make([]byte, vlen)
	if _, err := io.ReadFull(r, value); err != nil {
		return rec, 0, errPartialRecord
	}
	n += int(vlen)
	rec.value = value

	return rec, n, nil
}

// Truncate replaces the log with an empty file. Callers must only call
// this after a successful flush whose effects are already durable
// (manifest + SSTable fsynced).
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return storeerr.IOErr("truncate wal", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return storeerr.IOErr("seek wal start after truncate", err)
	}
	if err := w.file.Sync(); err != nil {
		return storeerr.IOErr("fsync wal after truncate", err)
	}
	return nil
}

// Size returns the current log byte length.
func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := w.file.Stat()
	if err != nil {
		return 0, storeerr.IOErr("stat wal", err)
	}
	return info.Size(), nil
}

// Close flushes and releases the file handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	if syncErr != nil {
		return storeerr.IOErr("fsync wal on close", syncErr)
	}
	if closeErr != nil {
		return storeerr.IOErr("close wal", closeErr)
	}
	return nil
}
