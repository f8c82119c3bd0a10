package wal

import (
	"encoding/binary"

	"github.com/kelsi-vault/skv/internal/storeerr"
)

// batchSub is one key/value mutation inside a BATCH record.
type batchSub struct {
	op    Op
	key   []byte
	value []byte
}

// encodeBatch packs a sequence of puts/deletes into the payload carried by
// a single OpBatch record: i32 count, then per-entry [op(1) | klen(4) key
// | vlen(4) value].
func encodeBatch(ops []Op, keys, values [][]byte) []byte {
	size := 4
	for i := range ops {
		size += 1 + 4 + len(keys[i]) + 4 + len(values[i])
	}
	buf := make([]byte, size)
	pos := 0

	binary.BigEndian.PutUint32(buf[pos:], uint32(len(ops)))
	pos += 4

	for i := range ops {
		buf[pos] = byte(ops[i])
		pos++
		binary.BigEndian.PutUint32(buf[pos:], uint32(len(keys[i])))
		pos += 4
		copy(buf[pos:], keys[i])
		pos += len(keys[i])
		binary.BigEndian.PutUint32(buf[pos:], uint32(len(values[i])))
		pos += 4
		copy(buf[pos:], values[i])
		pos += len(values[i])
	}
	return buf
}

// decodeBatch is the inverse of encodeBatch. It fails closed: any
// truncation or malformed length returns an error and no subs, so a
// caller never applies a partially-decoded batch.
func decodeBatch(payload []byte) ([]batchSub, error) {
	if len(payload) < 4 {
		return nil, storeerr.CorruptErr("truncated batch record", nil)
	}
	count := int(binary.BigEndian.Uint32(payload[:4]))
	pos := 4

	subs := make([]batchSub, 0, count)
	for i := 0; i < count; i++ {
		if pos+1+4 > len(payload) {
			return nil, storeerr.CorruptErr("truncated batch entry header", nil)
		}
		op := Op(payload[pos])
		pos++
		klen := int(binary.BigEndian.Uint32(payload[pos:]))
		pos += 4
		if klen < 0 || pos+klen+4 > len(payload) {
			return nil, storeerr.CorruptErr("truncated batch key", nil)
		}
		key := payload[pos : pos+klen]
		pos += klen

		vlen := int(binary.BigEndian.Uint32(payload[pos:]))
		pos += 4
		if vlen < 0 || pos+vlen > len(payload) {
			return nil, storeerr.CorruptErr("truncated batch value", nil)
		}
		value := payload[pos : pos+vlen]
		pos += vlen

		subs = append(subs, batchSub{op: op, key: key, value: value})
	}
	return subs, nil
}
