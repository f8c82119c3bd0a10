package sstable

import (
	"bytes"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/kelsi-vault/skv/internal/storeerr"
)

// falsePositiveRate is the target false-positive rate for a table's bloom
// filter, sized from its entry count at creation time.
const falsePositiveRate = 0.01

// newBloomFilter sizes a filter for an expected entry count. A minimum of
// 1 avoids a zero-capacity filter for an empty table.
func newBloomFilter(entryCount int) *bloom.BloomFilter {
	n := uint(entryCount)
	if n == 0 {
		n = 1
	}
	return bloom.NewWithEstimates(n, falsePositiveRate)
}

// serializeBloom encodes the filter with its own WriteTo so the bit
// layout and hash seeding stay library-internal rather than reimplemented
// here.
func serializeBloom(f *bloom.BloomFilter) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, storeerr.IOErr("serialize bloom filter", err)
	}
	return buf.Bytes(), nil
}

// deserializeBloom is the inverse of serializeBloom.
func deserializeBloom(data []byte) (*bloom.BloomFilter, error) {
	f := &bloom.BloomFilter{}
	if _, err := f.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, storeerr.CorruptErr("deserialize bloom filter", err)
	}
	return f, nil
}
