package sstable

import "bytes"

// MergeIterator merges several tables' entries into one ascending-key
// stream, newest-wins: when two tables hold the same key, the entry from
// the table earlier in tables (assumed newest-first) is returned and the
// others are skipped.
type MergeIterator struct {
	iterators []*Iterator
	key       []byte
	value     []byte
	tombstone bool
	err       error
}

// NewMergeIterator builds a merge iterator over tables ordered newest
// first.
func NewMergeIterator(tables []*Table) (*MergeIterator, error) {
	iterators := make([]*Iterator, 0, len(tables))
	for _, t := range tables {
		it := t.NewIterator()
		it.Next()
		if it.Valid() {
			iterators = append(iterators, it)
		}
	}
	mi := &MergeIterator{iterators: iterators}
	if err := mi.advance(); err != nil {
		return nil, err
	}
	return mi, nil
}

func (mi *MergeIterator) Valid() bool     { return mi.key != nil }
func (mi *MergeIterator) Key() []byte     { return mi.key }
func (mi *MergeIterator) Value() []byte   { return mi.value }
func (mi *MergeIterator) Tombstone() bool { return mi.tombstone }

// Next advances to the next distinct key.
func (mi *MergeIterator) Next() error {
	return mi.advance()
}

func (mi *MergeIterator) advance() error {
	mi.key, mi.value, mi.tombstone = nil, nil, false

	live := mi.iterators[:0]
	for _, it := range mi.iterators {
		if it.Valid() {
			live = append(live, it)
		}
	}
	mi.iterators = live
	if len(mi.iterators) == 0 {
		return nil
	}

	var minKey []byte
	for _, it := range mi.iterators {
		if minKey == nil || bytes.Compare(it.Key(), minKey) < 0 {
			minKey = it.Key()
		}
	}

	first := true
	for _, it := range mi.iterators {
		if !bytes.Equal(it.Key(), minKey) {
			continue
		}
		if first {
			value, tombstone, err := it.Value()
			if err != nil {
				mi.err = err
				return err
			}
			mi.key = copyBytes(minKey)
			mi.value = value
			mi.tombstone = tombstone
			first = false
		}
		if err := it.Next(); err != nil {
			return err
		}
	}

	return nil
}
