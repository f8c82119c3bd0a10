package sstable

import (
	"os"
	"testing"
)

func TestCreateAndGet(t *testing.T) {
	tmpDir := t.TempDir()

	entries := []Entry{
		{Key: []byte("key3"), Value: []byte("value3")},
		{Key: []byte("key1"), Value: []byte("value1")},
		{Key: []byte("key2"), Value: []byte("value2")},
		{Key: []byte("key5"), Value: []byte("value5")},
		{Key: []byte("key4"), Value: []byte("value4")},
	}

	table, err := Create(tmpDir, 1, 1000, entries)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	for _, e := range entries {
		val, found, tomb, err := table.Get(e.Key)
		if err != nil {
			t.Fatalf("Get %s: %v", e.Key, err)
		}
		if !found {
			t.Errorf("key %s not found", e.Key)
			continue
		}
		if tomb {
			t.Errorf("key %s should not be a tombstone", e.Key)
		}
		if string(val) != string(e.Value) {
			t.Errorf("key %s: expected %s, got %s", e.Key, e.Value, val)
		}
	}

	_, found, _, err := table.Get([]byte("nonexistent"))
	if err != nil {
		t.Fatalf("Get nonexistent: %v", err)
	}
	if found {
		t.Error("nonexistent key should not be found")
	}
}

func TestCreateAndReload(t *testing.T) {
	tmpDir := t.TempDir()

	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}
	table, err := Create(tmpDir, 42, 5000, entries)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	table.Close()

	reloaded, err := Load(tmpDir, 42)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer reloaded.Close()

	if reloaded.FileID() != 42 {
		t.Errorf("expected file id 42, got %d", reloaded.FileID())
	}
	if reloaded.EntryCount() != 2 {
		t.Errorf("expected 2 entries, got %d", reloaded.EntryCount())
	}

	val, found, tomb, err := reloaded.Get([]byte("a"))
	if err != nil || !found || tomb || string(val) != "1" {
		t.Errorf("unexpected reload read: val=%s found=%v tomb=%v err=%v", val, found, tomb, err)
	}
}

func TestTombstoneEntry(t *testing.T) {
	tmpDir := t.TempDir()

	entries := []Entry{
		{Key: []byte("deleted"), Tombstone: true},
		{Key: []byte("live"), Value: []byte("v")},
	}
	table, err := Create(tmpDir, 7, 1, entries)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	val, found, tomb, err := table.Get([]byte("deleted"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("a tombstone entry must still report found=true")
	}
	if !tomb {
		t.Error("expected Tombstone=true")
	}
	if val != nil {
		t.Errorf("expected nil value for tombstone, got %s", val)
	}
}

func TestGetRange(t *testing.T) {
	tmpDir := t.TempDir()

	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
		{Key: []byte("d"), Value: []byte("4")},
	}
	table, err := Create(tmpDir, 1, 1, entries)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	got, err := table.GetRange([]byte("b"), []byte("d"))
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(got) != 2 || string(got[0].Key) != "b" || string(got[1].Key) != "c" {
		t.Errorf("expected [b c], got %v", got)
	}
}

func TestGetAllOrder(t *testing.T) {
	tmpDir := t.TempDir()

	entries := []Entry{
		{Key: []byte("key3"), Value: []byte("v")},
		{Key: []byte("key1"), Value: []byte("v")},
		{Key: []byte("key5"), Value: []byte("v")},
		{Key: []byte("key2"), Value: []byte("v")},
		{Key: []byte("key4"), Value: []byte("v")},
	}
	table, err := Create(tmpDir, 1, 1, entries)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	all, err := table.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	want := []string{"key1", "key2", "key3", "key4", "key5"}
	if len(all) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(all))
	}
	for i, e := range all {
		if string(e.Key) != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], e.Key)
		}
	}
}

func TestContains(t *testing.T) {
	tmpDir := t.TempDir()
	entries := []Entry{{Key: []byte("present"), Value: []byte("v")}}
	table, err := Create(tmpDir, 1, 1, entries)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	if !table.Contains([]byte("present")) {
		t.Error("expected Contains(present) = true")
	}
	if table.Contains([]byte("absent")) {
		t.Error("expected Contains(absent) = false")
	}
}

func TestDeleteRemovesFiles(t *testing.T) {
	tmpDir := t.TempDir()
	entries := []Entry{{Key: []byte("k"), Value: []byte("v")}}
	table, err := Create(tmpDir, 9, 1, entries)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := table.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := Load(tmpDir, 9); err == nil {
		t.Error("expected Load to fail after Delete")
	}
}

func TestLoadRejectsFilenameIDMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	entries := []Entry{{Key: []byte("k"), Value: []byte("v")}}
	table, err := Create(tmpDir, 1, 1, entries)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	table.Close()

	// Simulate an id mismatch by renaming the index file to another id
	// while its header still claims id 1.
	if err := renameWithinDir(tmpDir, "sst_1.idx", "sst_2.idx"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := renameWithinDir(tmpDir, "sst_1.dat", "sst_2.dat"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if _, err := Load(tmpDir, 2); err == nil {
		t.Error("expected Load to reject a file-id/filename mismatch")
	}
}

func TestMergeIteratorNewestWins(t *testing.T) {
	tmpDir := t.TempDir()

	older, err := Create(tmpDir, 1, 1, []Entry{
		{Key: []byte("k"), Value: []byte("old")},
		{Key: []byte("only-old"), Value: []byte("x")},
	})
	if err != nil {
		t.Fatalf("Create older: %v", err)
	}
	defer older.Close()

	newer, err := Create(tmpDir, 2, 2, []Entry{
		{Key: []byte("k"), Value: []byte("new")},
	})
	if err != nil {
		t.Fatalf("Create newer: %v", err)
	}
	defer newer.Close()

	mi, err := NewMergeIterator([]*Table{newer, older})
	if err != nil {
		t.Fatalf("NewMergeIterator: %v", err)
	}

	got := map[string]string{}
	for mi.Valid() {
		got[string(mi.Key())] = string(mi.Value())
		if err := mi.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}

	if got["k"] != "new" {
		t.Errorf("expected newest-wins value 'new', got %q", got["k"])
	}
	if got["only-old"] != "x" {
		t.Errorf("expected only-old to survive merge, got %q", got["only-old"])
	}
}

func renameWithinDir(dir, from, to string) error {
	return os.Rename(dir+"/"+from, dir+"/"+to)
}
