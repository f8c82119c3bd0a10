package manager

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kelsi-vault/skv/internal/storeerr"
)

// manifestFileName matches the directory layout's sst_manifest entry.
const manifestFileName = "sst_manifest"

func manifestPath(dataDir string) string {
	return filepath.Join(dataDir, manifestFileName)
}

// loadManifest reads the ordered (oldest-first) list of live SSTable ids.
// A missing manifest (first run) is not an error: it returns an empty
// list.
func loadManifest(dataDir string) ([]int64, error) {
	path := manifestPath(dataDir)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, storeerr.IOErr("read manifest", err)
	}
	if len(raw) < 4 {
		return nil, storeerr.CorruptErr("truncated manifest", nil)
	}
	count := int(binary.BigEndian.Uint32(raw[0:4]))
	if 4+count*8 > len(raw) {
		return nil, storeerr.CorruptErr("manifest entry count inconsistent with file size", nil)
	}
	ids := make([]int64, count)
	for i := 0; i < count; i++ {
		off := 4 + i*8
		ids[i] = int64(binary.BigEndian.Uint64(raw[off : off+8]))
	}
	return ids, nil
}

// writeManifest atomically replaces the manifest with ids (oldest first):
// write to a uniquely-named temp file in the same directory, fsync it,
// then rename over the manifest. A rename on the same filesystem is
// atomic, so a crash leaves either the old or the new manifest intact,
// never a half-written one.
func writeManifest(dataDir string, ids []int64) error {
	buf := make([]byte, 4+len(ids)*8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(ids)))
	for i, id := range ids {
		off := 4 + i*8
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(id))
	}

	tmpPath := filepath.Join(dataDir, manifestFileName+".tmp-"+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return storeerr.IOErr("create temp manifest", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return storeerr.IOErr("write temp manifest", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return storeerr.IOErr("fsync temp manifest", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return storeerr.IOErr("close temp manifest", err)
	}

	if err := os.Rename(tmpPath, manifestPath(dataDir)); err != nil {
		os.Remove(tmpPath)
		return storeerr.IOErr("rename manifest into place", err)
	}
	return nil
}
