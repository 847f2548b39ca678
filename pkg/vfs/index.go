package vfs

import (
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// IndexEntry is one file's metadata snapshot, persisted separately from
// the file bytes themselves so a host can inspect disk contents (a -v
// diagnostic dump, a build tool deciding whether to resync) without
// reading every file's data back off disk.
type IndexEntry struct {
	Name     string    `cbor:"name"`
	Size     int       `cbor:"size"`
	Created  time.Time `cbor:"created"`
	Modified time.Time `cbor:"modified"`
}

// SaveIndex snapshots every file's metadata and writes it to path as
// CBOR, a compact self-describing format well suited to this kind of
// small structured side-channel state.
func (vd *VirtualDisk) SaveIndex(path string) error {
	vd.Mu.RLock()
	entries := make([]IndexEntry, 0, len(vd.Files))
	for name, f := range vd.Files {
		entries = append(entries, IndexEntry{
			Name:     name,
			Size:     len(f.Data),
			Created:  f.Created,
			Modified: f.Modified,
		})
	}
	vd.Mu.RUnlock()

	data, err := cbor.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadIndex reads back a directory index written by SaveIndex, for
// diagnostic display only — it does not repopulate file contents, since
// the file bytes live in the regular per-file persistence LoadFrom reads.
func LoadIndex(path string) ([]IndexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []IndexEntry
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
