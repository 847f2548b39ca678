// Package vfs is the in-memory storage backing the readFile/writeFile
// native-function pair: a quota-tracked table of named byte blobs a
// running script can address by name, optionally persisted to a host
// directory between runs.
package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultQuotaBytes bounds a script's native file table when no
// explicit quota is configured. A script's storage isn't backed by
// physical media the way the natives it's grounded on assumed, so this
// is a conservative default meant to keep one runaway script from
// growing its working set without bound rather than a hardware limit.
const DefaultQuotaBytes = 1 << 20

// validEntryName sanitizes names a script passes to the file natives
// (readFile/writeFile/deleteFile/fileSize). Names route straight into
// filepath.Join against a host directory when a table is persisted, so
// path separators and traversal segments are rejected outright; the
// length cap keeps entries reasonable without imposing an 8.3-style
// short-name convention scripts have no reason to know about.
var validEntryName = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

func isValidEntryName(name string) bool {
	if name == "." || name == ".." || strings.Contains(name, "..") {
		return false
	}
	return validEntryName.MatchString(name)
}

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
)

// FileEntry is one stored blob plus the timestamps a script's fileSize
// and metadata-inspecting natives can observe.
type FileEntry struct {
	Data     []byte
	Created  time.Time
	Modified time.Time
}

// VirtualDisk is the in-memory native file table a running script's
// storage natives act on. The name is inherited from the natives it's
// grounded on; nothing about it assumes a physical disk.
type VirtualDisk struct {
	Mu         sync.RWMutex
	Files      map[string]*FileEntry
	DirtyFiles map[string]bool
	UsedBytes  int
	Dirty      bool
	Quota      int
}

// NewVirtualDisk creates a table bounded by DefaultQuotaBytes.
func NewVirtualDisk() *VirtualDisk {
	return NewVirtualDiskWithQuota(DefaultQuotaBytes)
}

// NewVirtualDiskWithQuota creates a table bounded by an explicit quota,
// for a host that configures it (config.VM.DiskQuotaBytes) rather than
// accepting the default.
func NewVirtualDiskWithQuota(quotaBytes int) *VirtualDisk {
	return &VirtualDisk{
		Files:      make(map[string]*FileEntry),
		DirtyFiles: make(map[string]bool),
		Quota:      quotaBytes,
	}
}

// Write stores data under name, validating the name and enforcing the
// table's quota, and deep-copies the data so later mutation of the
// caller's slice can't reach back into stored state. Overwriting an
// existing entry updates the quota accounting accordingly.
func (vd *VirtualDisk) Write(name string, data []byte) error {
	vd.Mu.Lock()
	defer vd.Mu.Unlock()

	if !isValidEntryName(name) {
		return ErrInvalidFilename
	}

	oldSize := 0
	var entry *FileEntry
	if existing, ok := vd.Files[name]; ok {
		oldSize = len(existing.Data)
		entry = existing
	}

	newSize := len(data)
	if vd.UsedBytes-oldSize+newSize > vd.Quota {
		return ErrQuotaExceeded
	}

	newData := make([]byte, newSize)
	copy(newData, data)

	if entry == nil {
		entry = &FileEntry{Created: time.Now()}
		vd.Files[name] = entry
	}
	entry.Data = newData
	entry.Modified = time.Now()

	vd.DirtyFiles[name] = true
	vd.UsedBytes = vd.UsedBytes - oldSize + newSize
	vd.Dirty = true

	return nil
}

// Read returns the stored bytes for name, or an error if it doesn't
// exist or the name fails validation.
func (vd *VirtualDisk) Read(name string) ([]byte, error) {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()

	if !isValidEntryName(name) {
		return nil, ErrInvalidFilename
	}

	entry, ok := vd.Files[name]
	if !ok {
		return nil, ErrFileNotFound
	}

	return entry.Data, nil
}

// Size returns the byte length of the entry stored under name.
func (vd *VirtualDisk) Size(name string) (int, error) {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()

	if !isValidEntryName(name) {
		return 0, ErrInvalidFilename
	}

	entry, ok := vd.Files[name]
	if !ok {
		return 0, ErrFileNotFound
	}

	return len(entry.Data), nil
}

// Delete removes the entry stored under name.
func (vd *VirtualDisk) Delete(name string) error {
	vd.Mu.Lock()
	defer vd.Mu.Unlock()

	if !isValidEntryName(name) {
		return ErrInvalidFilename
	}

	entry, ok := vd.Files[name]
	if !ok {
		return ErrFileNotFound
	}

	vd.UsedBytes -= len(entry.Data)
	delete(vd.Files, name)

	vd.DirtyFiles[name] = true
	vd.Dirty = true

	return nil
}

// FreeSpace returns the number of bytes left before the table's quota
// is reached.
func (vd *VirtualDisk) FreeSpace() int {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()
	return vd.Quota - vd.UsedBytes
}

// List returns every stored entry name, sorted.
func (vd *VirtualDisk) List() []string {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()

	keys := make([]string, 0, len(vd.Files))
	for k := range vd.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetMeta returns the creation and modification time of an entry.
func (vd *VirtualDisk) GetMeta(name string) (time.Time, time.Time, error) {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()

	if !isValidEntryName(name) {
		return time.Time{}, time.Time{}, ErrInvalidFilename
	}

	entry, ok := vd.Files[name]
	if !ok {
		return time.Time{}, time.Time{}, ErrFileNotFound
	}

	return entry.Created, entry.Modified, nil
}

// LoadFrom populates the table from files in a host directory, used to
// resume a script's storage across separate CLI invocations. Entries
// with names the natives themselves couldn't have produced are skipped
// silently rather than rejected, since the directory may hold unrelated
// files a user placed there directly. Returns nil if the directory
// doesn't exist yet (first run).
func (vd *VirtualDisk) LoadFrom(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	vd.Mu.Lock()
	defer vd.Mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isValidEntryName(name) {
			continue
		}

		fullPath := filepath.Join(path, name)
		raw, err := os.ReadFile(fullPath)
		if err != nil {
			continue
		}

		info, err := os.Stat(fullPath)

		fileEntry := &FileEntry{
			Data:     raw,
			Modified: time.Now(),
			Created:  time.Now(),
		}

		if info != nil && err == nil {
			fileEntry.Modified = info.ModTime()
			fileEntry.Created = info.ModTime()
		}

		vd.Files[name] = fileEntry
		vd.UsedBytes += len(raw)
	}

	return nil
}

// PersistTo writes every entry touched since the last PersistTo call to
// a host directory, creating it if needed, and removes host files
// backing entries deleted since then. Returns the first write error
// encountered, having already applied every other pending change.
func (vd *VirtualDisk) PersistTo(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}

	vd.Mu.Lock()
	snapshot := make(map[string]*FileEntry)
	deletedFiles := make([]string, 0)

	for name := range vd.DirtyFiles {
		if entry, ok := vd.Files[name]; ok {
			newData := make([]byte, len(entry.Data))
			copy(newData, entry.Data)
			snapshot[name] = &FileEntry{
				Data:     newData,
				Created:  entry.Created,
				Modified: entry.Modified,
			}
		} else {
			deletedFiles = append(deletedFiles, name)
		}
		delete(vd.DirtyFiles, name)
	}
	if len(vd.DirtyFiles) == 0 {
		vd.Dirty = false
	}
	vd.Mu.Unlock()

	var firstErr error

	for _, name := range deletedFiles {
		err := os.Remove(filepath.Join(path, name))
		if err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for name, entry := range snapshot {
		if err := os.WriteFile(filepath.Join(path, name), entry.Data, 0644); err != nil {
			vd.Mu.Lock()
			vd.DirtyFiles[name] = true
			vd.Dirty = true
			vd.Mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			_ = os.Chtimes(filepath.Join(path, name), time.Now(), entry.Modified)
		}
	}

	return firstErr
}
