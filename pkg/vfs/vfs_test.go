package vfs

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestVirtualDisk_Write(t *testing.T) {
	tests := []struct {
		name         string
		entryName    string
		data         []byte
		initialUsed  int
		expectError  error
		expectedUsed int
	}{
		{"valid write", "state.dat", []byte{1, 2, 3}, 0, nil, 3},
		{"name with disallowed characters", "state!.dat", []byte{1}, 0, ErrInvalidFilename, 0},
		{"path traversal is rejected", "../passwd", []byte{1}, 0, ErrInvalidFilename, 0},
		{"bare double-dot is rejected", "..", []byte{1}, 0, ErrInvalidFilename, 0},
		{"name over the length cap is rejected", strings.Repeat("a", 65), []byte{1}, 0, ErrInvalidFilename, 0},
		{"quota exceeded", "big.bin", make([]byte, DefaultQuotaBytes+1), 0, ErrQuotaExceeded, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vd := NewVirtualDisk()
			vd.UsedBytes = tt.initialUsed
			err := vd.Write(tt.entryName, tt.data)

			if err != tt.expectError {
				t.Fatalf("Write() error = %v, want %v", err, tt.expectError)
			}
			if tt.expectError != nil {
				return
			}
			if vd.UsedBytes != tt.expectedUsed {
				t.Errorf("UsedBytes = %d, want %d", vd.UsedBytes, tt.expectedUsed)
			}
			stored, ok := vd.Files[tt.entryName]
			if !ok {
				t.Fatalf("entry %q not found after Write", tt.entryName)
			}
			if !reflect.DeepEqual(stored.Data, tt.data) {
				t.Errorf("stored data = %v, want %v", stored.Data, tt.data)
			}
			if stored.Created.IsZero() || stored.Modified.IsZero() {
				t.Error("Created/Modified timestamps were not set")
			}
		})
	}
}

func TestVirtualDisk_WriteDeepCopiesData(t *testing.T) {
	vd := NewVirtualDisk()
	data := []byte{1, 2, 3}
	if err := vd.Write("mutable.dat", data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data[0] = 99

	got, err := vd.Read("mutable.dat")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0] == 99 {
		t.Error("Write did not deep-copy: mutating the caller's slice changed stored data")
	}
}

func TestVirtualDisk_Read(t *testing.T) {
	vd := NewVirtualDisk()
	data := []byte{10, 20, 30}
	if err := vd.Write("state.dat", data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tests := []struct {
		name      string
		entryName string
		wantErr   error
		wantData  []byte
	}{
		{"existing entry", "state.dat", nil, data},
		{"missing entry", "missing.dat", ErrFileNotFound, nil},
		{"invalid name", "../passwd", ErrInvalidFilename, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vd.Read(tt.entryName)
			if err != tt.wantErr {
				t.Fatalf("Read() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && !reflect.DeepEqual(got, tt.wantData) {
				t.Errorf("Read() = %v, want %v", got, tt.wantData)
			}
		})
	}
}

func TestVirtualDisk_Size(t *testing.T) {
	vd := NewVirtualDisk()
	if err := vd.Write("state.dat", []byte{10, 20, 30}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tests := []struct {
		name      string
		entryName string
		wantErr   error
		wantSize  int
	}{
		{"existing entry", "state.dat", nil, 3},
		{"missing entry", "missing.dat", ErrFileNotFound, 0},
		{"invalid name", "../passwd", ErrInvalidFilename, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := vd.Size(tt.entryName)
			if err != tt.wantErr {
				t.Fatalf("Size() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && size != tt.wantSize {
				t.Errorf("Size() = %d, want %d", size, tt.wantSize)
			}
		})
	}
}

func TestVirtualDisk_OverwriteUpdatesUsageAndTimestamps(t *testing.T) {
	vd := NewVirtualDisk()
	name := "counter.dat"

	if err := vd.Write(name, []byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("initial Write: %v", err)
	}
	if vd.UsedBytes != 5 {
		t.Fatalf("UsedBytes after initial write = %d, want 5", vd.UsedBytes)
	}
	created := vd.Files[name].Created

	time.Sleep(time.Millisecond)
	if err := vd.Write(name, []byte{1, 2, 3, 4, 5, 6, 7}); err != nil {
		t.Fatalf("larger overwrite: %v", err)
	}
	if vd.UsedBytes != 7 {
		t.Errorf("UsedBytes after larger overwrite = %d, want 7", vd.UsedBytes)
	}
	entry := vd.Files[name]
	if !entry.Created.Equal(created) {
		t.Error("Created should not change across an overwrite")
	}
	if !entry.Modified.After(entry.Created) {
		t.Error("Modified should move forward after an overwrite")
	}

	if err := vd.Write(name, []byte{1, 2}); err != nil {
		t.Fatalf("smaller overwrite: %v", err)
	}
	if vd.UsedBytes != 2 {
		t.Errorf("UsedBytes after smaller overwrite = %d, want 2", vd.UsedBytes)
	}
}

func TestVirtualDisk_QuotaIsEnforcedAtTheBoundary(t *testing.T) {
	vd := NewVirtualDiskWithQuota(10)

	if err := vd.Write("a.dat", make([]byte, 9)); err != nil {
		t.Fatalf("Write under quota: %v", err)
	}
	if err := vd.Write("b.dat", []byte{1, 2}); err != ErrQuotaExceeded {
		t.Fatalf("Write over quota returned %v, want ErrQuotaExceeded", err)
	}
	if err := vd.Write("b.dat", []byte{1}); err != nil {
		t.Fatalf("Write exactly at quota: %v", err)
	}
	if vd.UsedBytes != 10 {
		t.Errorf("UsedBytes = %d, want 10", vd.UsedBytes)
	}
	if vd.FreeSpace() != 0 {
		t.Errorf("FreeSpace() = %d, want 0", vd.FreeSpace())
	}
}

func TestVirtualDisk_Delete(t *testing.T) {
	vd := NewVirtualDisk()
	vd.Write("a.dat", []byte{1})
	vd.Write("b.dat", []byte{1, 2})

	if err := vd.Delete("a.dat"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := vd.Files["a.dat"]; ok {
		t.Error("a.dat still present after Delete")
	}
	if vd.UsedBytes != 2 {
		t.Errorf("UsedBytes after delete = %d, want 2 (b.dat only)", vd.UsedBytes)
	}
	if err := vd.Delete("missing.dat"); err != ErrFileNotFound {
		t.Errorf("Delete of a missing entry = %v, want ErrFileNotFound", err)
	}
}

func TestVirtualDisk_ListIsSorted(t *testing.T) {
	vd := NewVirtualDisk()
	vd.Write("c.dat", []byte{1})
	vd.Write("a.dat", []byte{1})
	vd.Write("b.dat", []byte{1})

	got := vd.List()
	want := []string{"a.dat", "b.dat", "c.dat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}

	vd.Delete("b.dat")
	got = vd.List()
	want = []string{"a.dat", "c.dat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List() after delete = %v, want %v", got, want)
	}
}

func TestVirtualDisk_GetMeta(t *testing.T) {
	vd := NewVirtualDisk()
	vd.Write("state.dat", []byte{1, 2, 3})

	created, modified, err := vd.GetMeta("state.dat")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if created.IsZero() || modified.IsZero() {
		t.Error("GetMeta returned zero timestamps for an existing entry")
	}
	if _, _, err := vd.GetMeta("missing.dat"); err != ErrFileNotFound {
		t.Errorf("GetMeta of a missing entry = %v, want ErrFileNotFound", err)
	}
}

func TestVirtualDisk_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	vd := NewVirtualDisk()

	vd.Write("a.dat", []byte{'x'})
	if !vd.DirtyFiles["a.dat"] || !vd.Dirty {
		t.Fatal("a.dat should be dirty right after Write")
	}
	vd.Write("b.dat", []byte{'y'})

	if err := vd.PersistTo(dir); err != nil {
		t.Fatalf("PersistTo: %v", err)
	}
	if len(vd.DirtyFiles) != 0 || vd.Dirty {
		t.Error("dirty tracking should clear after a successful PersistTo")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.dat")); err != nil {
		t.Errorf("a.dat not persisted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.dat")); err != nil {
		t.Errorf("b.dat not persisted: %v", err)
	}

	vd.Delete("b.dat")
	if err := vd.PersistTo(dir); err != nil {
		t.Fatalf("second PersistTo: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.dat")); !os.IsNotExist(err) {
		t.Error("b.dat should have been removed from the host directory")
	}

	fresh := NewVirtualDisk()
	if err := fresh.LoadFrom(dir); err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if _, ok := fresh.Files["a.dat"]; !ok {
		t.Error("LoadFrom did not repopulate a.dat")
	}
	if fresh.UsedBytes != 1 {
		t.Errorf("UsedBytes after LoadFrom = %d, want 1", fresh.UsedBytes)
	}
}

func TestVirtualDisk_LoadFromMissingDirectoryIsNotAnError(t *testing.T) {
	vd := NewVirtualDisk()
	if err := vd.LoadFrom(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Errorf("LoadFrom of a missing directory = %v, want nil", err)
	}
}

func TestVirtualDisk_LoadFromSkipsInvalidHostFilenames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "not valid!.dat"), []byte{1}, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ok.dat"), []byte{1, 2}, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	vd := NewVirtualDisk()
	if err := vd.LoadFrom(dir); err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if _, ok := vd.Files["not valid!.dat"]; ok {
		t.Error("LoadFrom should skip a host file whose name fails validation")
	}
	if _, ok := vd.Files["ok.dat"]; !ok {
		t.Error("LoadFrom should still pick up a validly named host file")
	}
}

func TestNewVirtualDiskWithQuota(t *testing.T) {
	vd := NewVirtualDiskWithQuota(4096)
	if vd.Quota != 4096 {
		t.Errorf("Quota = %d, want 4096", vd.Quota)
	}
	if vd.FreeSpace() != 4096 {
		t.Errorf("FreeSpace() on an empty table = %d, want 4096", vd.FreeSpace())
	}
}
