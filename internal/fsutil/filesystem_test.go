package fsutil

import (
	"errors"
	"io/fs"
	"testing"
)

func TestMemoryGlob(t *testing.T) {
	var m MemoryFileSystem
	m.AddFile("/dev/ttyUSB0", MemFile{Group: "dialout", Readable: true, Writable: true})
	m.AddFile("/dev/ttyUSB1", MemFile{Group: "dialout", Readable: true})
	m.AddFile("/dev/ttyACM0", MemFile{Group: "dialout", Readable: true, Writable: true})
	m.AddFile("/dev/sda", MemFile{Group: "disk"})

	got, err := m.Glob("/dev/ttyUSB*")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	want := []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}
	if len(got) != len(want) {
		t.Fatalf("Glob = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Glob[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	none, err := m.Glob("/dev/ttyS*")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Glob matched %v, want nothing", none)
	}
}

func TestMemoryAccess(t *testing.T) {
	var m MemoryFileSystem
	m.AddFile("/dev/ttyUSB0", MemFile{Readable: true, Writable: true})
	m.AddFile("/dev/ttyUSB1", MemFile{Readable: true})
	m.AddFile("/dev/ttyUSB2", MemFile{})

	if err := m.Access("/dev/ttyUSB0", true); err != nil {
		t.Errorf("Access rw device: %v", err)
	}
	if err := m.Access("/dev/ttyUSB1", false); err != nil {
		t.Errorf("Access read-only device for read: %v", err)
	}
	if err := m.Access("/dev/ttyUSB1", true); !errors.Is(err, fs.ErrPermission) {
		t.Errorf("Access read-only device for write = %v, want permission error", err)
	}
	if err := m.Access("/dev/ttyUSB2", false); !errors.Is(err, fs.ErrPermission) {
		t.Errorf("Access unreadable device = %v, want permission error", err)
	}
	if err := m.Access("/dev/missing", false); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Access missing device = %v, want not-exist error", err)
	}
}

func TestMemoryStatAndGroup(t *testing.T) {
	var m MemoryFileSystem
	m.AddFile("/dev/ttyUSB0", MemFile{Mode: 0o660, Group: "dialout", Readable: true})

	info, err := m.Stat("/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Name() != "ttyUSB0" || info.Mode() != 0o660 {
		t.Errorf("Stat = %s mode %v", info.Name(), info.Mode())
	}

	group, err := m.OwnerGroup("/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("OwnerGroup: %v", err)
	}
	if group != "dialout" {
		t.Errorf("OwnerGroup = %q, want dialout", group)
	}

	if _, err := m.Stat("/dev/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat missing = %v, want not-exist error", err)
	}
}

func TestMemoryRemove(t *testing.T) {
	var m MemoryFileSystem
	m.AddFile("/dev/ttyUSB0", MemFile{Readable: true})
	m.Remove("/dev/ttyUSB0")
	if _, err := m.Stat("/dev/ttyUSB0"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat after Remove = %v, want not-exist error", err)
	}
}
