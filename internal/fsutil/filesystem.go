// Package fsutil abstracts the filesystem reads the diagnostics suite
// depends on, so port listing and permission checks can run against a
// fake /dev in tests.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// FileSystem is the read-only surface the diagnostics need. Use OSFileSystem
// against the real machine; MemoryFileSystem in tests.
type FileSystem interface {
	// Glob returns the names matching pattern, as filepath.Glob does.
	Glob(pattern string) ([]string, error)

	// Stat returns file metadata for name.
	Stat(name string) (fs.FileInfo, error)

	// Access reports whether the calling process may read (and, when write
	// is set, write) name. A nil error means access is granted.
	Access(name string, write bool) error

	// OwnerGroup returns the name of the group owning name.
	OwnerGroup(name string) (string, error)
}

// OSFileSystem implements FileSystem against the host.
type OSFileSystem struct{}

func (OSFileSystem) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (OSFileSystem) Access(name string, write bool) error {
	mode := uint32(unix.R_OK)
	if write {
		mode |= unix.W_OK
	}
	return unix.Access(name, mode)
}

func (OSFileSystem) OwnerGroup(name string) (string, error) {
	info, err := os.Stat(name)
	if err != nil {
		return "", err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", fmt.Errorf("no ownership information for %s", name)
	}
	group, err := user.LookupGroupId(fmt.Sprint(st.Gid))
	if err != nil {
		return "", err
	}
	return group.Name, nil
}

// MemFile is one entry in a MemoryFileSystem.
type MemFile struct {
	Mode     fs.FileMode
	Group    string
	Readable bool
	Writable bool
}

// MemoryFileSystem is an in-memory FileSystem for tests. Add entries with
// AddFile; the zero value is an empty filesystem.
type MemoryFileSystem struct {
	mu    sync.Mutex
	files map[string]MemFile
}

// AddFile registers name with the given metadata, replacing any previous
// entry.
func (m *MemoryFileSystem) AddFile(name string, f MemFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string]MemFile)
	}
	m.files[name] = f
}

// Remove drops name from the filesystem.
func (m *MemoryFileSystem) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
}

func (m *MemoryFileSystem) Glob(pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.files {
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return memFileInfo{name: path.Base(name), mode: f.Mode}, nil
}

func (m *MemoryFileSystem) Access(name string, write bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[name]
	if !ok {
		return &fs.PathError{Op: "access", Path: name, Err: fs.ErrNotExist}
	}
	if !f.Readable || (write && !f.Writable) {
		return &fs.PathError{Op: "access", Path: name, Err: fs.ErrPermission}
	}
	return nil
}

func (m *MemoryFileSystem) OwnerGroup(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[name]
	if !ok {
		return "", &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return f.Group, nil
}

type memFileInfo struct {
	name string
	mode fs.FileMode
}

func (i memFileInfo) Name() string       { return i.name }
func (i memFileInfo) Size() int64        { return 0 }
func (i memFileInfo) Mode() fs.FileMode  { return i.mode }
func (i memFileInfo) ModTime() time.Time { return time.Time{} }
func (i memFileInfo) IsDir() bool        { return i.mode.IsDir() }
func (i memFileInfo) Sys() any           { return nil }
