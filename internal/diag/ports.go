package diag

import (
	"os/user"
	"sort"

	"go.bug.st/serial"

	"github.com/armlink-data/teleop.rig/internal/fsutil"
)

// DialoutGroup is the group that owns serial devices on the rig machines.
const DialoutGroup = "dialout"

// DefaultPatterns are the device globs where USB serial adapters appear.
var DefaultPatterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}

// PortReport describes one serial device and whether this process can use
// it.
type PortReport struct {
	Path     string `json:"path"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
	Group    string `json:"group"`
}

// Usable reports whether the port can be opened for polling.
func (p PortReport) Usable() bool {
	return p.Readable && p.Writable
}

// Lister discovers serial ports and their permissions. The zero value is not
// usable; call NewLister, then override fields in tests.
type Lister struct {
	FS fsutil.FileSystem

	// SerialPorts enumerates ports the serial library knows about, which
	// catches devices outside the glob patterns.
	SerialPorts func() ([]string, error)

	// UserGroups returns the group names of the current user.
	UserGroups func() ([]string, error)

	// Patterns are the device globs to search. Defaults to DefaultPatterns.
	Patterns []string
}

// NewLister returns a Lister wired to the host.
func NewLister() *Lister {
	return &Lister{
		FS:          fsutil.OSFileSystem{},
		SerialPorts: serial.GetPortsList,
		UserGroups:  currentUserGroups,
		Patterns:    DefaultPatterns,
	}
}

func currentUserGroups() ([]string, error) {
	u, err := user.Current()
	if err != nil {
		return nil, err
	}
	ids, err := u.GroupIds()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		group, err := user.LookupGroupId(id)
		if err != nil {
			// An unresolvable gid is not worth failing the whole check.
			continue
		}
		names = append(names, group.Name)
	}
	return names, nil
}

// Paths returns the sorted union of the glob matches and the serial
// library's port list.
func (l *Lister) Paths() ([]string, error) {
	seen := make(map[string]bool)
	for _, pattern := range l.patterns() {
		matches, err := l.FS.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, name := range matches {
			seen[name] = true
		}
	}
	if l.SerialPorts != nil {
		// GetPortsList fails on hosts without an enumerable serial
		// subsystem; the glob results still stand.
		if ports, err := l.SerialPorts(); err == nil {
			for _, name := range ports {
				seen[name] = true
			}
		}
	}
	paths := make([]string, 0, len(seen))
	for name := range seen {
		paths = append(paths, name)
	}
	sort.Strings(paths)
	return paths, nil
}

// ListPorts returns a permission report for every discovered port.
func (l *Lister) ListPorts() ([]PortReport, error) {
	paths, err := l.Paths()
	if err != nil {
		return nil, err
	}
	reports := make([]PortReport, 0, len(paths))
	for _, path := range paths {
		reports = append(reports, l.report(path))
	}
	return reports, nil
}

func (l *Lister) report(path string) PortReport {
	r := PortReport{Path: path}
	r.Readable = l.FS.Access(path, false) == nil
	r.Writable = l.FS.Access(path, true) == nil
	if group, err := l.FS.OwnerGroup(path); err == nil {
		r.Group = group
	}
	return r
}

// InDialout reports whether the current user belongs to the dialout group.
func (l *Lister) InDialout() (bool, error) {
	groups, err := l.UserGroups()
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g == DialoutGroup {
			return true, nil
		}
	}
	return false, nil
}

func (l *Lister) patterns() []string {
	if len(l.Patterns) > 0 {
		return l.Patterns
	}
	return DefaultPatterns
}
