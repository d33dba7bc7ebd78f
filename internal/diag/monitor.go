package diag

import (
	"context"
	"sort"
	"time"

	"github.com/armlink-data/teleop.rig/internal/timeutil"
)

// DefaultMonitorInterval is how often the hotplug monitor re-lists ports.
const DefaultMonitorInterval = time.Second

// PortChange is one hotplug event: devices that appeared and devices that
// vanished between two snapshots.
type PortChange struct {
	Added   []string
	Removed []string
}

// Monitor watches for serial devices being plugged or unplugged. The rig's
// CH340 adapters drop off the bus when the cable is marginal; the monitor
// makes that visible.
type Monitor struct {
	Lister   *Lister
	Interval time.Duration

	clock timeutil.Clock
}

// NewMonitor returns a Monitor over lister at the default interval.
func NewMonitor(lister *Lister) *Monitor {
	return &Monitor{
		Lister:   lister,
		Interval: DefaultMonitorInterval,
		clock:    timeutil.RealClock{},
	}
}

// SetClock replaces the monitor clock for tests. Call before Run.
func (m *Monitor) SetClock(clock timeutil.Clock) {
	m.clock = clock
}

// Run snapshots the port list every interval and reports diffs to onChange
// until ctx is cancelled. The initial snapshot is reported as an add of
// every present port.
func (m *Monitor) Run(ctx context.Context, onChange func(PortChange)) error {
	previous := make(map[string]bool)

	emit := func() error {
		paths, err := m.Lister.Paths()
		if err != nil {
			return err
		}
		current := make(map[string]bool, len(paths))
		var change PortChange
		for _, p := range paths {
			current[p] = true
			if !previous[p] {
				change.Added = append(change.Added, p)
			}
		}
		for p := range previous {
			if !current[p] {
				change.Removed = append(change.Removed, p)
			}
		}
		previous = current
		sort.Strings(change.Removed)
		if len(change.Added) > 0 || len(change.Removed) > 0 {
			onChange(change)
		}
		return nil
	}

	if err := emit(); err != nil {
		return err
	}

	ticker := m.clock.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := emit(); err != nil {
				return err
			}
		}
	}
}
