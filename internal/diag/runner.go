// Package diag is the rig's field diagnostics: serial port discovery and
// permission checks, hotplug monitoring, Modbus bus and baud scans, USB
// driver checks for the CH340 adapter, and a doctor that runs the whole
// sequence and renders suggestions.
package diag

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// CommandRunner executes external commands. The driver checks shell out to
// lsusb, lsmod and friends; the abstraction keeps those testable without a
// USB bus.
type CommandRunner interface {
	// Run executes the command and returns its combined output.
	Run(name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host.
type ExecRunner struct{}

func (ExecRunner) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// MockRunner returns canned outputs keyed by the full command line and
// records every call. Commands without an entry return an error, which is
// how "pgrep found nothing" is simulated.
type MockRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	Calls   []string
}

// SetOutput registers the output for a command line, e.g. "lsmod".
func (m *MockRunner) SetOutput(commandLine, output string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outputs == nil {
		m.outputs = make(map[string]string)
	}
	m.outputs[commandLine] = output
}

func (m *MockRunner) Run(name string, args ...string) ([]byte, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, line)
	out, ok := m.outputs[line]
	if !ok {
		return nil, fmt.Errorf("exit status 1")
	}
	return []byte(out), nil
}

// Ran reports whether a command line was executed.
func (m *MockRunner) Ran(commandLine string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.Calls {
		if call == commandLine {
			return true
		}
	}
	return false
}
