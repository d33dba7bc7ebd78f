package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/armlink-data/teleop.rig/internal/httputil"
	"github.com/armlink-data/teleop.rig/internal/modbus"
	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/security"
)

// deviceDir confines every path the fix mode hands to chmod.
const deviceDir = "/dev"

// Check is one step of the doctor sequence.
type Check struct {
	Name        string       `json:"name"`
	OK          bool         `json:"ok"`
	Detail      string       `json:"detail,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// Report is the full doctor outcome.
type Report struct {
	Checks []Check `json:"checks"`
	Fixed  []string `json:"fixed,omitempty"`
}

// Passed reports whether every check succeeded.
func (r Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Render writes the human-readable report.
func (r Report) Render(w io.Writer) {
	for _, c := range r.Checks {
		status := "FAIL"
		if c.OK {
			status = "ok"
		}
		fmt.Fprintf(w, "[%4s] %s", status, c.Name)
		if c.Detail != "" {
			fmt.Fprintf(w, ": %s", c.Detail)
		}
		fmt.Fprintln(w)
		for _, s := range c.Suggestions {
			fmt.Fprintf(w, "       -> %s\n", s.Command)
			fmt.Fprintf(w, "          (%s)\n", s.Reason)
		}
	}
	for _, fixed := range r.Fixed {
		fmt.Fprintf(w, "fixed: %s\n", fixed)
	}
	if r.Passed() {
		fmt.Fprintln(w, "all checks passed")
	}
}

// RenderJSON writes the report as JSON for scripting.
func (r Report) RenderJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Doctor runs the rig diagnostics end to end: devices, permissions, driver,
// bus probe, and optionally the debug server's health endpoint.
type Doctor struct {
	Lister  *Lister
	Runner  CommandRunner
	Factory modbus.PortFactory

	// Port is the RS485 adapter to probe; empty skips the bus probe unless
	// exactly one usable port is discovered.
	Port string
	Baud int

	// Addrs are the bus addresses to probe. Defaults to DefaultScanAddrs.
	Addrs []byte

	// HealthURL, when set, is checked with a GET (the debug server's
	// /api/health).
	HealthURL string
	HTTP      httputil.HTTPClient

	// Fix executes the executable suggestions after the checks run.
	Fix bool
}

// NewDoctor returns a Doctor wired to the host.
func NewDoctor() *Doctor {
	return &Doctor{
		Lister:  NewLister(),
		Runner:  ExecRunner{},
		Factory: modbus.SerialFactory{},
		Addrs:   DefaultScanAddrs,
	}
}

// Run executes the check sequence and returns the report. Individual check
// failures do not stop the sequence.
func (d *Doctor) Run(ctx context.Context) Report {
	var report Report
	var fixable []Suggestion

	ports, err := d.Lister.ListPorts()
	check := Check{Name: "serial devices"}
	switch {
	case err != nil:
		check.Detail = err.Error()
	case len(ports) == 0:
		check.Detail = "no serial devices found"
		check.Suggestions = []Suggestion{{
			Reason:  "nothing under /dev/ttyUSB* or /dev/ttyACM*",
			Command: "plug in the RS485 adapter, then re-run",
		}}
	default:
		check.OK = true
		names := make([]string, len(ports))
		for i, p := range ports {
			names[i] = p.Path
		}
		check.Detail = strings.Join(names, ", ")
	}
	report.Checks = append(report.Checks, check)

	inDialout, groupErr := d.Lister.InDialout()
	check = Check{Name: "permissions", OK: true}
	if groupErr != nil {
		inDialout = false
	}
	for _, p := range ports {
		if !p.Usable() {
			check.OK = false
			check.Detail = p.Path + " is not accessible"
			check.Suggestions = append(check.Suggestions, PermissionSuggestions(p, inDialout)...)
		}
	}
	if check.OK && !inDialout && len(ports) > 0 {
		check.Suggestions = PermissionSuggestions(PortReport{Readable: true, Writable: true}, false)
	}
	report.Checks = append(report.Checks, check)
	fixable = append(fixable, check.Suggestions...)

	driver := CheckDriver(d.Runner)
	check = Check{Name: "CH340 driver", OK: driver.OK(), Suggestions: driver.Suggestions}
	switch {
	case !driver.AdapterPresent:
		check.Detail = "adapter not on the USB bus"
	case !driver.ModuleLoaded:
		check.Detail = "ch341 module not loaded"
	case driver.BrlttyRunning:
		check.Detail = "brltty is running"
	}
	report.Checks = append(report.Checks, check)
	fixable = append(fixable, driver.Suggestions...)

	if probePort := d.probePort(ports); probePort != "" {
		report.Checks = append(report.Checks, d.probeCheck(ctx, probePort))
	}

	if d.HealthURL != "" {
		report.Checks = append(report.Checks, d.healthCheck())
	}

	if d.Fix {
		report.Fixed = d.applyFixes(fixable)
	}
	return report
}

// probePort picks the port for the bus probe: the configured one, or the
// single usable discovered port.
func (d *Doctor) probePort(ports []PortReport) string {
	if d.Port != "" {
		return d.Port
	}
	var usable []string
	for _, p := range ports {
		if p.Usable() {
			usable = append(usable, p.Path)
		}
	}
	if len(usable) == 1 {
		return usable[0]
	}
	return ""
}

func (d *Doctor) probeCheck(ctx context.Context, path string) Check {
	check := Check{Name: fmt.Sprintf("bus probe on %s", path)}

	port, err := d.Factory.Open(path, modbus.PortOptions{BaudRate: d.Baud})
	if err != nil {
		check.Detail = err.Error()
		return check
	}
	bus := modbus.NewBus(port)
	defer bus.Close()

	addrs := d.Addrs
	if len(addrs) == 0 {
		addrs = DefaultScanAddrs
	}
	results := ScanBus(ctx, bus, addrs)
	var found []string
	for _, r := range results {
		if r.OK {
			found = append(found, fmt.Sprintf("0x%02X", r.Addr))
		}
	}
	if len(found) == 0 {
		check.Detail = "no sensors answered"
		check.Suggestions = []Suggestion{{
			Reason:  "wiring, baud rate, or addresses may be off",
			Command: "run the baud-scan tool to sweep rates and addresses",
		}}
		return check
	}
	check.OK = true
	check.Detail = "sensors at " + strings.Join(found, ", ")
	return check
}

func (d *Doctor) healthCheck() Check {
	check := Check{Name: "debug server health"}
	client := d.HTTP
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	resp, err := client.Get(d.HealthURL)
	if err != nil {
		check.Detail = err.Error()
		return check
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		check.Detail = fmt.Sprintf("status %d", resp.StatusCode)
		return check
	}
	check.OK = true
	return check
}

// applyFixes runs the executable suggestions. chmod targets are confined to
// /dev before anything is exec'd; nothing else about the command is trusted
// beyond it having come from our own checks.
func (d *Doctor) applyFixes(suggestions []Suggestion) []string {
	var fixed []string
	for _, s := range suggestions {
		if len(s.Args) == 0 {
			continue
		}
		if len(s.Args) >= 2 && (s.Args[1] == "chmod" || s.Args[0] == "chmod") {
			target := s.Args[len(s.Args)-1]
			if err := security.ValidatePathWithinDirectory(target, deviceDir); err != nil {
				monitoring.Logf("diag: refusing fix %q: %v", s.Command, err)
				continue
			}
		}
		if out, err := d.Runner.Run(s.Args[0], s.Args[1:]...); err != nil {
			monitoring.Logf("diag: fix %q failed: %v (%s)", s.Command, err, strings.TrimSpace(string(out)))
			continue
		}
		fixed = append(fixed, s.Command)
	}
	return fixed
}
