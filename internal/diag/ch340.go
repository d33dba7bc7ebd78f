package diag

import (
	"strings"
)

// The rig's RS485 adapters are CH340-based; the USB vendor:product id lsusb
// reports for them.
const ch340USBID = "1a86:7523"

// Suggestion is one actionable fix the diagnostics can print or, in the
// doctor's fix mode, execute.
type Suggestion struct {
	// Reason explains what the command addresses.
	Reason string `json:"reason"`

	// Command is the shell command to run, shown to the user verbatim.
	Command string `json:"command"`

	// Args is the command split for execution, empty for suggestions that
	// are advice only (log out and back in, replug the cable).
	Args []string `json:"-"`
}

// DriverReport is the outcome of the CH340 driver checks.
type DriverReport struct {
	AdapterPresent bool `json:"adapter_present"`
	ModuleLoaded   bool `json:"module_loaded"`
	BrlttyRunning  bool `json:"brltty_running"`

	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// OK reports whether the driver stack looks healthy.
func (r DriverReport) OK() bool {
	return r.AdapterPresent && r.ModuleLoaded && !r.BrlttyRunning
}

// CheckDriver inspects the USB bus and kernel module state for the CH340
// adapter. brltty is checked because stock installs claim CH340 devices for
// braille displays and detach the serial driver.
func CheckDriver(runner CommandRunner) DriverReport {
	var r DriverReport

	if out, err := runner.Run("lsusb"); err == nil {
		lower := strings.ToLower(string(out))
		r.AdapterPresent = strings.Contains(lower, ch340USBID) || strings.Contains(lower, "ch340")
	}
	if out, err := runner.Run("lsmod"); err == nil {
		r.ModuleLoaded = strings.Contains(string(out), "ch341")
	}
	// pgrep exits nonzero when no process matches.
	if _, err := runner.Run("pgrep", "-x", "brltty"); err == nil {
		r.BrlttyRunning = true
	}

	if !r.AdapterPresent {
		r.Suggestions = append(r.Suggestions, Suggestion{
			Reason:  "no CH340 adapter on the USB bus",
			Command: "replug the USB cable, then check lsusb for " + ch340USBID,
		})
	}
	if r.AdapterPresent && !r.ModuleLoaded {
		r.Suggestions = append(r.Suggestions, Suggestion{
			Reason:  "ch341 serial driver not loaded",
			Command: "sudo modprobe ch341",
			Args:    []string{"sudo", "modprobe", "ch341"},
		})
	}
	if r.BrlttyRunning {
		r.Suggestions = append(r.Suggestions, Suggestion{
			Reason:  "brltty claims CH340 devices and detaches the serial driver",
			Command: "sudo systemctl stop brltty brltty-udev; sudo systemctl mask brltty brltty-udev",
			Args:    []string{"sudo", "systemctl", "stop", "brltty", "brltty-udev"},
		})
	}
	return r
}

// PermissionSuggestions returns the fixes for a port the user cannot open.
func PermissionSuggestions(port PortReport, inDialout bool) []Suggestion {
	var suggestions []Suggestion
	if !port.Usable() {
		suggestions = append(suggestions, Suggestion{
			Reason:  "no read/write access to " + port.Path,
			Command: "sudo chmod 666 " + port.Path,
			Args:    []string{"sudo", "chmod", "666", port.Path},
		})
	}
	if !inDialout {
		suggestions = append(suggestions, Suggestion{
			Reason:  "user is not in the " + DialoutGroup + " group",
			Command: "sudo usermod -a -G " + DialoutGroup + " $USER (then log out and back in)",
		})
	}
	return suggestions
}
