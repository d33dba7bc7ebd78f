package diag

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/armlink-data/teleop.rig/internal/fsutil"
	"github.com/armlink-data/teleop.rig/internal/httputil"
	"github.com/armlink-data/teleop.rig/internal/modbus"
)

func healthyRunner() *MockRunner {
	runner := &MockRunner{}
	runner.SetOutput("lsusb", lsusbWithAdapter)
	runner.SetOutput("lsmod", lsmodWithDriver)
	return runner
}

func TestDoctorAllPassing(t *testing.T) {
	fs := &fsutil.MemoryFileSystem{}
	fs.AddFile("/dev/ttyUSB0", fsutil.MemFile{Group: DialoutGroup, Readable: true, Writable: true})

	d := &Doctor{
		Lister:  testLister(fs, nil, []string{DialoutGroup}),
		Runner:  healthyRunner(),
		Factory: modbus.NewMockPortFactory(respondingPort(0x50, 0x51, 0x52)),
		Addrs:   DefaultScanAddrs,
	}

	report := d.Run(context.Background())
	if !report.Passed() {
		var sb strings.Builder
		report.Render(&sb)
		t.Fatalf("healthy rig failed checks:\n%s", sb.String())
	}

	// The single usable port was probed without being configured.
	probed := false
	for _, c := range report.Checks {
		if strings.HasPrefix(c.Name, "bus probe") {
			probed = true
			if !strings.Contains(c.Detail, "0x50") {
				t.Errorf("probe detail = %q, want sensors listed", c.Detail)
			}
		}
	}
	if !probed {
		t.Error("doctor skipped the bus probe")
	}
}

func TestDoctorReportsPermissionProblem(t *testing.T) {
	fs := &fsutil.MemoryFileSystem{}
	fs.AddFile("/dev/ttyUSB0", fsutil.MemFile{Group: "root", Readable: true})

	d := &Doctor{
		Lister:  testLister(fs, nil, nil),
		Runner:  healthyRunner(),
		Factory: modbus.NewMockPortFactory(modbus.NewTestablePort()),
	}

	report := d.Run(context.Background())
	if report.Passed() {
		t.Fatal("inaccessible port passed checks")
	}

	var permissions *Check
	for i := range report.Checks {
		if report.Checks[i].Name == "permissions" {
			permissions = &report.Checks[i]
		}
	}
	if permissions == nil || permissions.OK {
		t.Fatalf("permissions check = %+v, want failure", permissions)
	}
	var sawChmod bool
	for _, s := range permissions.Suggestions {
		if strings.HasPrefix(s.Command, "sudo chmod 666") {
			sawChmod = true
		}
	}
	if !sawChmod {
		t.Errorf("suggestions = %+v, want chmod", permissions.Suggestions)
	}
}

func TestDoctorFixRunsChmod(t *testing.T) {
	fs := &fsutil.MemoryFileSystem{}
	fs.AddFile("/dev/ttyUSB0", fsutil.MemFile{Group: "root"})

	runner := healthyRunner()
	runner.SetOutput("sudo chmod 666 /dev/ttyUSB0", "")

	d := &Doctor{
		Lister:  testLister(fs, nil, []string{DialoutGroup}),
		Runner:  runner,
		Factory: modbus.NewMockPortFactory(modbus.NewTestablePort()),
		Fix:     true,
	}

	report := d.Run(context.Background())
	if !runner.Ran("sudo chmod 666 /dev/ttyUSB0") {
		t.Error("fix mode did not run chmod")
	}
	if len(report.Fixed) != 1 {
		t.Errorf("Fixed = %v, want the chmod recorded", report.Fixed)
	}
}

func TestDoctorFixRefusesEscapingPath(t *testing.T) {
	fs := &fsutil.MemoryFileSystem{}
	// A config-supplied "port" that points outside /dev.
	fs.AddFile("/dev/../etc/passwd", fsutil.MemFile{})

	runner := healthyRunner()
	d := &Doctor{
		Lister:  testLister(fs, nil, []string{DialoutGroup}),
		Runner:  runner,
		Factory: modbus.NewMockPortFactory(modbus.NewTestablePort()),
		Fix:     true,
	}
	d.Lister.Patterns = []string{"/dev/../etc/*"}

	report := d.Run(context.Background())
	for _, call := range runner.Calls {
		if strings.Contains(call, "chmod") {
			t.Errorf("fix mode ran %q on a path outside /dev", call)
		}
	}
	if len(report.Fixed) != 0 {
		t.Errorf("Fixed = %v, want nothing", report.Fixed)
	}
}

func TestDoctorHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	fs := &fsutil.MemoryFileSystem{}
	fs.AddFile("/dev/ttyUSB0", fsutil.MemFile{Group: DialoutGroup, Readable: true, Writable: true})

	d := &Doctor{
		Lister:    testLister(fs, nil, []string{DialoutGroup}),
		Runner:    healthyRunner(),
		Factory:   modbus.NewMockPortFactory(respondingPort(0x50)),
		HealthURL: srv.URL + "/api/health",
		HTTP:      httputil.NewStandardClient(srv.Client()),
	}

	report := d.Run(context.Background())
	found := false
	for _, c := range report.Checks {
		if c.Name == "debug server health" {
			found = true
			if !c.OK {
				t.Errorf("health check failed: %s", c.Detail)
			}
		}
	}
	if !found {
		t.Error("health check missing from report")
	}
}

func TestDoctorHealthCheckDown(t *testing.T) {
	fs := &fsutil.MemoryFileSystem{}
	fs.AddFile("/dev/ttyUSB0", fsutil.MemFile{Group: DialoutGroup, Readable: true, Writable: true})

	client := httputil.NewMockHTTPClient().AddResponse(http.StatusBadGateway, "upstream gone")
	d := &Doctor{
		Lister:    testLister(fs, nil, []string{DialoutGroup}),
		Runner:    healthyRunner(),
		Factory:   modbus.NewMockPortFactory(respondingPort(0x50)),
		HealthURL: "http://localhost:8000/api/health",
		HTTP:      client,
	}

	report := d.Run(context.Background())
	for _, c := range report.Checks {
		if c.Name == "debug server health" {
			if c.OK {
				t.Error("health check passed against a 502")
			}
			if len(client.Requests()) != 1 {
				t.Errorf("health check made %d requests, want 1", len(client.Requests()))
			}
			return
		}
	}
	t.Error("health check missing from report")
}

func TestReportRender(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "serial devices", OK: true, Detail: "/dev/ttyUSB0"},
		{Name: "permissions", Suggestions: []Suggestion{{
			Reason:  "no read/write access to /dev/ttyUSB0",
			Command: "sudo chmod 666 /dev/ttyUSB0",
		}}},
	}}

	var sb strings.Builder
	report.Render(&sb)
	out := sb.String()
	if !strings.Contains(out, "[  ok] serial devices") {
		t.Errorf("render missing pass line:\n%s", out)
	}
	if !strings.Contains(out, "[FAIL] permissions") {
		t.Errorf("render missing fail line:\n%s", out)
	}
	if !strings.Contains(out, "sudo chmod 666 /dev/ttyUSB0") {
		t.Errorf("render missing suggestion:\n%s", out)
	}
	if strings.Contains(out, "all checks passed") {
		t.Errorf("failing report claims success:\n%s", out)
	}
}
