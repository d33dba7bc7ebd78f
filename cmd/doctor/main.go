// doctor checks the rig host: serial devices, permissions, the CH340
// driver, a bus probe, and optionally the debug server. -fix applies the
// safe fixes it suggests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/armlink-data/teleop.rig/internal/diag"
	"github.com/armlink-data/teleop.rig/internal/version"
)

var (
	port        = flag.String("port", "", "RS485 adapter to probe (default: the single usable port, if any)")
	baud        = flag.Int("baud", 9600, "Baud rate for the bus probe")
	healthURL   = flag.String("health", "", "Debug server health URL to check (e.g. http://localhost:8000/api/health)")
	fix         = flag.Bool("fix", false, "Apply the executable fix suggestions")
	jsonOut     = flag.Bool("json", false, "Emit the report as JSON")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	doctor := diag.NewDoctor()
	doctor.Port = *port
	doctor.Baud = *baud
	doctor.HealthURL = *healthURL
	doctor.Fix = *fix

	report := doctor.Run(context.Background())
	if *jsonOut {
		if err := report.RenderJSON(os.Stdout); err != nil {
			log.Fatalf("render report: %v", err)
		}
	} else {
		report.Render(os.Stdout)
	}
	if !report.Passed() {
		os.Exit(1)
	}
}
