// ble-scan lists WT901 sensors advertising nearby, with their MAC and
// signal strength, for filling in the config's ble_addresses list.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/armlink-data/teleop.rig/internal/version"
	"github.com/armlink-data/teleop.rig/internal/witimu"
)

var (
	prefix      = flag.String("prefix", "WT901", "Device name prefix to match")
	count       = flag.Int("count", 8, "Stop after this many devices")
	window      = flag.Duration("window", witimu.DefaultBLEScanWindow, "Scan window")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *window+5*time.Second)
	defer cancel()

	fmt.Printf("scanning for %q devices (%v window)\n", *prefix, *window)
	devices, err := witimu.ScanDevices(ctx, witimu.BLEConfig{
		NamePrefix: *prefix,
		Count:      *count,
		ScanWindow: *window,
	})
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
	if len(devices) == 0 {
		fmt.Println("no devices found")
		os.Exit(1)
	}
	for _, device := range devices {
		fmt.Printf("  %-16s %s  rssi %d\n", device.Name, device.Address, device.RSSI)
	}
}
