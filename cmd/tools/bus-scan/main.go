// bus-scan probes the RS485 bus for WIT sensors at the usual addresses and
// prints which ones answer, with a sample orientation reading.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/armlink-data/teleop.rig/internal/diag"
	"github.com/armlink-data/teleop.rig/internal/modbus"
	"github.com/armlink-data/teleop.rig/internal/version"
)

var (
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port")
	baud        = flag.Int("baud", 9600, "Baud rate")
	timeout     = flag.Duration("timeout", 30*time.Second, "Overall scan timeout")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	bus, err := modbus.OpenBus(*port, modbus.PortOptions{BaudRate: *baud})
	if err != nil {
		log.Fatalf("open %s: %v", *port, err)
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("scanning %s @%d baud\n", *port, *baud)
	found := 0
	for _, result := range diag.ScanBus(ctx, bus, diag.DefaultScanAddrs) {
		if !result.OK {
			fmt.Printf("  0x%02X  no response\n", result.Addr)
			continue
		}
		found++
		if result.Angles != nil {
			fmt.Printf("  0x%02X  OK  roll %.1f pitch %.1f yaw %.1f\n",
				result.Addr, result.Angles[0], result.Angles[1], result.Angles[2])
		} else {
			fmt.Printf("  0x%02X  OK\n", result.Addr)
		}
	}
	fmt.Printf("%d sensor(s) found\n", found)
	if found == 0 {
		os.Exit(1)
	}
}
