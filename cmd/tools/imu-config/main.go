// imu-config writes WIT sensor settings over the bus: device address, baud
// rate, and output rate. Each write goes through the unlock/write/save
// sequence, and address or baud changes take effect after a power cycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/armlink-data/teleop.rig/internal/diag"
	"github.com/armlink-data/teleop.rig/internal/modbus"
	"github.com/armlink-data/teleop.rig/internal/version"
	"github.com/armlink-data/teleop.rig/internal/witimu"
)

var (
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port")
	baud        = flag.Int("baud", 9600, "Current baud rate of the sensor")
	addr        = flag.Uint("addr", 0x50, "Current bus address of the sensor")
	newAddr     = flag.Uint("set-addr", 0, "New bus address to assign")
	newBaud     = flag.Int("set-baud", 0, "New baud rate to assign")
	newRate     = flag.Int("set-rate", 0, "New output rate in Hz to assign")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *newAddr == 0 && *newBaud == 0 && *newRate == 0 {
		log.Fatal("nothing to do: pass -set-addr, -set-baud, or -set-rate")
	}

	bus, err := modbus.OpenBus(*port, modbus.PortOptions{BaudRate: *baud})
	if err != nil {
		log.Fatalf("open %s: %v", *port, err)
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Confirm the sensor answers before touching its config.
	probe := diag.ProbeAddress(ctx, bus, byte(*addr))
	if !probe.OK {
		log.Fatalf("no sensor at 0x%02X on %s @%d: %s", *addr, *port, *baud, probe.Err)
	}

	configurator := witimu.NewConfigurator(bus)
	if *newAddr != 0 {
		if err := configurator.SetAddress(ctx, byte(*addr), byte(*newAddr)); err != nil {
			log.Fatalf("set address: %v", err)
		}
		fmt.Printf("address 0x%02X -> 0x%02X (power cycle to apply)\n", *addr, *newAddr)
	}
	if *newBaud != 0 {
		if err := configurator.SetBaud(ctx, byte(*addr), *newBaud); err != nil {
			log.Fatalf("set baud: %v", err)
		}
		fmt.Printf("baud -> %d (power cycle to apply)\n", *newBaud)
	}
	if *newRate != 0 {
		if err := configurator.SetRate(ctx, byte(*addr), *newRate); err != nil {
			log.Fatalf("set rate: %v", err)
		}
		fmt.Printf("output rate -> %d Hz\n", *newRate)
	}
}
