// baud-scan sweeps baud rates and addresses to locate a sensor configured
// off the rig default, reopening the port at each rate.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/armlink-data/teleop.rig/internal/diag"
	"github.com/armlink-data/teleop.rig/internal/version"
)

var (
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port")
	timeout     = flag.Duration("timeout", 2*time.Minute, "Overall scan timeout")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	scanner := diag.NewBaudScanner()
	fmt.Printf("sweeping %s: bauds %v, addresses %v\n", *port, scanner.Bauds, scanner.Addrs)
	hits, err := scanner.Scan(ctx, *port)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
	if len(hits) == 0 {
		fmt.Println("no sensors answered at any rate")
		os.Exit(1)
	}
	for _, hit := range hits {
		fmt.Printf("  %6d baud  addr 0x%02X\n", hit.Baud, hit.Addr)
	}
}
