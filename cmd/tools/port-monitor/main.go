// port-monitor watches /dev for serial adapters coming and going, which is
// the quickest way to find out what device name an adapter got.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/armlink-data/teleop.rig/internal/diag"
	"github.com/armlink-data/teleop.rig/internal/version"
)

var (
	interval    = flag.Duration("interval", diag.DefaultMonitorInterval, "Poll interval")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := diag.NewMonitor(diag.NewLister())
	monitor.Interval = *interval
	log.Printf("watching serial ports every %v (ctrl-c to stop)", *interval)
	err := monitor.Run(ctx, func(change diag.PortChange) {
		stamp := time.Now().Format("15:04:05")
		for _, path := range change.Added {
			fmt.Printf("%s  + %s\n", stamp, path)
		}
		for _, path := range change.Removed {
			fmt.Printf("%s  - %s\n", stamp, path)
		}
	})
	if err != nil && err != context.Canceled {
		log.Fatalf("monitor: %v", err)
	}
}
