// imu-sim publishes synthetic teleop frames and a matching debug feed so
// the viewers, relays, and debug server can be exercised without the
// daemon or any hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/armlink-data/teleop.rig/internal/pose"
	"github.com/armlink-data/teleop.rig/internal/sim"
	"github.com/armlink-data/teleop.rig/internal/teleop"
	"github.com/armlink-data/teleop.rig/internal/version"
	"github.com/armlink-data/teleop.rig/internal/zmqio"
)

var (
	frameBind   = flag.String("frames", "tcp://*:5555", "Teleop frame PUB bind endpoint")
	debugBind   = flag.String("debug", "tcp://*:5560", "Debug feed PUB bind endpoint")
	workspace   = flag.String("workspace", "triple", "Workspace the fake path moves in: triple or dual")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	var ws pose.Workspace
	switch *workspace {
	case "triple":
		ws = pose.DefaultTripleWorkspace()
	case "dual":
		ws = pose.DefaultDualWorkspace()
	default:
		log.Fatalf("unknown workspace %q", *workspace)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frames, err := zmqio.NewPub(ctx, *frameBind)
	if err != nil {
		log.Fatalf("bind frames: %v", err)
	}
	defer frames.Close()
	debug, err := zmqio.NewPub(ctx, *debugBind)
	if err != nil {
		log.Fatalf("bind debug feed: %v", err)
	}
	defer debug.Close()

	log.Printf("publishing fake frames on %s, debug feed on %s", *frameBind, *debugBind)
	source := sim.NewFrameSource(ws,
		teleop.PublisherFunc(func(p []byte) error { return zmqio.Send(frames, p) }),
		teleop.PublisherFunc(func(p []byte) error { return zmqio.Send(debug, p) }))
	if err := source.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("frame source: %v", err)
	}
	log.Print("imu-sim stopped")
}
