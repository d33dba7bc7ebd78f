// armsim stands in for the robot arm: it receives teleop frames, clamps
// them to the workspace, and logs the commanded pose. Useful for checking
// the pipeline end to end without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-zeromq/zmq4"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/armlink-data/teleop.rig/internal/pose"
	"github.com/armlink-data/teleop.rig/internal/teleop"
	"github.com/armlink-data/teleop.rig/internal/version"
	"github.com/armlink-data/teleop.rig/internal/zmqio"
)

// logInterval spaces out the pose log so a 5 Hz stream stays readable.
const logInterval = time.Second

var (
	pullBind    = flag.String("pull", "tcp://*:5559", "PULL bind endpoint")
	subEndpoint = flag.String("sub", "", "Subscribe to this endpoint instead of PULL (e.g. tcp://127.0.0.1:5556)")
	workspace   = flag.String("workspace", "triple", "Workspace clamp: triple or dual")
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

	open := func(ctx context.Context) (zmq4.Socket, error) {
		if *subEndpoint != "" {
			return zmqio.NewSub(ctx, *subEndpoint, false)
		}
		return zmqio.NewPull(ctx, *pullBind)
	}
	if *subEndpoint != "" {
		log.Printf("subscribing to frames at %s", *subEndpoint)
	} else {
		log.Printf("pulling frames on %s", *pullBind)
	}

	arm := newArmState(ws)
	if err := zmqio.Drain(ctx, open, arm.apply); err != nil && err != context.Canceled {
		log.Fatalf("receive: %v", err)
	}
	log.Printf("armsim stopped after %d frames", arm.frames)
}

// armState is the simulated arm: the last commanded pose, clamped to the
// workspace.
type armState struct {
	ws      pose.Workspace
	pos     r3.Vec
	orient  [3]float64
	gripper float64
	frames  int64
	clamped int64
	lastLog time.Time
}

func newArmState(ws pose.Workspace) *armState {
	home := ws.Target.Clamp(r3.Vec{})
	return &armState{ws: ws, pos: home}
}

func (a *armState) apply(payload []byte) {
	frame, reset, err := teleop.ParseMessage(payload)
	if err != nil {
		log.Printf("bad frame: %v", err)
		return
	}
	if reset {
		a.pos = a.ws.Target.Clamp(r3.Vec{})
		a.gripper = 0
		log.Print("reset: re-homed")
		return
	}

	target := r3.Vec{X: frame.Position[0], Y: frame.Position[1], Z: frame.Position[2]}
	clamped := a.ws.Target.Clamp(target)
	if clamped != target {
		a.clamped++
	}
	a.pos = clamped
	a.orient = frame.Orientation
	a.gripper = frame.Gripper
	a.frames++

	if now := time.Now(); now.Sub(a.lastLog) >= logInterval {
		a.lastLog = now
		log.Printf("pose [%.3f %.3f %.3f] rpy [%.2f %.2f %.2f] grip %.2f (%d frames, %d clamped)",
			a.pos.X, a.pos.Y, a.pos.Z,
			a.orient[0], a.orient[1], a.orient[2],
			a.gripper, a.frames, a.clamped)
	}
}
