// Package relay forwards the rig's ZeroMQ feeds between hosts: teleop
// frames out to viewers, video frames back to the operator, with optional
// session recording on the teleop path.
package relay

import (
	"context"
	"net"

	"github.com/go-zeromq/zmq4"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
	"github.com/armlink-data/teleop.rig/internal/zmqio"
)

// Default endpoints for the two forwarding paths.
const (
	DefaultViewerSub = "tcp://127.0.0.1:5555"
	DefaultViewerPub = "tcp://*:5556"
	DefaultVideoSub  = "tcp://*:5558"
	DefaultVideoPub  = "tcp://*:5557"
)

// Relay subscribes on one endpoint and republishes on another. Delivery is
// latest-only: a viewer that stalls skips to the newest message instead of
// backing up the publisher.
type Relay struct {
	// Name tags log lines when several relays run in one process.
	Name string

	// SubEndpoint is where messages come from. SubBind selects binding
	// over dialing; the video return path binds its SUB side.
	SubEndpoint string
	SubBind     bool

	// PubEndpoint is bound and republished on.
	PubEndpoint string

	// OnForward, when set, sees every payload after it is republished. The
	// recorder hangs off this.
	OnForward func(payload []byte)

	// OnBound, when set, is called with the bound publish address.
	OnBound func(addr net.Addr)
}

// NewViewerRelay forwards teleop frames from the daemon to viewers.
func NewViewerRelay() *Relay {
	return &Relay{
		Name:        "viewer",
		SubEndpoint: DefaultViewerSub,
		PubEndpoint: DefaultViewerPub,
	}
}

// NewVideoRelay forwards camera frames from the robot side back to the
// operator. Payloads are opaque bytes.
func NewVideoRelay() *Relay {
	return &Relay{
		Name:        "video",
		SubEndpoint: DefaultVideoSub,
		SubBind:     true,
		PubEndpoint: DefaultVideoPub,
	}
}

// Run forwards until ctx is cancelled. The subscribe side follows the
// close/wait/re-dial policy on receive errors; the publish side is bound
// once for the process lifetime.
func (r *Relay) Run(ctx context.Context) error {
	pub, err := zmqio.NewPub(ctx, r.PubEndpoint)
	if err != nil {
		return err
	}
	defer pub.Close()
	monitoring.Logf("relay %s: %s -> %s", r.Name, r.SubEndpoint, r.PubEndpoint)
	if r.OnBound != nil {
		r.OnBound(pub.Addr())
	}

	box := zmqio.NewLatest[[]byte]()
	go r.forward(ctx, pub, box)

	return zmqio.Drain(ctx, func(ctx context.Context) (zmq4.Socket, error) {
		return zmqio.NewSub(ctx, r.SubEndpoint, r.SubBind)
	}, box.Put)
}

// forward republishes the newest payload as fast as the publish side allows.
func (r *Relay) forward(ctx context.Context, pub zmq4.Socket, box *zmqio.Latest[[]byte]) {
	for {
		payload, err := box.Next(ctx)
		if err != nil {
			return
		}
		if err := pub.Send(zmq4.NewMsg(payload)); err != nil {
			monitoring.Logf("relay %s: publish: %v", r.Name, err)
			continue
		}
		if r.OnForward != nil {
			r.OnForward(payload)
		}
	}
}
