// Package zmqio wraps the ZeroMQ sockets the rig processes talk through.
// The wire contract is fixed: JSON payloads in single frames on PUB/SUB and
// PUSH/PULL sockets at well-known ports, so the Python-era peers keep
// working. All receivers are latest-only; nothing in the pipeline queues.
package zmqio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/armlink-data/teleop.rig/internal/monitoring"
)

// RedialWait is how long a receive loop waits before re-dialing after a
// socket error.
const RedialWait = time.Second

// NewPub returns a PUB socket bound to endpoint.
func NewPub(ctx context.Context, endpoint string) (zmq4.Socket, error) {
	sock := zmq4.NewPub(ctx)
	if err := sock.Listen(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bind PUB %s: %w", endpoint, err)
	}
	return sock, nil
}

// NewPush returns a PUSH socket dialed to endpoint.
func NewPush(ctx context.Context, endpoint string) (zmq4.Socket, error) {
	sock := zmq4.NewPush(ctx, zmq4.WithDialerRetry(RedialWait))
	if err := sock.Dial(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("dial PUSH %s: %w", endpoint, err)
	}
	return sock, nil
}

// NewPull returns a PULL socket bound to endpoint.
func NewPull(ctx context.Context, endpoint string) (zmq4.Socket, error) {
	sock := zmq4.NewPull(ctx)
	if err := sock.Listen(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bind PULL %s: %w", endpoint, err)
	}
	return sock, nil
}

// NewSub returns a SUB socket subscribed to everything. bind selects
// Listen over Dial; the video return path binds its SUB side.
func NewSub(ctx context.Context, endpoint string, bind bool) (zmq4.Socket, error) {
	sock := zmq4.NewSub(ctx, zmq4.WithDialerRetry(RedialWait))
	var err error
	if bind {
		err = sock.Listen(endpoint)
	} else {
		err = sock.Dial(endpoint)
	}
	if err != nil {
		sock.Close()
		return nil, fmt.Errorf("connect SUB %s: %w", endpoint, err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		sock.Close()
		return nil, fmt.Errorf("subscribe %s: %w", endpoint, err)
	}
	return sock, nil
}

// NormalizeEndpoint turns a bind endpoint (tcp://*:5555) into a dialable
// one on the loopback interface. Tools that default to dialing the local
// daemon share the daemon's config values through this.
func NormalizeEndpoint(endpoint string) string {
	return strings.Replace(endpoint, "//*:", "//127.0.0.1:", 1)
}

// Drain receives messages from the socket that open returns and hands each
// payload to fn until ctx is cancelled. On a receive error the socket is
// closed and open is called again after RedialWait, matching the close /
// wait / re-dial policy the relays use. fn runs on the drain goroutine, so
// it must not block; hand off through a Latest box for slow consumers.
func Drain(ctx context.Context, open func(context.Context) (zmq4.Socket, error), fn func([]byte)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sock, err := open(ctx)
		if err != nil {
			monitoring.Logf("zmq: open failed, retrying in %v: %v", RedialWait, err)
			if !sleepCtx(ctx, RedialWait) {
				return ctx.Err()
			}
			continue
		}

		err = receiveAll(ctx, sock, fn)
		sock.Close()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		monitoring.Logf("zmq: receive failed, re-dialing in %v: %v", RedialWait, err)
		if !sleepCtx(ctx, RedialWait) {
			return ctx.Err()
		}
	}
}

func receiveAll(ctx context.Context, sock zmq4.Socket, fn func([]byte)) error {
	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		fn(msg.Bytes())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Send publishes payload as a single-frame message.
func Send(sock zmq4.Socket, payload []byte) error {
	return sock.Send(zmq4.NewMsg(payload))
}
