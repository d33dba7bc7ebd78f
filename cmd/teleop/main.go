// The teleop daemon acquires arm orientation from the rig's IMUs (RS485
// bus, Bluetooth LE, or a synthetic source), runs the kinematics, and
// publishes teleop frames and the debug feed over ZeroMQ. An admin HTTP
// endpoint exposes the gripper, reset, yaw zeroing, and bus debug routes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-zeromq/zmq4"
	"golang.org/x/term"
	"tailscale.com/tsweb"

	"github.com/armlink-data/teleop.rig/internal/config"
	"github.com/armlink-data/teleop.rig/internal/modbus"
	"github.com/armlink-data/teleop.rig/internal/pose"
	"github.com/armlink-data/teleop.rig/internal/sim"
	"github.com/armlink-data/teleop.rig/internal/teleop"
	"github.com/armlink-data/teleop.rig/internal/timeutil"
	"github.com/armlink-data/teleop.rig/internal/version"
	"github.com/armlink-data/teleop.rig/internal/witimu"
	"github.com/armlink-data/teleop.rig/internal/zmqio"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the rig config file")
	serialPort  = flag.String("port", "", "Serial port (overrides config)")
	baudRate    = flag.Int("baud", 0, "Baud rate (overrides config)")
	simMode     = flag.Bool("sim", false, "Use synthetic sensors instead of hardware")
	bleMode     = flag.Bool("ble", false, "Acquire over Bluetooth LE instead of RS485")
	pushMode    = flag.Bool("push", false, "PUSH frames to the push endpoint instead of PUB")
	onlineOnly  = flag.Bool("online-only", false, "Skip publish ticks while any sensor is offline")
	yawMode     = flag.String("yaw", "", "Yaw normalization mode: NORMAL, AUTO, SIMPLE, OFF")
	workspace   = flag.String("workspace", "", "Workspace mapping: triple or dual")
	adminListen = flag.String("listen", "", "Admin HTTP listen address (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	applyFlags(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Publishers. Control frames go PUB or PUSH per config; the debug feed
	// is always PUB.
	frames, err := openFramePublisher(ctx, cfg)
	if err != nil {
		log.Fatalf("open frame publisher: %v", err)
	}
	debug, err := zmqio.NewPub(ctx, cfg.GetDebugBind())
	if err != nil {
		log.Fatalf("bind debug feed %s: %v", cfg.GetDebugBind(), err)
	}
	defer frames.Close()
	defer debug.Close()

	// Sensor source. The tracker consumes samples the same way from all
	// three; BLE devices are tagged with synthetic bus addresses.
	addrs := cfg.GetIMUAddresses()
	if *bleMode {
		addrs = make([]byte, cfg.GetBLECount())
		for i := range addrs {
			addrs[i] = byte(0x50 + i)
		}
	}

	ws := cfg.GetWorkspace()
	if *bleMode && *workspace == "" {
		ws = pose.DefaultDualWorkspace()
	}

	tracker := teleop.NewTracker(addrs, pose.NewYawNormalizer(cfg.GetYawMode()), timeutil.RealClock{})
	engine := teleop.NewEngine(tracker, teleop.NewGripper(cfg.GetGripperStep()),
		pose.NewArm(cfg.GetL1(), cfg.GetL2()), ws,
		teleop.PublisherFunc(func(p []byte) error { return zmqio.Send(frames, p) }),
		teleop.PublisherFunc(func(p []byte) error { return zmqio.Send(debug, p) }))
	engine.PublishInterval = cfg.GetPublishInterval()
	engine.DebugInterval = cfg.GetDebugInterval()
	engine.OnlineOnly = cfg.GetOnlineOnly()

	var bus *modbus.Bus
	var source func(context.Context) error
	switch {
	case *simMode:
		log.Printf("sim mode: synthetic sensors at addresses %v", addrs)
		source = sim.NewSensorSource(addrs, tracker.Offer).Run
	case *bleMode:
		log.Printf("ble mode: looking for %d %q devices", cfg.GetBLECount(), cfg.GetBLENamePrefix())
		manager := witimu.NewBLEManager(witimu.BLEConfig{
			NamePrefix: cfg.GetBLENamePrefix(),
			MACs:       cfg.BLEAddresses,
			Count:      cfg.GetBLECount(),
		}, tracker.Offer)
		source = manager.Run
	default:
		bus, err = modbus.OpenBus(cfg.GetSerialPort(), modbus.PortOptions{BaudRate: cfg.GetBaudRate()})
		if err != nil {
			log.Fatalf("open bus %s: %v", cfg.GetSerialPort(), err)
		}
		defer bus.Close()

		scanCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		found, err := bus.Scan(scanCtx, addrs, witimu.BlockStart, witimu.BlockCount)
		cancel()
		if err != nil {
			log.Printf("startup scan: %v", err)
		}
		log.Printf("bus %s @%d: %d/%d sensors answered", cfg.GetSerialPort(), cfg.GetBaudRate(), len(found), len(addrs))

		poller := witimu.NewPoller(bus, addrs, tracker.Offer)
		poller.Interval = cfg.GetPollInterval()
		source = poller.Run
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tracker.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("tracker: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source(ctx); err != nil && err != context.Canceled {
			log.Printf("sensor source: %v", err)
		}
		log.Print("sensor source stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("engine: %v", err)
		}
		log.Print("publisher stopped")
	}()

	// Gripper keys on raw stdin when we have a terminal. q quits the whole
	// daemon, matching the operator's habit from the Python rig.
	if term.IsTerminal(int(os.Stdin.Fd())) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runKeyController(ctx, stop, engine.Gripper())
		}()
	}

	// Admin HTTP endpoint.
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()
		tsweb.Debugger(mux)
		engine.AttachAdminRoutes(mux)
		if bus != nil {
			bus.AttachAdminRoutes(mux)
		}

		server := &http.Server{Addr: cfg.GetAdminListen(), Handler: mux}
		go func() {
			log.Printf("admin endpoint on %s", cfg.GetAdminListen())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("admin server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("admin server shutdown: %v", err)
		}
	}()

	wg.Wait()
	log.Print("teleop daemon stopped")
}

// applyFlags overlays explicitly set flags onto the loaded config.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.SetSerialPort(*serialPort)
		case "baud":
			cfg.SetBaudRate(*baudRate)
		case "push":
			cfg.SetPushMode(*pushMode)
		case "online-only":
			cfg.SetOnlineOnly(*onlineOnly)
		case "yaw":
			cfg.SetYawMode(*yawMode)
		case "workspace":
			cfg.SetWorkspace(*workspace)
		case "listen":
			cfg.AdminListen = adminListen
		}
	})
}

func openFramePublisher(ctx context.Context, cfg *config.Config) (zmq4.Socket, error) {
	if cfg.GetPushMode() {
		log.Printf("PUSH frames to %s", cfg.GetPushEndpoint())
		return zmqio.NewPush(ctx, cfg.GetPushEndpoint())
	}
	log.Printf("PUB frames on %s", cfg.GetFrameBind())
	return zmqio.NewPub(ctx, cfg.GetFrameBind())
}

func runKeyController(ctx context.Context, stop context.CancelFunc, gripper *teleop.Gripper) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		log.Printf("raw mode: %v (gripper keys disabled)", err)
		return
	}
	defer term.Restore(fd, oldState)

	log.Print("gripper keys: 1 open, 2 close, q quit")
	kc := teleop.NewKeyController(gripper, timeutil.RealClock{})
	err = kc.Run(ctx, os.Stdin)
	if err == teleop.ErrQuit {
		stop()
	} else if err != nil && err != context.Canceled && err != io.EOF {
		log.Printf("key controller: %v", err)
	}
}
