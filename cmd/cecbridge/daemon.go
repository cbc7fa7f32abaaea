package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corvidae/cecbridge/pkg/ampclient"
	"github.com/corvidae/cecbridge/pkg/bridgeengine"
	"github.com/corvidae/cecbridge/pkg/config"
	"github.com/corvidae/cecbridge/pkg/discovery"
	"github.com/corvidae/cecbridge/pkg/eventpolicy"
	"github.com/corvidae/cecbridge/pkg/keyboardinput"
	"github.com/corvidae/cecbridge/pkg/logging"
	"github.com/corvidae/cecbridge/pkg/statusapi"
	"github.com/corvidae/cecbridge/pkg/supervisor"
)

// runDaemon implements the `daemon` subcommand: load config, resolve the
// amplifier target (explicit flags > config > mDNS discovery), then either
// drive the protocol engine from a real CEC adapter (via pkg/supervisor)
// or from the keyboard (pkg/keyboardinput).
func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	input := fs.String("input", "cec", "input source: cec or keyboard")
	configPath := fs.String("config", "", "config file path (default: XDG config dir)")
	pidFilePath := fs.String("pidfile", "", "PID file path")
	statusAddr := fs.String("status-addr", "", "optional host:port for the HTTP/websocket status surface")
	ip := fs.String("ip", "", "override the amplifier IP from config")
	port := fs.Int("port", 0, "override the amplifier port from config")
	basePath := fs.String("base-path", "", "override the amplifier API base path from config")
	discoverTimeout := fs.Float64("discover-timeout", 0, "override target.discover_timeout from config")
	index := fs.Int("index", -1, "service index when multiple are discovered")
	cecDevice := fs.String("cec-device", "", "override cec_device from config")
	cecOSDName := fs.String("cec-osd-name", "", "override cec_osd_name from config")
	cecVendorCompat := fs.String("cec-vendor-compat", "", "override cec_vendor_compat from config (none|samsung)")
	fs.Parse(args)

	if *input != "cec" && *input != "keyboard" {
		fmt.Fprintf(os.Stderr, "Error: --input must be cec or keyboard, got %q\n", *input)
		return 2
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
		return 2
	}
	if *ip != "" {
		cfg.Target.IP = *ip
	}
	if *port != 0 {
		cfg.Target.Port = *port
	}
	if *basePath != "" {
		cfg.Target.BasePath = config.NormalizeBasePath(*basePath)
	}
	if *discoverTimeout != 0 {
		cfg.Target.DiscoverTimeout = *discoverTimeout
	}
	if *cecDevice != "" {
		cfg.CECDevice = *cecDevice
	}
	if *cecOSDName != "" {
		cfg.CECOSDName = *cecOSDName
	}
	if *cecVendorCompat != "" {
		cfg.CECVendorCompat = config.VendorCompat(*cecVendorCompat)
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Daemon error: invalid configuration: %v\n", err)
		return 2
	}

	resolveCtx, resolveCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Target.DiscoverTimeout*float64(time.Second))+time.Second)
	target, err := resolveDaemonTarget(resolveCtx, cfg, *index)
	resolveCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
		return 2
	}
	cfg.Target.IP = target.Address
	cfg.Target.Port = target.Port
	cfg.Target.BasePath = target.BasePath

	actualPidFile := *pidFilePath
	if actualPidFile == "" {
		actualPidFile = getDefaultPidFile()
	}
	targetDesc := fmt.Sprintf("%s:%d", cfg.Target.IP, cfg.Target.Port)
	if err := createPidFile(actualPidFile, targetDesc); err != nil {
		fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
		return 2
	}
	defer removePidFile(actualPidFile)

	log, err := logging.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Daemon error: failed to initialize logging: %v\n", err)
		return 2
	}
	defer log.Close()

	log.Infof("main", "cecbridge starting (input=%s, target=%s:%d%s)", *input, cfg.Target.IP, cfg.Target.Port, cfg.Target.BasePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("main", "shutting down...")
		cancel()
	}()

	amp := ampclient.New(cfg.Target.IP, cfg.Target.Port, cfg.Target.BasePath)

	var runErr error
	if *input == "keyboard" {
		policy := eventpolicy.New(secondsToDuration(cfg.DedupeWindowS), secondsToDuration(cfg.MinIntervalS))
		engine := bridgeengine.New(cfg, amp, nil, policy, log)

		if cfg.StatusAddr != "" {
			go runStatusAPI(ctx, engine, log, cfg.StatusAddr)
		}

		go func() {
			if err := engine.Watch(ctx); err != nil {
				log.Errorf("bridgeengine", "watcher stopped: %v", err)
			}
		}()

		log.Info("main", "keyboard input started (u/+ up, d/- down, m mute, q quit)")
		kbd := keyboardinput.NewStdin(os.Stdin, int(os.Stdin.Fd()))
		runErr = kbd.Run(ctx, engine)
	} else {
		sup := supervisor.New(cfg, amp, log)

		if cfg.StatusAddr != "" {
			go waitAndRunStatusAPI(ctx, sup, log, cfg.StatusAddr)
		}

		runErr = sup.Run(ctx)
	}

	if runErr != nil {
		log.Errorf("main", "daemon error: %v", runErr)
		return 2
	}
	log.Info("main", "cecbridge stopped")
	return 0
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// runStatusAPI starts the optional status server against a ready engine.
func runStatusAPI(ctx context.Context, engine *bridgeengine.Engine, log *logging.Logger, addr string) {
	srv := statusapi.New(engine, log)
	if err := srv.Run(ctx, addr); err != nil {
		log.Errorf("statusapi", "status server stopped: %v", err)
	}
}

// waitAndRunStatusAPI polls the supervisor for its first live engine
// (nil between cycles, per supervisor.Engine's doc comment) before
// starting the status server, since a CEC adapter open can fail and
// retry several times before the engine exists.
func waitAndRunStatusAPI(ctx context.Context, sup *supervisor.Supervisor, log *logging.Logger, addr string) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if eng := sup.Engine(); eng != nil {
			runStatusAPI(ctx, eng, log, addr)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type targetResult struct {
	Address  string
	Port     int
	BasePath string
}

// resolveDaemonTarget picks the amplifier to drive: an explicit target.ip
// in the (possibly flag-overridden) config wins outright; otherwise fall
// back to mDNS discovery using target.discover_timeout / target.index.
func resolveDaemonTarget(ctx context.Context, cfg *config.Config, indexOverride int) (targetResult, error) {
	if cfg.Target.IP != "" {
		return targetResult{Address: cfg.Target.IP, Port: cfg.Target.Port, BasePath: cfg.Target.BasePath}, nil
	}

	timeout := time.Duration(cfg.Target.DiscoverTimeout * float64(time.Second))
	services, err := discovery.Discover(ctx, "", timeout)
	if err != nil {
		return targetResult{}, fmt.Errorf("discovery failed: %w", err)
	}

	index := cfg.Target.Index
	hasIndex := index != 0
	if indexOverride >= 0 {
		index = indexOverride
		hasIndex = true
	}
	picked, err := pickService(services, index, hasIndex)
	if err != nil {
		return targetResult{}, err
	}
	return targetResult{Address: picked.Address, Port: picked.Port, BasePath: picked.BasePath}, nil
}
