package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Duye0120/AirVoice/internal/ai"
	"github.com/Duye0120/AirVoice/internal/auth"
	"github.com/Duye0120/AirVoice/internal/config"
	"github.com/Duye0120/AirVoice/internal/history"
	"github.com/Duye0120/AirVoice/internal/inject"
	"github.com/Duye0120/AirVoice/internal/mdns"
	"github.com/Duye0120/AirVoice/internal/relay"
	"github.com/Duye0120/AirVoice/internal/storage"
)

// StartConfig holds flags for the start command.
type StartConfig struct {
	ConfigPath string
	Port       int
	NoAuth     bool
	NoMdns     bool
	NoQR       bool
}

func runStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)

	sc := &StartConfig{}
	fs.StringVar(&sc.ConfigPath, "config", "", "Path to config file (default: ~/.airvoice/config.toml)")
	fs.IntVar(&sc.Port, "port", 0, "Override the listen port")
	fs.BoolVar(&sc.NoAuth, "no-auth", false, "Disable pairing token checks (trusted networks only)")
	fs.BoolVar(&sc.NoMdns, "no-mdns", false, "Disable mDNS advertisement")
	fs.BoolVar(&sc.NoQR, "no-qr", false, "Do not print the pairing QR code")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: airvoice start [options]\n\nStart the host and wait for the phone to connect.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(sc.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if sc.Port != 0 {
		cfg.Port = sc.Port
	}
	if sc.NoAuth {
		cfg.RequireToken = false
	}
	if sc.NoMdns {
		cfg.MdnsEnabled = false
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to resolve data directory: %v\n", err)
			return 1
		}
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		fmt.Fprintf(stderr, "Error: failed to create data directory: %v\n", err)
		return 1
	}

	store, err := storage.NewSQLiteStore(filepath.Join(dataDir, "devices.db"))
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open device registry: %v\n", err)
		return 1
	}
	defer store.Close()

	guard, err := auth.NewTokenGuard()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	injector, err := inject.New()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize text injection: %v\n", err)
		fmt.Fprintf(stderr, "airvoice needs a desktop session to paste into.\n")
		return 1
	}

	hist := history.NewStore(dataDir)
	defer hist.Flush()

	optimizer := ai.NewService(
		config.NewAIStore(dataDir),
		config.NewRoleStore(dataDir),
		time.Duration(cfg.OptimizeTimeoutMs)*time.Millisecond,
	)

	registrar := auth.NewRegistrar(store)

	server := relay.NewServer(fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port))
	server.SetInjector(injector)
	server.SetOptimizer(optimizer)
	server.SetHistoryLog(hist)
	server.SetConnectRecorder(registrar.RecordConnect)
	server.SetActivityTracker(registrar.Touch)
	server.SetConnectionListener(func(connected bool) {
		if connected {
			fmt.Fprintln(stdout, "Phone connected")
		} else {
			fmt.Fprintln(stdout, "Phone disconnected, waiting for reconnect")
		}
	})
	server.SetTokenProvider(guard.Token)
	if cfg.RequireToken {
		server.SetRequireAuth(true)
		server.SetTokenValidator(guard.Validate)
	}

	// Re-print the QR code whenever the machine changes networks; the
	// old code would point the phone at a dead address.
	watcher := relay.NewAddressWatcher(func(old, addr string) {
		if old != "" {
			fmt.Fprintf(stdout, "Network changed: %s is now %s\n", old, addr)
		}
		if sc.NoQR {
			fmt.Fprintf(stdout, "Connect your phone to ws://%s:%d/ws\n", addr, cfg.Port)
			return
		}
		token := ""
		if cfg.RequireToken {
			token = guard.Token()
		}
		displayPairingQR(stdout, addr, cfg.Port, token)
	})
	server.SetAddressInfo(watcher.Current, cfg.Port)

	if err := <-server.StartAsync(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer server.Stop()

	watcher.Start()
	defer watcher.Stop()

	var advertiser *mdns.Advertiser
	if cfg.MdnsEnabled {
		advertiser = mdns.NewAdvertiser(mdns.Config{Port: cfg.Port})
		if err := advertiser.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: mDNS advertisement failed: %v\n", err)
		} else {
			defer advertiser.Stop()
		}
	}

	// Run until interrupted. SIGHUP rotates the pairing token, cutting
	// off anyone holding the old one.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for received := range sig {
		if received != syscall.SIGHUP {
			break
		}
		if _, err := guard.Rotate(); err != nil {
			fmt.Fprintf(stderr, "Warning: token rotation failed: %v\n", err)
			continue
		}
		fmt.Fprintln(stdout, "Pairing token rotated, previous token is no longer valid")
		token := ""
		if cfg.RequireToken {
			token = guard.Token()
		}
		if sc.NoQR {
			fmt.Fprintf(stdout, "Connect your phone to ws://%s:%d/ws\n", watcher.Current(), cfg.Port)
		} else {
			displayPairingQR(stdout, watcher.Current(), cfg.Port, token)
		}
	}

	fmt.Fprintln(stdout, "Shutting down")
	return 0
}
