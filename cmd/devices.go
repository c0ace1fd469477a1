package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/Duye0120/AirVoice/internal/config"
	"github.com/Duye0120/AirVoice/internal/storage"
)

// openRegistry opens the device registry in the configured data dir.
func openRegistry(dataDir string) (*storage.SQLiteStore, error) {
	if dataDir == "" {
		var err error
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data directory: %w", err)
		}
	}
	return storage.NewSQLiteStore(filepath.Join(dataDir, "devices.db"))
}

func runDevicesList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devices list", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dataDir string
	fs.StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.airvoice)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	store, err := openRegistry(dataDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	devices, err := store.ListDevices()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(devices) == 0 {
		fmt.Fprintln(stdout, "No paired devices.")
		return 0
	}

	fmt.Fprintf(stdout, "%-38s %-20s %-12s %s\n", "ID", "NAME", "LAST SEEN", "ADDRESS")
	for _, device := range devices {
		fmt.Fprintf(stdout, "%-38s %-20s %-12s %s\n",
			device.ID,
			device.Name,
			formatAge(device.LastSeen),
			device.RemoteAddr,
		)
	}
	return 0
}

func runDevicesRemove(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devices remove", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dataDir string
	fs.StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.airvoice)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Usage: airvoice devices remove <device-id>")
		return 1
	}
	deviceID := fs.Arg(0)

	store, err := openRegistry(dataDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	device, err := store.GetDevice(deviceID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if device == nil {
		fmt.Fprintf(stderr, "Device not found: %s\n", deviceID)
		return 1
	}

	if err := store.DeleteDevice(deviceID); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Removed device %s (%s)\n", deviceID, device.Name)
	return 0
}

// formatAge renders a timestamp as a short relative age.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
