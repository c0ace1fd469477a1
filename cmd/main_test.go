package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func runWithArgs(args []string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, out, _ := runWithArgs([]string{"airvoice"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("expected usage output, got %q", out)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"airvoice", "nope"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Unknown command") {
		t.Fatalf("expected unknown command output, got %q", out)
	}
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runWithArgs([]string{"airvoice", "version"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "airvoice") || !strings.Contains(out, Version) {
		t.Fatalf("expected version output, got %q", out)
	}
}

func TestRunDevicesMissingSubcommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"airvoice", "devices"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Usage: airvoice devices") {
		t.Fatalf("expected devices usage, got %q", out)
	}
}

func TestStartHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runStart([]string{"--help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stderr.String(), "-port") {
		t.Fatalf("expected port flag in usage, got %q", stderr.String())
	}
}

func TestStartInvalidFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runStart([]string{"--port=bad"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected error output for invalid flag")
	}
}

func TestStartMissingConfigFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runStart([]string{"--config", filepath.Join(t.TempDir(), "nope.toml")}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "config file not found") {
		t.Fatalf("expected config error, got %q", stderr.String())
	}
}

func TestDevicesRemoveMissingID(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runDevicesRemove([]string{"--data-dir", t.TempDir()}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage: airvoice devices remove") {
		t.Fatalf("expected usage error, got %q", stderr.String())
	}
}

func TestDevicesListEmpty(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runDevicesList([]string{"--data-dir", t.TempDir()}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr: %s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "No paired devices") {
		t.Fatalf("expected empty list message, got %q", stdout.String())
	}
}

func TestDevicesRemoveUnknownDevice(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runDevicesRemove([]string{"--data-dir", t.TempDir(), "ghost-id"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "not found") {
		t.Fatalf("expected not-found error, got %q", stderr.String())
	}
}

func TestPairHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runPair([]string{"--help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stderr.String(), "-port") {
		t.Fatalf("expected pair usage, got %q", stderr.String())
	}
}

func TestPairNoRunningHost(t *testing.T) {
	var stdout, stderr bytes.Buffer
	// Port 1 is never a running airvoice host.
	code := runPair([]string{"--port", "1"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "airvoice start") {
		t.Fatalf("expected start hint, got %q", stderr.String())
	}
}

func TestRepeatNoRunningHost(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runRepeat([]string{"--port", "1"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "could not reach the host") {
		t.Fatalf("expected unreachable error, got %q", stderr.String())
	}
}

func TestFormatAge(t *testing.T) {
	if got := formatAge(time.Time{}); got != "never" {
		t.Errorf("formatAge(zero) = %q, want never", got)
	}
	if got := formatAge(time.Now().Add(-30 * time.Second)); got != "just now" {
		t.Errorf("formatAge(30s) = %q, want just now", got)
	}
	if got := formatAge(time.Now().Add(-2 * time.Hour)); got != "2h ago" {
		t.Errorf("formatAge(2h) = %q, want 2h ago", got)
	}
}
