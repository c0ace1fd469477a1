package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/Duye0120/AirVoice/internal/config"
)

// PairConfig holds flags for the pair command.
type PairConfig struct {
	Port int
	QR   bool
}

func runPair(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pair", flag.ContinueOnError)
	fs.SetOutput(stderr)

	pc := &PairConfig{}
	fs.IntVar(&pc.Port, "port", config.DefaultPort, "Port of the running host")
	fs.BoolVar(&pc.QR, "qr", true, "Display pairing information as a QR code")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: airvoice pair [options]\n\nShow pairing info for the running host.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	info, err := fetchPairingInfo(pc.Port)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "\nThe host must be running. Start it with: airvoice start\n")
		return 1
	}

	if pc.QR {
		displayPairingQR(stdout, info.IP, info.Port, info.Token)
	} else {
		displayPairingText(stdout, info.IP, info.Port, info.Token)
	}
	return 0
}

// pairingInfo mirrors the /api/pairing response.
type pairingInfo struct {
	IP    string `json:"ip"`
	Port  int    `json:"port"`
	Token string `json:"token"`
}

// fetchPairingInfo queries the running host. The endpoint only answers
// loopback requests, so this always talks to localhost.
func fetchPairingInfo(port int) (*pairingInfo, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/api/pairing", port))
	if err != nil {
		return nil, fmt.Errorf("could not connect to host on port %d: %w", port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("host returned status %d", resp.StatusCode)
	}

	var info pairingInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

// pairingURL builds the QR payload the mobile app parses.
func pairingURL(ip string, port int, token string) string {
	u := fmt.Sprintf("airvoice://pair?host=%s&port=%d", url.QueryEscape(ip), port)
	if token != "" {
		u += "&token=" + url.QueryEscape(token)
	}
	return u
}

// displayPairingQR shows the pairing info as a QR code with a
// plain-text fallback.
func displayPairingQR(w io.Writer, ip string, port int, token string) {
	payload := pairingURL(ip, port, token)

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Falling back to text display.\n\n")
		displayPairingText(w, ip, port, token)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO PAIR")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")

	// Compact ASCII rendering using half-block characters.
	fmt.Fprint(w, qr.ToSmallString(false))

	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintln(w, "  Plain-text fallback:")
	fmt.Fprintf(w, "  Host:  %s:%d\n", ip, port)
	if token != "" {
		fmt.Fprintf(w, "  Token: %s\n", token)
	}
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// displayPairingText shows pairing info without a QR code.
func displayPairingText(w io.Writer, ip string, port int, token string) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         PAIRING INFO")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "  Host:  %s:%d\n", ip, port)
	if token != "" {
		fmt.Fprintf(w, "  Token: %s\n", token)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  Enter these values in the mobile app,")
	fmt.Fprintln(w, "  or scan the QR code from 'airvoice start'.")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}
