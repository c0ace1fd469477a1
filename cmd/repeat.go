package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Duye0120/AirVoice/internal/config"
)

func runRepeat(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("repeat", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var port int
	fs.IntVar(&port, "port", config.DefaultPort, "Port of the running host")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(fmt.Sprintf("http://127.0.0.1:%d/api/repeat", port), "application/json", nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: could not reach the host on port %d.\n", port)
		fmt.Fprintln(stderr, "Start it with: airvoice start")
		return 1
	}
	defer resp.Body.Close()

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fmt.Fprintf(stderr, "Error: unexpected response from host: %v\n", err)
		return 1
	}

	if !result.OK {
		if result.Error != "" {
			fmt.Fprintf(stderr, "Error: %s\n", result.Error)
		} else {
			fmt.Fprintf(stderr, "Error: repeat failed (status %d)\n", resp.StatusCode)
		}
		return 1
	}

	fmt.Fprintln(stdout, "Repeated last delivered text.")
	return 0
}
