// Command mobileclient is an interactive test client that stands in for the
// phone app. It connects to a running airvoice host, prints every pushed
// message, and sends each stdin line as a text message.
//
// Usage: go run ./cmd/mobileclient -host 192.168.1.10 -port 23456 -token <token>
//
// Special input lines:
//
//	/optimize <text>   request a preview without delivering
//	/confirm <id>      confirm a manually previewed message
//	/clear             clear the host's history
//	/resume            retry after a pairing rejection
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Duye0120/AirVoice/internal/client"
	"github.com/Duye0120/AirVoice/internal/config"
	"github.com/Duye0120/AirVoice/internal/history"
	"github.com/Duye0120/AirVoice/internal/relay"
)

func main() {
	var (
		host    = flag.String("host", "127.0.0.1", "Host address")
		port    = flag.Int("port", config.DefaultPort, "Host port")
		token   = flag.String("token", "", "Pairing token")
		name    = flag.String("name", "mobileclient", "Device name reported to the host")
		execute = flag.Bool("execute", false, "Press Enter after each delivered text")
	)
	flag.Parse()

	session := client.New(client.Config{
		Host:       *host,
		Port:       *port,
		Token:      *token,
		DeviceName: *name,
		OnMessage: func(msg relay.Message) {
			printMessage(msg)
		},
		OnStateChange: func(state client.State) {
			fmt.Printf("-- state: %s\n", state)
		},
	})

	if err := session.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer session.Close()

	fmt.Printf("Connecting to %s:%d. Type text and press Enter to send.\n", *host, *port)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch {
		case line == "/resume":
			err = session.Resume()
		case line == "/clear":
			err = session.ClearHistory()
		case strings.HasPrefix(line, "/optimize "):
			_, err = session.RequestOptimize(strings.TrimPrefix(line, "/optimize "), *execute)
		case strings.HasPrefix(line, "/confirm "):
			var id int64
			id, err = strconv.ParseInt(strings.TrimPrefix(line, "/confirm "), 10, 64)
			if err == nil {
				err = session.Confirm(id, "")
			}
		default:
			_, err = session.SendText(line, *execute)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		}
	}
}

func printMessage(msg relay.Message) {
	switch msg.Type {
	case relay.MessageTypeAck:
		fmt.Printf("<- ack id=%d\n", msg.ID)
	case relay.MessageTypeOptimized:
		fmt.Printf("<- optimized id=%d\n   original:  %s\n   optimized: %s\n", msg.ID, msg.Original, msg.Optimized)
	case relay.MessageTypeAIConfig:
		enabled := false
		if msg.AIEnabled != nil {
			enabled = *msg.AIEnabled
		}
		fmt.Printf("<- ai-config enabled=%v\n", enabled)
	case relay.MessageTypeHistory:
		fmt.Printf("<- history (%d items)\n", len(msg.History))
		shown := msg.History
		if len(shown) > history.InitialItems {
			shown = shown[:history.InitialItems]
		}
		for _, item := range shown {
			fmt.Printf("   %s\n", item.Text)
		}
	default:
		fmt.Printf("<- %s %s\n", msg.Type, msg.Content)
	}
}
