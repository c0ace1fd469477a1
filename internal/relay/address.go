package relay

import (
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

// pollInterval is how often the watcher re-checks the LAN address.
// Network switches (wifi roaming, cable plug) are rare; five seconds
// keeps the QR code fresh without meaningful cost.
const pollInterval = 5 * time.Second

// virtualNames marks interfaces that carry a private address but are
// useless for a phone on the real LAN. Matching is by substring on the
// lowercased interface name.
var virtualNames = []string{
	"vmware",
	"virtual",
	"vbox",
	"docker",
	"wsl",
	"hyper-v",
}

// ifaceAddr is one IPv4 address with the name of its interface.
type ifaceAddr struct {
	name string
	ip   net.IP
}

// listAddrs enumerates usable IPv4 addresses. Overridable in tests.
var listAddrs = func() ([]ifaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []ifaceAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil {
				continue
			}
			out = append(out, ifaceAddr{name: iface.Name, ip: ip})
		}
	}
	return out, nil
}

// LocalAddress returns the best guess for the LAN IPv4 address the
// phone should connect to. It never fails; when nothing better exists
// the loopback address is returned so the QR code still renders.
//
// Selection runs in two passes. The first pass skips virtual adapters
// (VM bridges, docker, WSL) and prefers home-network ranges, since a
// machine running VM software often exposes several private addresses
// a phone cannot reach. The second pass accepts any non-virtual
// address. When only virtual adapters remain, loopback wins.
func LocalAddress() string {
	addrs, err := listAddrs()
	if err != nil || len(addrs) == 0 {
		return "127.0.0.1"
	}

	// First pass: physical interface on a typical home network.
	for _, a := range addrs {
		if isVirtualName(a.name) {
			continue
		}
		s := a.ip.String()
		if strings.HasPrefix(s, "192.168.") || strings.HasPrefix(s, "10.") {
			return s
		}
	}

	// Second pass: any physical interface.
	for _, a := range addrs {
		if !isVirtualName(a.name) {
			return a.ip.String()
		}
	}

	// Everything is virtual; a phone cannot reach those anyway.
	return "127.0.0.1"
}

// isVirtualName reports whether the interface name looks like a
// virtualization adapter.
func isVirtualName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range virtualNames {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// AddressWatcher polls the LAN address and notifies on change. The
// host uses it to refresh the pairing QR code and the /api/info
// response when the machine moves between networks.
type AddressWatcher struct {
	onChange func(old, new string)
	interval time.Duration

	mu      sync.Mutex
	current string
	stop    chan struct{}
	stopped bool
}

// NewAddressWatcher creates a watcher that calls onChange with the
// previous and new address whenever they differ. onChange is also
// called once when Start runs, with an empty old address.
func NewAddressWatcher(onChange func(old, new string)) *AddressWatcher {
	return &AddressWatcher{
		onChange: onChange,
		interval: pollInterval,
		stop:     make(chan struct{}),
	}
}

// Current returns the most recently observed address.
func (w *AddressWatcher) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == "" {
		return LocalAddress()
	}
	return w.current
}

// Start begins polling in a background goroutine.
func (w *AddressWatcher) Start() {
	initial := LocalAddress()

	w.mu.Lock()
	w.current = initial
	w.mu.Unlock()

	if w.onChange != nil {
		w.onChange("", initial)
	}

	go w.run()
}

func (w *AddressWatcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			addr := LocalAddress()

			w.mu.Lock()
			prev := w.current
			changed := addr != prev
			if changed {
				w.current = addr
			}
			w.mu.Unlock()

			if changed {
				log.Printf("relay: local address changed from %s to %s", prev, addr)
				if w.onChange != nil {
					w.onChange(prev, addr)
				}
			}
		}
	}
}

// Stop halts polling. Safe to call multiple times.
func (w *AddressWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stop)
}
