package relay

import (
	"encoding/json"
	"log"
	"net"
	"net/http"

	apperrors "github.com/Duye0120/AirVoice/internal/errors"
	"github.com/Duye0120/AirVoice/internal/history"
)

// AddressFunc returns the LAN address the phone should connect to.
type AddressFunc func() string

// TokenProvider returns the current pairing token.
type TokenProvider func() string

// SetTokenProvider configures the /api/pairing endpoint.
func (s *Server) SetTokenProvider(provider TokenProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenProvider = provider
}

// SetAddressInfo configures the /api/info endpoint. addressFunc is
// called per request so the reported IP tracks network changes; port
// is the advertised WebSocket port.
func (s *Server) SetAddressInfo(addressFunc AddressFunc, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addressFunc = addressFunc
	s.infoPort = port
}

// createMux builds the HTTP router for the relay server.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/pairing", s.handlePairing)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/verify", s.handleVerify)
	mux.HandleFunc("/api/repeat", s.handleRepeat)

	return mux
}

// handleInfo reports the connection details the pairing flow embeds in
// the QR code.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	addressFunc := s.addressFunc
	port := s.infoPort
	connected := s.client != nil
	s.mu.RUnlock()

	ip := ""
	if addressFunc != nil {
		ip = addressFunc()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ip":        ip,
		"port":      port,
		"connected": connected,
	})
}

// handlePairing returns everything the pair command needs to render a
// QR code, including the token. Restricted to loopback so a device on
// the LAN cannot fetch the token it is supposed to prove possession of.
func (s *Server) handlePairing(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	s.mu.RLock()
	addressFunc := s.addressFunc
	port := s.infoPort
	provider := s.tokenProvider
	s.mu.RUnlock()

	ip := ""
	if addressFunc != nil {
		ip = addressFunc()
	}
	token := ""
	if provider != nil {
		token = provider()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ip":    ip,
		"port":  port,
		"token": token,
	})
}

// isLoopback reports whether the remote address is a loopback address.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// handleHistory returns the recent delivery history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items := s.recentHistory(history.ConnectItems)
	if items == nil {
		items = []history.Item{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": items,
	})
}

// handleVerify checks a pairing token without opening a WebSocket.
// The phone uses this to validate a scanned QR code before switching
// to the connection screen.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	requireAuth := s.requireAuth
	validator := s.tokenValidator
	s.mu.RUnlock()

	if !requireAuth || validator == nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": true})
		return
	}

	token := r.URL.Query().Get("token")
	if !validator(token) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// handleRepeat re-delivers the last text. Bound to the CLI repeat
// command; only reachable from the host itself or the LAN.
func (s *Server) handleRepeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	injector := s.injector
	s.mu.RUnlock()

	if injector == nil {
		http.Error(w, "injector not configured", http.StatusServiceUnavailable)
		return
	}

	if err := injector.RepeatLast(); err != nil {
		log.Printf("relay: repeat failed: %v", err)
		code, message := apperrors.ToCodeAndMessage(err)
		writeJSON(w, http.StatusConflict, map[string]any{
			"ok":    false,
			"code":  code,
			"error": message,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("relay: failed to encode response: %v", err)
	}
}
