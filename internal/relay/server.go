// Package relay hosts the WebSocket endpoint the phone connects to and
// routes protocol messages to the injector, optimizer, and history log.
//
// Exactly one phone is served at a time. A new connection supersedes
// the previous one so switching phones or recovering from a half-dead
// connection never requires restarting the host.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Duye0120/AirVoice/internal/config"
	"github.com/Duye0120/AirVoice/internal/history"
)

// sendBufferSize is the buffer for the outgoing message channel. The
// protocol is low-volume (one message per utterance) so a small buffer
// absorbs any realistic burst.
const sendBufferSize = 64

// pendingTTL is how long an unconfirmed optimization preview is kept.
// The phone may never confirm (user dismissed the preview), so stale
// entries are swept out instead of accumulating.
const pendingTTL = 10 * time.Minute

// textRateLimit bounds inbound text messages per second, with a small
// burst. Dictation produces at most a message every few seconds; the
// limit only matters for a misbehaving client.
const (
	textRateLimit = rate.Limit(10)
	textRateBurst = 20
)

// Deliverer injects text into the focused application.
type Deliverer interface {
	Deliver(text string, execute bool) error
	RepeatLast() error
}

// Optimizer cleans up dictated text before delivery.
type Optimizer interface {
	Optimize(ctx context.Context, text string) (string, error)
	Enabled() bool
	Mode() config.OptimizeMode
}

// HistoryLog records delivered text.
type HistoryLog interface {
	Append(text string)
	Recent(n int) []history.Item
	Clear()
}

// TokenValidator checks the pairing token presented by a client.
type TokenValidator func(token string) bool

// ConnectRecorder is called when a client authenticates successfully.
// It returns the device ID to associate with the connection.
type ConnectRecorder func(deviceID, deviceName, remoteAddr string) string

// ActivityTracker is called when a message arrives from a connected
// device, allowing last-seen bookkeeping.
type ActivityTracker func(deviceID string)

// ConnectionListener is notified when the phone connects or
// disconnects. A supersede fires no event; the session stays connected.
type ConnectionListener func(connected bool)

// pendingOptimization is a preview waiting for the phone's confirm.
type pendingOptimization struct {
	text    string
	execute bool
	created time.Time
}

// Server accepts the phone's WebSocket connection and serves the
// protocol. Create with NewServer, configure with the Set* methods,
// then call Start or StartAsync.
type Server struct {
	addr     string
	upgrader websocket.Upgrader

	// mu protects client, stopped, and the handler fields.
	mu      sync.RWMutex
	client  *Client
	stopped bool

	httpServer *http.Server

	injector   Deliverer
	optimizer  Optimizer
	historyLog HistoryLog

	tokenValidator  TokenValidator
	requireAuth     bool
	connectRecorder ConnectRecorder
	activityTracker ActivityTracker
	connListener    ConnectionListener

	// addressFunc and infoPort feed the /api/info endpoint;
	// tokenProvider feeds the loopback-only /api/pairing endpoint.
	addressFunc   AddressFunc
	infoPort      int
	tokenProvider TokenProvider

	// pending holds optimization previews keyed by message id.
	pendingMu sync.Mutex
	pending   map[int64]pendingOptimization

	// timeNow is overridable in tests.
	timeNow func() time.Time
}

// Client is the single active WebSocket connection.
type Client struct {
	conn *websocket.Conn

	// send is the buffered outgoing message channel drained by writePump.
	send chan Message

	// done is closed to signal shutdown. closeSend makes the close
	// idempotent; both supersede and readPump teardown may trigger it.
	done     chan struct{}
	sendOnce sync.Once

	server   *Server
	deviceID string

	// textLimiter bounds inbound text messages.
	textLimiter *rate.Limiter
}

// closeSend signals the client to shut down exactly once.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// NewServer creates a relay server listening on addr.
func NewServer(addr string) *Server {
	return &Server{
		addr:    addr,
		pending: make(map[int64]pendingOptimization),
		timeNow: time.Now,
		upgrader: websocket.Upgrader{
			// The phone connects from a capacitor/webview origin that
			// varies by platform, so origin checking buys nothing here.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SetInjector sets the text deliverer. Must be set before Start.
func (s *Server) SetInjector(injector Deliverer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injector = injector
}

// SetOptimizer sets the AI optimizer. Optional; without it all text is
// delivered verbatim.
func (s *Server) SetOptimizer(optimizer Optimizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optimizer = optimizer
}

// SetHistoryLog sets the delivery history log. Optional.
func (s *Server) SetHistoryLog(historyLog HistoryLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyLog = historyLog
}

// SetTokenValidator sets the pairing token check for /ws and
// /api/verify. When requireAuth is true, connections without a valid
// token are closed with a policy violation.
func (s *Server) SetTokenValidator(validator TokenValidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenValidator = validator
}

// SetRequireAuth controls whether a valid token is required to connect.
func (s *Server) SetRequireAuth(require bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireAuth = require
}

// SetConnectRecorder sets the device registry callback.
func (s *Server) SetConnectRecorder(recorder ConnectRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectRecorder = recorder
}

// SetActivityTracker sets the last-seen callback.
func (s *Server) SetActivityTracker(tracker ActivityTracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activityTracker = tracker
}

// SetConnectionListener sets the connect/disconnect callback.
func (s *Server) SetConnectionListener(listener ConnectionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connListener = listener
}

// notifyConnection fires the connection listener outside the lock.
func (s *Server) notifyConnection(connected bool) {
	s.mu.RLock()
	listener := s.connListener
	s.mu.RUnlock()
	if listener != nil {
		listener(connected)
	}
}

// Start begins serving. This method blocks; use StartAsync for
// non-blocking startup with error reporting.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.createMux(),
	}

	log.Printf("relay: listening on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

// StartAsync starts the server in a goroutine. The returned channel
// receives nil once the listener is up, or the startup error.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.httpServer = &http.Server{
		Handler: s.createMux(),
	}

	go func() {
		log.Printf("relay: listening on %s", s.addr)
		errCh <- nil
		close(errCh)

		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("relay: server error: %v", err)
		}
	}()

	return errCh
}

// Stop shuts down the server and closes the active connection.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	if s.client != nil {
		s.client.closeSend()
		s.client = nil
	}
	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Connected reports whether a phone is currently connected.
func (s *Server) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Send queues a message for the connected phone.
// Returns false when no phone is connected or the buffer is full.
func (s *Server) Send(msg Message) bool {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	if client == nil {
		return false
	}

	select {
	case <-client.done:
		return false
	case client.send <- msg:
		return true
	default:
		log.Printf("relay: send buffer full, dropping %s message", msg.Type)
		return false
	}
}

// handleWebSocket upgrades the connection and runs the protocol.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	requireAuth := s.requireAuth
	validator := s.tokenValidator
	recorder := s.connectRecorder
	s.mu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay: upgrade failed: %v", err)
		return
	}

	// The token travels as a query parameter because browser WebSocket
	// clients cannot set custom headers.
	if requireAuth && validator != nil {
		token := r.URL.Query().Get("token")
		if !validator(token) {
			log.Printf("relay: rejected connection from %s: invalid token", r.RemoteAddr)
			deadline := time.Now().Add(time.Second)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
				deadline)
			conn.Close()
			return
		}
	}

	deviceID := r.URL.Query().Get("deviceId")
	deviceName := r.URL.Query().Get("deviceName")
	if recorder != nil {
		deviceID = recorder(deviceID, deviceName, r.RemoteAddr)
	}

	client := &Client{
		conn:        conn,
		send:        make(chan Message, sendBufferSize),
		done:        make(chan struct{}),
		server:      s,
		deviceID:    deviceID,
		textLimiter: rate.NewLimiter(textRateLimit, textRateBurst),
	}

	// Exactly one phone at a time: a new connection supersedes the old.
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return
	}
	superseded := s.client != nil
	if superseded {
		log.Printf("relay: superseding previous connection")
		s.client.closeSend()
	}
	s.client = client
	s.mu.Unlock()

	log.Printf("relay: client connected from %s", r.RemoteAddr)
	if !superseded {
		s.notifyConnection(true)
	}

	go client.writePump()

	// Bring the phone up to date before it sends anything.
	client.send <- NewAIConfigMessage(s.optimizerEnabled())
	client.send <- NewHistoryMessage(s.recentHistory(history.ConnectItems))

	go client.readPump()
}

// optimizerEnabled reports the current optimizer availability.
func (s *Server) optimizerEnabled() bool {
	s.mu.RLock()
	optimizer := s.optimizer
	s.mu.RUnlock()
	return optimizer != nil && optimizer.Enabled()
}

// recentHistory returns up to n history items, newest first.
func (s *Server) recentHistory(n int) []history.Item {
	s.mu.RLock()
	historyLog := s.historyLog
	s.mu.RUnlock()

	if historyLog == nil {
		return nil
	}
	return historyLog.Recent(n)
}

// writePump serializes outgoing messages and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("relay: failed to marshal message: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("relay: write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads and dispatches messages sequentially. Processing one
// message at a time keeps delivery order identical to send order; the
// clipboard is a shared resource that concurrent pastes would corrupt.
func (c *Client) readPump() {
	defer func() {
		c.server.mu.Lock()
		wasCurrent := c.server.client == c
		if wasCurrent {
			c.server.client = nil
		}
		c.server.mu.Unlock()

		c.closeSend()
		log.Printf("relay: client disconnected")

		// A superseded connection's teardown is not a session change.
		if wasCurrent {
			c.server.notifyConnection(false)
		}
	}()

	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Printf("relay: read error: %v", err)
			}
			return
		}

		if c.deviceID != "" {
			c.server.mu.RLock()
			tracker := c.server.activityTracker
			c.server.mu.RUnlock()
			if tracker != nil {
				tracker(c.deviceID)
			}
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed input is dropped, not fatal: a glitchy client
			// should not lose its connection over one bad frame.
			log.Printf("relay: dropping malformed message: %v", err)
			continue
		}

		switch msg.Type {
		case MessageTypeText:
			if !c.textLimiter.Allow() {
				log.Printf("relay: text rate limit exceeded, dropping message")
				continue
			}
			c.handleText(msg)
		case MessageTypeOptimize:
			c.handleOptimize(msg)
		case MessageTypeConfirm:
			c.handleConfirm(msg)
		case MessageTypeClearHistory:
			c.handleClearHistory()
		default:
			log.Printf("relay: dropping message with unknown type %q", msg.Type)
		}
	}
}

// handleText processes a delivery request. Text is the direct path:
// only auto mode transforms it, every other mode delivers it as is.
// The manual preview flow runs through the optimize message instead.
func (c *Client) handleText(msg Message) {
	if msg.Content == "" {
		log.Printf("relay: dropping text message with empty content")
		return
	}

	s := c.server
	s.mu.RLock()
	optimizer := s.optimizer
	s.mu.RUnlock()

	text := msg.Content
	if optimizer != nil && optimizer.Enabled() && optimizer.Mode() == config.OptimizeAuto {
		optimized, err := optimizer.Optimize(context.Background(), msg.Content)
		if err != nil {
			// Fail open: dictation keeps working when the provider is
			// down or unreachable.
			log.Printf("relay: optimization failed, delivering original: %v", err)
		} else {
			text = optimized
		}
	}

	c.deliverAndAck(text, msg.Execute, msg.ID)
}

// handleOptimize processes an explicit preview request (manual mode).
func (c *Client) handleOptimize(msg Message) {
	if msg.Content == "" || msg.ID == 0 {
		log.Printf("relay: dropping optimize message with missing content or id")
		return
	}

	s := c.server
	s.mu.RLock()
	optimizer := s.optimizer
	s.mu.RUnlock()

	optimized := msg.Content
	if optimizer != nil && optimizer.Enabled() {
		result, err := optimizer.Optimize(context.Background(), msg.Content)
		if err != nil {
			log.Printf("relay: optimization failed, previewing original: %v", err)
		} else {
			optimized = result
		}
	}

	s.storePending(msg.ID, optimized, msg.Execute)
	c.trySend(NewOptimizedMessage(msg.ID, msg.Content, optimized, msg.Execute))
}

// handleConfirm delivers a previously previewed optimization.
// Content, when present, overrides the preview (the user edited it on
// the phone).
func (c *Client) handleConfirm(msg Message) {
	if msg.ID == 0 {
		log.Printf("relay: dropping confirm message without id")
		return
	}

	pending, ok := c.server.takePending(msg.ID)

	text := msg.Content
	execute := msg.Execute
	if ok {
		if text == "" {
			text = pending.text
		}
		execute = execute || pending.execute
	}

	if text == "" {
		log.Printf("relay: dropping confirm for unknown id %d with no content", msg.ID)
		return
	}

	c.deliverAndAck(text, execute, msg.ID)
}

// handleClearHistory wipes the history and pushes the empty result.
func (c *Client) handleClearHistory() {
	s := c.server
	s.mu.RLock()
	historyLog := s.historyLog
	s.mu.RUnlock()

	if historyLog != nil {
		historyLog.Clear()
	}

	c.trySend(NewHistoryMessage(nil))
}

// deliverAndAck injects the text, records it, and acks the request.
// Delivery failures are logged without an ack so the phone can surface
// the stall to the user.
func (c *Client) deliverAndAck(text string, execute bool, id int64) {
	s := c.server
	s.mu.RLock()
	injector := s.injector
	historyLog := s.historyLog
	s.mu.RUnlock()

	if injector == nil {
		log.Printf("relay: no injector configured, dropping text")
		return
	}

	if err := injector.Deliver(text, execute); err != nil {
		log.Printf("relay: delivery failed: %v", err)
		return
	}

	if historyLog != nil {
		historyLog.Append(text)
		c.trySend(NewHistoryMessage(historyLog.Recent(history.ConnectItems)))
	}

	if id != 0 {
		c.trySend(NewAckMessage(id))
	}
}

// trySend queues a message without blocking the read loop.
func (c *Client) trySend(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		log.Printf("relay: send buffer full, dropping %s message", msg.Type)
	}
}

// storePending records an optimization preview and sweeps expired ones.
func (s *Server) storePending(id int64, text string, execute bool) {
	if id == 0 {
		return
	}

	now := s.timeNow()

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	for key, p := range s.pending {
		if now.Sub(p.created) > pendingTTL {
			delete(s.pending, key)
		}
	}

	s.pending[id] = pendingOptimization{
		text:    text,
		execute: execute,
		created: now,
	}
}

// takePending removes and returns the preview for the given id.
func (s *Server) takePending(id int64) (pendingOptimization, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return pendingOptimization{}, false
	}
	delete(s.pending, id)

	if s.timeNow().Sub(p.created) > pendingTTL {
		return pendingOptimization{}, false
	}
	return p, true
}
