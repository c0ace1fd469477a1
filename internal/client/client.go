// Package client implements the phone side of the relay protocol.
//
// It drives a small reconnect state machine: the session dials the
// host, replays nothing (the host pushes state on connect), and keeps
// retrying on a fixed interval until the connection sticks or the host
// rejects the pairing token. A rejected token is terminal; the user
// has to re-pair, so automatic retries would only hammer the host.
//
// The session never queues outgoing messages. Sending while
// disconnected fails immediately so the UI can tell the user instead
// of silently buffering text that would paste minutes later.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/Duye0120/AirVoice/internal/relay"
)

// State is the connection state of the session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var (
	// ErrPairingRejected means the host refused the token. The session
	// stops retrying; only Resume with a fresh token helps.
	ErrPairingRejected = errors.New("pairing token rejected by host")

	// ErrNotConnected is returned by Send while disconnected.
	ErrNotConnected = errors.New("not connected to host")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// defaultRetryInterval is the pause between reconnect attempts.
const defaultRetryInterval = 2 * time.Second

// Config configures a Session.
type Config struct {
	// Host and Port locate the relay server.
	Host string
	Port int

	// Token is the pairing token from the QR code. May be empty when
	// the host runs with authentication disabled.
	Token string

	// DeviceID and DeviceName identify this phone to the host's
	// device registry. Both optional.
	DeviceID   string
	DeviceName string

	// RetryInterval overrides the reconnect pause. Default 2s.
	RetryInterval time.Duration

	// OnMessage receives every message pushed by the host. Called from
	// the session's read goroutine.
	OnMessage func(relay.Message)

	// OnStateChange is notified on every state transition.
	OnStateChange func(State)
}

// Session is a client connection to the relay server.
type Session struct {
	cfg Config

	// nextID numbers outgoing messages so acks and previews can be
	// matched to the request that caused them.
	nextID atomic.Int64

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	cancel   context.CancelFunc
	running  bool
	rejected bool
	closed   bool
}

// New creates a session. Call Start to begin connecting.
func New(cfg Config) *Session {
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	return &Session{
		cfg:   cfg,
		state: StateDisconnected,
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the connect loop. It returns immediately; watch
// OnStateChange for progress. Calling Start on a running session is a
// no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}
	if s.rejected {
		return ErrPairingRejected
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	go s.run(ctx)
	return nil
}

// Resume restarts connecting after the app returns to the foreground.
// Unlike Start it also clears a previous pairing rejection, so it is
// the right call after the user re-scans a QR code.
func (s *Session) Resume() error {
	s.mu.Lock()
	s.rejected = false
	s.mu.Unlock()
	return s.Start()
}

// Close tears the session down permanently.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send transmits a message to the host. It fails immediately when the
// session is not connected; nothing is ever queued.
func (s *Session) Send(msg relay.Message) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// SendText submits dictated text for delivery and returns the message
// id to correlate with the host's ack.
func (s *Session) SendText(content string, execute bool) (int64, error) {
	id := s.nextID.Add(1)
	if err := s.Send(relay.NewTextMessage(content, id, execute)); err != nil {
		return 0, err
	}
	return id, nil
}

// RequestOptimize asks the host for an optimization preview.
func (s *Session) RequestOptimize(content string, execute bool) (int64, error) {
	id := s.nextID.Add(1)
	if err := s.Send(relay.NewOptimizeMessage(content, id, execute)); err != nil {
		return 0, err
	}
	return id, nil
}

// Confirm accepts a previewed optimization. content may carry a
// user-edited version, or be empty to deliver the preview as is.
func (s *Session) Confirm(id int64, content string) error {
	return s.Send(relay.NewConfirmMessage(id, content))
}

// ClearHistory asks the host to wipe the delivery history.
func (s *Session) ClearHistory() error {
	return s.Send(relay.NewClearHistoryMessage())
}

// wsURL builds the connection URL with auth and identity parameters.
func (s *Session) wsURL() string {
	q := url.Values{}
	if s.cfg.Token != "" {
		q.Set("token", s.cfg.Token)
	}
	if s.cfg.DeviceID != "" {
		q.Set("deviceId", s.cfg.DeviceID)
	}
	if s.cfg.DeviceName != "" {
		q.Set("deviceName", s.cfg.DeviceName)
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Path:     "/ws",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// run is the connect loop. Each iteration dials, serves the read loop
// until the connection drops, then waits the retry interval. A policy
// violation close (rejected token) ends the loop.
func (s *Session) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.setState(StateDisconnected)
	}()

	bo := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.RetryInterval), ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)

		var conn *websocket.Conn
		dial := func() error {
			c, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL(), nil)
			if err != nil {
				log.Printf("client: dial failed: %v", err)
				return err
			}
			conn = c
			return nil
		}

		if err := backoff.Retry(dial, bo); err != nil {
			// Context cancelled; constant backoff never gives up on
			// its own.
			return
		}
		bo.Reset()

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setState(StateConnected)

		rejected := s.readLoop(ctx, conn)

		s.mu.Lock()
		s.conn = nil
		if rejected {
			s.rejected = true
		}
		s.mu.Unlock()

		if rejected {
			log.Printf("client: %v", ErrPairingRejected)
			return
		}

		s.setState(StateDisconnected)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RetryInterval):
		}
	}
}

// readLoop reads until the connection fails. Returns true when the
// host closed the connection with a policy violation (bad token).
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) bool {
	defer conn.Close()

	for {
		if ctx.Err() != nil {
			return false
		}

		var msg relay.Message
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
				return true
			}
			if ctx.Err() == nil {
				log.Printf("client: connection lost: %v", err)
			}
			return false
		}

		if s.cfg.OnMessage != nil {
			s.cfg.OnMessage(msg)
		}
	}
}

// setState updates the state and fires the callback on transitions.
func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(state)
	}
}
