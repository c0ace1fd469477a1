// Package auth handles pairing token generation and validation.
//
// The host generates a single random token at startup. The phone learns
// the token by scanning the pairing QR code and presents it on every
// WebSocket connection. The token lives only in process memory and is
// rotated each time the host restarts, so a leaked token stops working
// as soon as the host is relaunched.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"
)

// tokenBytes is the token entropy in bytes.
// 16 bytes of hex is short enough to fit comfortably in a QR code
// while still being far beyond brute force on a LAN.
const tokenBytes = 16

// TokenGuard holds the process-lifetime pairing token and validates
// tokens presented by connecting clients.
type TokenGuard struct {
	mu      sync.RWMutex
	token   string
	timeNow func() time.Time
}

// NewTokenGuard generates a fresh pairing token.
func NewTokenGuard() (*TokenGuard, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate pairing token: %w", err)
	}

	log.Printf("auth: generated pairing token")

	return &TokenGuard{
		token:   token,
		timeNow: time.Now,
	}, nil
}

// Token returns the current pairing token.
// The caller embeds it in the pairing QR code.
func (tg *TokenGuard) Token() string {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	return tg.token
}

// Validate checks a token presented by a client.
// Comparison is constant time so a network attacker cannot probe the
// token byte by byte.
func (tg *TokenGuard) Validate(presented string) bool {
	tg.mu.RLock()
	defer tg.mu.RUnlock()

	if len(presented) != len(tg.token) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(tg.token)) == 1
}

// Rotate replaces the token with a fresh one.
// Any client holding the old token must re-pair.
func (tg *TokenGuard) Rotate() (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("rotate pairing token: %w", err)
	}

	tg.mu.Lock()
	tg.token = token
	tg.mu.Unlock()

	log.Printf("auth: rotated pairing token")
	return token, nil
}

// generateToken returns a hex-encoded random token.
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
