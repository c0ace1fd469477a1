// Package inject delivers text into the focused application on the host.
//
// Delivery works through the clipboard: the current clipboard contents
// are saved, the text is placed on the clipboard, a paste keystroke is
// synthesized, and the saved contents are restored. This is far more
// reliable than typing the text key by key, especially for non-ASCII
// input.
package inject

import (
	"log"
	"sync"
	"time"

	apperrors "github.com/Duye0120/AirVoice/internal/errors"
)

const (
	// settleDelay is how long to wait after the paste keystroke before
	// restoring the clipboard. Pasting reads the clipboard
	// asynchronously in some applications; restoring too early delivers
	// the old contents instead.
	settleDelay = 200 * time.Millisecond

	// restoreRetries is how many times to attempt the clipboard restore.
	restoreRetries = 3

	// restoreDelay is the pause between restore attempts.
	restoreDelay = 50 * time.Millisecond
)

// Clipboard abstracts the system clipboard.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// Keyboard abstracts keystroke synthesis.
type Keyboard interface {
	Paste() error
	Enter() error
}

// Injector delivers text to the focused application.
type Injector struct {
	clipboard Clipboard
	keyboard  Keyboard

	// sleep is overridable in tests to avoid real delays.
	sleep func(time.Duration)

	mu       sync.Mutex
	lastText string
	hasLast  bool
}

// New creates an injector using the system clipboard and keyboard.
func New() (*Injector, error) {
	keyboard, err := newSystemKeyboard()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInjectKeystrokeFailed, "initialize keyboard", err)
	}
	return NewWith(systemClipboard{}, keyboard), nil
}

// NewWith creates an injector with explicit clipboard and keyboard
// implementations.
func NewWith(clipboard Clipboard, keyboard Keyboard) *Injector {
	return &Injector{
		clipboard: clipboard,
		keyboard:  keyboard,
		sleep:     time.Sleep,
	}
}

// Deliver pastes text into the focused application.
// When execute is true an Enter keystroke follows the paste.
//
// The previous clipboard contents are restored afterwards. A failed
// restore is logged but does not fail the delivery; the text already
// reached the application.
func (in *Injector) Deliver(text string, execute bool) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := in.deliverLocked(text, execute); err != nil {
		return err
	}

	in.lastText = text
	in.hasLast = true
	return nil
}

// RepeatLast pastes the most recent text again. The repeat never
// presses Enter, even when the original delivery did. Returns an
// error if nothing has been delivered yet.
func (in *Injector) RepeatLast() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.hasLast {
		return apperrors.NothingToRepeat()
	}

	log.Printf("inject: repeating last delivery (%d chars)", len(in.lastText))
	return in.deliverLocked(in.lastText, false)
}

// deliverLocked performs the save/write/paste/restore sequence.
// Must be called with in.mu held.
func (in *Injector) deliverLocked(text string, execute bool) error {
	saved, err := in.clipboard.Read()
	if err != nil {
		// An unreadable clipboard (empty on some platforms) should not
		// block delivery. Treat it as empty and skip the restore.
		log.Printf("inject: clipboard read failed, skipping restore: %v", err)
		saved = ""
	}

	if werr := in.clipboard.Write(text); werr != nil {
		return apperrors.Wrap(apperrors.CodeInjectClipboardWrite, "write text to clipboard", werr)
	}

	if kerr := in.keyboard.Paste(); kerr != nil {
		in.restore(saved)
		return apperrors.Wrap(apperrors.CodeInjectKeystrokeFailed, "synthesize paste keystroke", kerr)
	}

	if execute {
		if kerr := in.keyboard.Enter(); kerr != nil {
			in.restore(saved)
			return apperrors.Wrap(apperrors.CodeInjectKeystrokeFailed, "synthesize enter keystroke", kerr)
		}
	}

	// Let the target application finish reading the clipboard.
	in.sleep(settleDelay)

	in.restore(saved)
	return nil
}

// restore puts the saved clipboard contents back, retrying a few times.
// Failures are logged only.
func (in *Injector) restore(saved string) {
	var lastErr error
	for attempt := 1; attempt <= restoreRetries; attempt++ {
		if err := in.clipboard.Write(saved); err != nil {
			lastErr = err
			in.sleep(restoreDelay)
			continue
		}
		return
	}
	log.Printf("inject: %v", apperrors.ClipboardRestore(restoreRetries, lastErr))
}
