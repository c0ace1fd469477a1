package inject

import (
	"runtime"
	"time"

	"github.com/micmonay/keybd_event"
)

// systemKeyboard implements Keyboard via synthetic key events.
type systemKeyboard struct {
	kb keybd_event.KeyBonding
}

func newSystemKeyboard() (*systemKeyboard, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, err
	}

	// On linux the uinput device needs a moment to register before the
	// first synthesized event is seen.
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}

	return &systemKeyboard{kb: kb}, nil
}

// Paste sends the platform paste chord: Cmd+V on macOS, Ctrl+V elsewhere.
func (k *systemKeyboard) Paste() error {
	k.kb.Clear()
	k.kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		k.kb.HasSuper(true)
	} else {
		k.kb.HasCTRL(true)
	}
	return k.kb.Launching()
}

// Enter sends a bare Enter keystroke.
func (k *systemKeyboard) Enter() error {
	k.kb.Clear()
	k.kb.SetKeys(keybd_event.VK_ENTER)
	return k.kb.Launching()
}
