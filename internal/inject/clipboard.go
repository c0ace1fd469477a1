package inject

import (
	"github.com/atotto/clipboard"
)

// systemClipboard implements Clipboard using the OS clipboard.
type systemClipboard struct{}

func (systemClipboard) Read() (string, error) {
	return clipboard.ReadAll()
}

func (systemClipboard) Write(text string) error {
	return clipboard.WriteAll(text)
}
