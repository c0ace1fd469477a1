package inject

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/Duye0120/AirVoice/internal/errors"
)

// fakeClipboard records writes and serves a fixed current value.
type fakeClipboard struct {
	current  string
	writes   []string
	readErr  error
	writeErr error

	// failAfter skips failure for the first N successful writes, then
	// failWrites consecutive writes fail before succeeding again.
	failAfter  int
	failWrites int
	okWrites   int
}

func (f *fakeClipboard) Read() (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.current, nil
}

func (f *fakeClipboard) Write(text string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.failWrites > 0 && f.okWrites >= f.failAfter {
		f.failWrites--
		return errors.New("clipboard busy")
	}
	f.writes = append(f.writes, text)
	f.current = text
	f.okWrites++
	return nil
}

// fakeKeyboard records keystrokes.
type fakeKeyboard struct {
	keys     []string
	pasteErr error
}

func (f *fakeKeyboard) Paste() error {
	if f.pasteErr != nil {
		return f.pasteErr
	}
	f.keys = append(f.keys, "paste")
	return nil
}

func (f *fakeKeyboard) Enter() error {
	f.keys = append(f.keys, "enter")
	return nil
}

func newTestInjector(clip *fakeClipboard, kb *fakeKeyboard) *Injector {
	in := NewWith(clip, kb)
	in.sleep = func(time.Duration) {}
	return in
}

func TestDeliver(t *testing.T) {
	clip := &fakeClipboard{current: "previous contents"}
	kb := &fakeKeyboard{}
	in := newTestInjector(clip, kb)

	if err := in.Deliver("hello world", false); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	// Text written, then old contents restored.
	want := []string{"hello world", "previous contents"}
	if len(clip.writes) != 2 || clip.writes[0] != want[0] || clip.writes[1] != want[1] {
		t.Errorf("writes = %v, want %v", clip.writes, want)
	}
	if clip.current != "previous contents" {
		t.Errorf("clipboard ends as %q, want restored contents", clip.current)
	}

	if len(kb.keys) != 1 || kb.keys[0] != "paste" {
		t.Errorf("keys = %v, want [paste]", kb.keys)
	}
}

func TestDeliverWithExecute(t *testing.T) {
	clip := &fakeClipboard{}
	kb := &fakeKeyboard{}
	in := newTestInjector(clip, kb)

	if err := in.Deliver("run this", true); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if len(kb.keys) != 2 || kb.keys[0] != "paste" || kb.keys[1] != "enter" {
		t.Errorf("keys = %v, want [paste enter]", kb.keys)
	}
}

func TestDeliverUnreadableClipboard(t *testing.T) {
	// A read failure must not block delivery.
	clip := &fakeClipboard{readErr: errors.New("empty clipboard")}
	kb := &fakeKeyboard{}
	in := newTestInjector(clip, kb)

	if err := in.Deliver("hello", false); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(kb.keys) != 1 {
		t.Errorf("keys = %v, want paste to happen", kb.keys)
	}
}

func TestDeliverWriteFailure(t *testing.T) {
	clip := &fakeClipboard{writeErr: errors.New("no display")}
	kb := &fakeKeyboard{}
	in := newTestInjector(clip, kb)

	err := in.Deliver("hello", false)
	if !apperrors.IsCode(err, apperrors.CodeInjectClipboardWrite) {
		t.Errorf("err = %v, want code %s", err, apperrors.CodeInjectClipboardWrite)
	}
	if len(kb.keys) != 0 {
		t.Errorf("no keystroke should follow a failed write, got %v", kb.keys)
	}
}

func TestDeliverPasteFailureRestores(t *testing.T) {
	clip := &fakeClipboard{current: "keep me"}
	kb := &fakeKeyboard{pasteErr: errors.New("no permission")}
	in := newTestInjector(clip, kb)

	err := in.Deliver("hello", false)
	if !apperrors.IsCode(err, apperrors.CodeInjectKeystrokeFailed) {
		t.Errorf("err = %v, want code %s", err, apperrors.CodeInjectKeystrokeFailed)
	}
	if clip.current != "keep me" {
		t.Errorf("clipboard = %q, want restored after paste failure", clip.current)
	}
}

func TestRestoreRetries(t *testing.T) {
	// The delivery write succeeds, then the first two restore attempts
	// fail before the third lands.
	clip := &fakeClipboard{current: "previous", failAfter: 1, failWrites: 2}
	kb := &fakeKeyboard{}
	in := newTestInjector(clip, kb)

	if err := in.Deliver("hello", false); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if clip.current != "previous" {
		t.Errorf("clipboard = %q, want %q restored on third attempt", clip.current, "previous")
	}
}

func TestRepeatLast(t *testing.T) {
	clip := &fakeClipboard{}
	kb := &fakeKeyboard{}
	in := newTestInjector(clip, kb)

	// Nothing delivered yet.
	err := in.RepeatLast()
	if !apperrors.IsCode(err, apperrors.CodeInjectNothingToRepeat) {
		t.Errorf("err = %v, want code %s", err, apperrors.CodeInjectNothingToRepeat)
	}

	if err := in.Deliver("again", true); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	kb.keys = nil
	if err := in.RepeatLast(); err != nil {
		t.Fatalf("RepeatLast failed: %v", err)
	}

	// The repeat pastes only, even though the original delivery
	// pressed Enter.
	if len(kb.keys) != 1 || kb.keys[0] != "paste" {
		t.Errorf("keys = %v, want [paste]", kb.keys)
	}

	last := clip.writes[len(clip.writes)-2]
	if last != "again" {
		t.Errorf("repeated text = %q, want %q", last, "again")
	}
}
