// Package errors provides standardized error codes for the AirVoice host.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (relay, optimize, inject, history, auth, config)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by mobile clients for programmatic
// error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Relay domain - WebSocket and network errors
	CodeRelayUpgradeFailed  = "relay.upgrade_failed"  // WebSocket upgrade failed
	CodeRelayInvalidMessage = "relay.invalid_message" // Malformed or invalid message
	CodeRelaySendFailed     = "relay.send_failed"     // Failed to send message
	CodeRelayNotConnected   = "relay.not_connected"   // No client connection active

	// Optimize domain - external AI optimization errors
	CodeOptimizeDisabled   = "optimize.disabled"    // Optimization is turned off
	CodeOptimizeNoKey      = "optimize.no_api_key"  // Active provider has no API key
	CodeOptimizeTimeout    = "optimize.timeout"     // Provider call exceeded its deadline
	CodeOptimizeCallFailed = "optimize.call_failed" // Provider returned an error

	// Inject domain - keystroke synthesis and clipboard errors
	CodeInjectClipboardRead    = "inject.clipboard_read"    // Failed to read current clipboard
	CodeInjectClipboardWrite   = "inject.clipboard_write"   // Failed to write text to clipboard
	CodeInjectClipboardRestore = "inject.clipboard_restore" // Failed to restore saved clipboard
	CodeInjectKeystrokeFailed  = "inject.keystroke_failed"  // Keystroke synthesis failed
	CodeInjectNothingToRepeat  = "inject.nothing_to_repeat" // Repeat requested before any delivery

	// History domain - persistence errors
	CodeHistoryLoadFailed = "history.load_failed" // Failed to read history file
	CodeHistorySaveFailed = "history.save_failed" // Failed to write history file

	// Auth domain - pairing token errors
	CodeAuthRequired = "auth.required" // Pairing token required
	CodeAuthInvalid  = "auth.invalid"  // Invalid pairing token

	// Config domain - configuration file errors
	CodeConfigLoadFailed = "config.load_failed" // Failed to read or parse a config file
	CodeConfigSaveFailed = "config.save_failed" // Failed to write a config file

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "relay.invalid_message")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts the human-readable message from an error.
// If the error is a CodedError, returns its message; otherwise the
// error's own text.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message for wire responses.
func ToCodeAndMessage(err error) (code, message string) {
	return GetCode(err), GetMessage(err)
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// InvalidMessage creates a "relay.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeRelayInvalidMessage, reason)
}

// NotConnected creates a "relay.not_connected" error.
func NotConnected() *CodedError {
	return New(CodeRelayNotConnected, "no client is connected")
}

// OptimizeFailed creates an "optimize.call_failed" error.
func OptimizeFailed(provider string, cause error) *CodedError {
	return Wrap(CodeOptimizeCallFailed, fmt.Sprintf("provider %s call failed", provider), cause)
}

// ClipboardRestore creates an "inject.clipboard_restore" error.
func ClipboardRestore(attempts int, cause error) *CodedError {
	msg := fmt.Sprintf("failed to restore clipboard after %d attempts", attempts)
	return Wrap(CodeInjectClipboardRestore, msg, cause)
}

// NothingToRepeat creates an "inject.nothing_to_repeat" error.
func NothingToRepeat() *CodedError {
	return New(CodeInjectNothingToRepeat, "no text has been delivered yet")
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
