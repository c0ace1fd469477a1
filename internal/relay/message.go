package relay

import (
	"github.com/Duye0120/AirVoice/internal/history"
)

// MessageType identifies the kind of a protocol message.
type MessageType string

// Message types exchanged between the phone and the host.
// The protocol is a flat JSON object; which fields are meaningful
// depends on the type.
const (
	// MessageTypeText carries dictated text from the phone for delivery.
	MessageTypeText MessageType = "text"

	// MessageTypeAck confirms that a message was handled, echoing its id.
	MessageTypeAck MessageType = "ack"

	// MessageTypeOptimize asks the host for an optimization preview
	// without delivering anything.
	MessageTypeOptimize MessageType = "optimize"

	// MessageTypeOptimized returns an optimization preview to the phone.
	MessageTypeOptimized MessageType = "optimized"

	// MessageTypeConfirm accepts a previously previewed optimization
	// for delivery. Content, if present, overrides the preview text.
	MessageTypeConfirm MessageType = "confirm"

	// MessageTypeAIConfig tells the phone whether optimization is usable.
	MessageTypeAIConfig MessageType = "ai-config"

	// MessageTypeHistory pushes the recent delivery history to the phone.
	MessageTypeHistory MessageType = "history"

	// MessageTypeClearHistory asks the host to wipe the history.
	MessageTypeClearHistory MessageType = "clear-history"
)

// Message is the wire format for both directions of the WebSocket.
// All fields except Type are optional; absent fields are omitted from
// the JSON. An absent history field means an empty history.
type Message struct {
	Type MessageType `json:"type"`

	// Content is the text payload for text, optimize, and confirm.
	Content string `json:"content,omitempty"`

	// ID correlates a request with its ack or optimized response.
	// Clients assign ids from an incrementing counter; zero means the
	// message carries no id.
	ID int64 `json:"id,omitempty"`

	// Execute requests an Enter keystroke after the paste.
	Execute bool `json:"execute,omitempty"`

	// Original and Optimized carry both sides of an optimization preview.
	Original  string `json:"original,omitempty"`
	Optimized string `json:"optimized,omitempty"`

	// AIEnabled reports whether optimization is usable right now.
	AIEnabled *bool `json:"aiEnabled,omitempty"`

	// History is the recent delivery history, newest first.
	History []history.Item `json:"history,omitempty"`
}

// NewAckMessage confirms handling of the message with the given id.
func NewAckMessage(id int64) Message {
	return Message{Type: MessageTypeAck, ID: id}
}

// NewOptimizedMessage returns an optimization preview. The execute flag
// of the triggering request is echoed so the phone can render it.
// When optimization failed or is disabled, optimized equals original so
// the phone flow continues unchanged.
func NewOptimizedMessage(id int64, original, optimized string, execute bool) Message {
	return Message{
		Type:      MessageTypeOptimized,
		ID:        id,
		Original:  original,
		Optimized: optimized,
		Execute:   execute,
	}
}

// NewAIConfigMessage reports the optimization availability to the phone.
func NewAIConfigMessage(enabled bool) Message {
	return Message{Type: MessageTypeAIConfig, AIEnabled: &enabled}
}

// NewHistoryMessage pushes recent history items to the phone.
func NewHistoryMessage(items []history.Item) Message {
	return Message{Type: MessageTypeHistory, History: items}
}

// NewTextMessage builds a delivery request. Used by the client side.
func NewTextMessage(content string, id int64, execute bool) Message {
	return Message{Type: MessageTypeText, Content: content, ID: id, Execute: execute}
}

// NewOptimizeMessage builds a preview request. Used by the client side.
func NewOptimizeMessage(content string, id int64, execute bool) Message {
	return Message{Type: MessageTypeOptimize, Content: content, ID: id, Execute: execute}
}

// NewConfirmMessage accepts a preview for delivery. Used by the client
// side. content may be empty to deliver the previewed text as is.
func NewConfirmMessage(id int64, content string) Message {
	return Message{Type: MessageTypeConfirm, ID: id, Content: content}
}

// NewClearHistoryMessage asks the host to wipe history. Used by the
// client side.
func NewClearHistoryMessage() Message {
	return Message{Type: MessageTypeClearHistory}
}
