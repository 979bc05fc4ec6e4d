// Package protocol defines the socket event protocol between clients and the channel server.
package protocol

import "encoding/json"

// Events with fixed names.
const (
	EventSessionRequest = "session_request"
	EventSessionConfirm = "session_confirm"
)

// Default names for the configurable message events.
const (
	DefaultUserMessageEvent = "user_uttered"
	DefaultBotMessageEvent  = "bot_uttered"
)

// MessageTypeAudio marks a user message whose body is an encoded audio clip
// rather than plain text.
const MessageTypeAudio = "audio"

// Envelope frames every event on the wire.
type Envelope struct {
	Type      string          `json:"type"`
	Namespace string          `json:"namespace,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SessionRequest is the payload of a session_request event. The payload as a
// whole, and the session_id inside it, may both be absent.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// UserMessage is the payload of the user message event.
type UserMessage struct {
	Message   string `json:"message"`
	Type      string `json:"type,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Button is a choice offered alongside a bot reply.
type Button struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// QuickReply is the outbound form of a button attached to a message fragment.
type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}
