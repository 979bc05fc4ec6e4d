// Package channel defines the message channel abstraction and its socket
// implementation. A channel turns transport events into normalized user
// messages for the processing pipeline and carries bot replies back.
package channel

import (
	"context"

	"github.com/mxaviersmp/rasa-voice-interface/internal/hub"
	"github.com/mxaviersmp/rasa-voice-interface/internal/protocol"
)

// UserMessage is an inbound message normalized for the processing pipeline.
// It is immutable once handed off; Output is the only way the pipeline can
// address a reply for this turn.
type UserMessage struct {
	Text         string
	Output       OutputChannel
	SenderID     string
	InputChannel string
}

// MessageHandler consumes a normalized message and produces zero or more
// replies through the message's output channel. It is awaited to completion
// before the next event for the same connection is handled.
type MessageHandler func(ctx context.Context, msg *UserMessage) error

// OutputChannel delivers bot replies to a recipient.
type OutputChannel interface {
	// SendText sends a plain text reply.
	SendText(ctx context.Context, recipientID, text string) error
	// SendTextWithButtons sends a reply split into fragments, with the
	// buttons attached to the last fragment as quick replies.
	SendTextWithButtons(ctx context.Context, recipientID, text string, buttons []protocol.Button) error
}

// InputChannel is the inbound surface of a channel.
type InputChannel interface {
	// Name identifies the channel in normalized messages.
	Name() string
	// GetOutputChannel recreates an output channel outside a message turn,
	// for externally triggered replies. It fails when the live transport
	// handle is gone.
	GetOutputChannel() (OutputChannel, error)
}

// Transport is the live socket handle shared by all connection handlers and
// output channels.
type Transport interface {
	Emit(recipientID, event string, payload any) error
	EmitTo(conn *hub.Connection, event string, payload any) error
	EnterRoom(conn *hub.Connection, room string)
}

// Voices is the speech service surface a channel uses; both operations fail
// soft rather than returning errors.
type Voices interface {
	Transcribe(ctx context.Context, audio string) string
	Synthesize(ctx context.Context, text string) *string
}
