package channel

import (
	"context"
	"strings"

	"github.com/mxaviersmp/rasa-voice-interface/internal/protocol"
)

// SocketOutput delivers bot replies over the socket transport. One instance
// is created per reply-producing message; its addressing target and voice
// flag never change after construction.
type SocketOutput struct {
	transport       Transport
	botMessageEvent string
	voices          Voices
	voice           bool
}

// NewSocketOutput creates an output channel bound to one bot event name and
// one voice mode. Voice mode is on iff the inbound message of this turn was
// audio.
func NewSocketOutput(t Transport, botMessageEvent string, voices Voices, voice bool) *SocketOutput {
	return &SocketOutput{
		transport:       t,
		botMessageEvent: botMessageEvent,
		voices:          voices,
		voice:           voice,
	}
}

// SendText sends a plain text reply. In voice mode the reply also carries an
// audio field, null when synthesis failed; the field is never present with
// voice mode off.
func (o *SocketOutput) SendText(ctx context.Context, recipientID, text string) error {
	resp := map[string]any{"text": text}
	if o.voice {
		resp["audio"] = o.voices.Synthesize(ctx, text)
	}
	return o.transport.Emit(recipientID, o.botMessageEvent, resp)
}

// SendTextWithButtons splits the text on blank lines into an ordered run of
// fragments and attaches all buttons, in input order, to the last fragment
// as quick replies. Earlier fragments carry an empty quick reply list.
// Fragments are emitted sequentially, in order.
func (o *SocketOutput) SendTextWithButtons(ctx context.Context, recipientID, text string, buttons []protocol.Button) error {
	parts := strings.Split(strings.TrimSpace(text), "\n\n")
	if len(parts) == 0 {
		// There is always at least one fragment to attach the quick replies to.
		parts = []string{text}
	}

	messages := make([]map[string]any, len(parts))
	for i, part := range parts {
		messages[i] = map[string]any{
			"text":          part,
			"quick_replies": []protocol.QuickReply{},
		}
	}

	quickReplies := make([]protocol.QuickReply, 0, len(buttons))
	for _, button := range buttons {
		quickReplies = append(quickReplies, protocol.QuickReply{
			ContentType: "text",
			Title:       button.Title,
			Payload:     button.Payload,
		})
	}
	messages[len(messages)-1]["quick_replies"] = quickReplies

	for _, message := range messages {
		if o.voice {
			// Every fragment carries audio for the full reply text, not just
			// its own fragment.
			message["audio"] = o.voices.Synthesize(ctx, text)
		}
		if err := o.transport.Emit(recipientID, o.botMessageEvent, message); err != nil {
			return err
		}
	}
	return nil
}
