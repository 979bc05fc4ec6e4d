package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mxaviersmp/rasa-voice-interface/internal/config"
	"github.com/mxaviersmp/rasa-voice-interface/internal/hub"
	"github.com/mxaviersmp/rasa-voice-interface/internal/protocol"
)

// SocketChannelName is the registry name of the socket channel.
const SocketChannelName = "socketio"

// ErrChannelUnavailable is returned when an output channel is requested but
// the live transport handle is gone, for example after a restart on a
// different worker. Callers must treat this as "delivery impossible here"
// and fall back to another channel.
var ErrChannelUnavailable = errors.New("socket output channel cannot be recreated: no live transport handle")

// SocketChannel is the socket input channel. It owns session issuance and
// room binding, disambiguates audio from text payloads, and dispatches
// normalized messages to the processing pipeline.
type SocketChannel struct {
	userMessageEvent   string
	botMessageEvent    string
	sessionPersistence bool

	voices Voices

	mu        sync.RWMutex
	transport Transport
	handler   MessageHandler
}

// NewSocketChannel creates a socket channel from configuration. The channel
// is inert until Attach hands it a live transport and a message handler.
func NewSocketChannel(cfg *config.Config, voices Voices) *SocketChannel {
	return &SocketChannel{
		userMessageEvent:   cfg.UserMessageEvent,
		botMessageEvent:    cfg.BotMessageEvent,
		sessionPersistence: cfg.SessionPersistence,
		voices:             voices,
	}
}

// Name identifies the channel in normalized messages.
func (s *SocketChannel) Name() string {
	return SocketChannelName
}

// UserMessageEvent returns the configured inbound message event name.
func (s *SocketChannel) UserMessageEvent() string {
	return s.userMessageEvent
}

// Attach hands the channel its live transport handle and the pipeline
// handler for inbound messages.
func (s *SocketChannel) Attach(t Transport, handler MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
	s.handler = handler
}

// GetOutputChannel recreates an output channel outside a message turn.
func (s *SocketChannel) GetOutputChannel() (OutputChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.transport == nil {
		log.Printf("channel: socket output channel cannot be recreated; this is expected when running multiple workers or instances, use a different channel for external events there")
		return nil, ErrChannelUnavailable
	}
	return NewSocketOutput(s.transport, s.botMessageEvent, s.voices, false), nil
}

// HandleConnect observes a new connection. No session exists yet.
func (s *SocketChannel) HandleConnect(conn *hub.Connection) {
	log.Printf("channel: user %s connected to socket endpoint", conn.ID)
}

// HandleDisconnect observes a closed connection. Room bindings are reclaimed
// by the hub when the connection unregisters.
func (s *SocketChannel) HandleDisconnect(conn *hub.Connection) {
	log.Printf("channel: user %s disconnected from socket endpoint", conn.ID)
}

// HandleSessionRequest resolves the session id for a connection, binds it
// into the session room when persistence is on, and confirms the session to
// the requesting connection.
func (s *SocketChannel) HandleSessionRequest(ctx context.Context, conn *hub.Connection, data json.RawMessage) error {
	s.mu.RLock()
	transport := s.transport
	s.mu.RUnlock()
	if transport == nil {
		return ErrChannelUnavailable
	}

	conn.SetState(hub.StateSessionPending)

	var req protocol.SessionRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("channel: malformed session_request payload from %s, treating as empty: %v", conn.ID, err)
		}
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}

	if s.sessionPersistence {
		transport.EnterRoom(conn, sessionID)
	}

	if err := transport.EmitTo(conn, protocol.EventSessionConfirm, sessionID); err != nil {
		return err
	}
	conn.SetState(hub.StateSessionActive)
	log.Printf("channel: session %s confirmed for user %s", sessionID, conn.ID)
	return nil
}

// HandleUserMessage normalizes an inbound user message and dispatches it to
// the pipeline. The pipeline call completes, including all replies it
// triggers, before this returns.
func (s *SocketChannel) HandleUserMessage(ctx context.Context, conn *hub.Connection, data json.RawMessage) error {
	s.mu.RLock()
	transport := s.transport
	handler := s.handler
	s.mu.RUnlock()
	if transport == nil {
		return ErrChannelUnavailable
	}

	var msg protocol.UserMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("channel: malformed %s payload from %s, ignoring: %v", s.userMessageEvent, conn.ID, err)
		return nil
	}

	var senderID string
	if s.sessionPersistence {
		if msg.SessionID == "" {
			log.Printf("channel: a message without a valid session_id was received and will be ignored; set a session id with the session_request event first")
			return nil
		}
		senderID = msg.SessionID
	} else {
		senderID = conn.ID
	}

	isAudio := msg.Type == protocol.MessageTypeAudio
	text := msg.Message
	if isAudio {
		text = s.voices.Transcribe(ctx, msg.Message)
	}

	output := NewSocketOutput(transport, s.botMessageEvent, s.voices, isAudio)
	userMsg := &UserMessage{
		Text:         text,
		Output:       output,
		SenderID:     senderID,
		InputChannel: s.Name(),
	}

	if err := handler(ctx, userMsg); err != nil {
		log.Printf("channel: pipeline dispatch failed for sender %s: %v", senderID, err)
	}
	return nil
}

// newSessionID generates a random globally unique session token.
func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
