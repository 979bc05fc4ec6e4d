// Package main provides a simple CLI client for talking to the channel
// server's socket endpoint.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
)

// Event names understood by the client.
const (
	EventSessionRequest = "session_request"
	EventSessionConfirm = "session_confirm"
)

// Envelope frames every event on the wire.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SessionRequest is the payload of a session_request event.
type SessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// UserMessage is the payload of the user message event.
type UserMessage struct {
	Message   string `json:"message"`
	Type      string `json:"type,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// BotMessage is the payload of the bot message event.
type BotMessage struct {
	Text         string `json:"text"`
	QuickReplies []struct {
		Title   string `json:"title"`
		Payload string `json:"payload"`
	} `json:"quick_replies,omitempty"`
	Audio *string `json:"audio,omitempty"`
}

// Client represents a socket client.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	done      chan struct{}
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

func (c *Client) sendEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	return c.conn.WriteJSON(Envelope{Type: event, Data: data})
}

// RequestSession sends a session_request and waits for session_confirm.
func (c *Client) RequestSession(sessionID string) error {
	if err := c.sendEvent(EventSessionRequest, SessionRequest{SessionID: sessionID}); err != nil {
		return fmt.Errorf("write session_request: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read session_confirm: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal session_confirm: %w", err)
	}
	if env.Type != EventSessionConfirm {
		return fmt.Errorf("expected session_confirm, got: %s", env.Type)
	}
	if err := json.Unmarshal(env.Data, &c.sessionID); err != nil {
		return fmt.Errorf("unmarshal session id: %w", err)
	}
	return nil
}

// SendMessage sends a user message event.
func (c *Client) SendMessage(event, text string) error {
	return c.sendEvent(event, UserMessage{
		Message:   text,
		SessionID: c.sessionID,
	})
}

// ReadMessages reads and prints bot messages from the server.
func (c *Client) ReadMessages(botEvent string) {
	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}

			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Printf("Unmarshal error: %v", err)
				continue
			}
			if env.Type != botEvent {
				continue
			}

			var msg BotMessage
			if err := json.Unmarshal(env.Data, &msg); err != nil {
				log.Printf("Unmarshal error: %v", err)
				continue
			}

			fmt.Printf("\nbot> %s\n", msg.Text)
			for _, qr := range msg.QuickReplies {
				fmt.Printf("  [%s] %s\n", qr.Title, qr.Payload)
			}
			if msg.Audio != nil {
				fmt.Printf("  (audio: %d bytes)\n", len(*msg.Audio))
			}
			fmt.Print("> ")
		}
	}
}

func main() {
	addr := flag.String("addr", "ws://localhost:5005/socket.io", "socket server address")
	sessionID := flag.String("session", "", "session id to resume (default: server-assigned)")
	userEvent := flag.String("user-event", "user_uttered", "user message event name")
	botEvent := flag.String("bot-event", "bot_uttered", "bot message event name")
	flag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.RequestSession(*sessionID); err != nil {
		log.Fatalf("Session request failed: %v", err)
	}

	fmt.Printf("Session established: %s\n", client.sessionID)
	fmt.Println("Type a message and press Enter to send. /quit to exit.")

	go client.ReadMessages(*botEvent)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		client.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			fmt.Print("> ")
			continue
		}
		if text == "/quit" {
			return
		}
		if err := client.SendMessage(*userEvent, text); err != nil {
			log.Fatalf("Send failed: %v", err)
		}
		fmt.Print("> ")
	}
}
