package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/mxaviersmp/rasa-voice-interface/internal/channel"
	"github.com/mxaviersmp/rasa-voice-interface/internal/config"
	"github.com/mxaviersmp/rasa-voice-interface/internal/hub"
	"github.com/mxaviersmp/rasa-voice-interface/internal/protocol"
)

type testVoices struct {
	transcript string
	audio      *string
}

func (v *testVoices) Transcribe(context.Context, string) string  { return v.transcript }
func (v *testVoices) Synthesize(context.Context, string) *string { return v.audio }

func testConfig(persistence bool) *config.Config {
	return &config.Config{
		UserMessageEvent:   protocol.DefaultUserMessageEvent,
		BotMessageEvent:    protocol.DefaultBotMessageEvent,
		SessionPersistence: persistence,
		SocketPath:         "/socket.io",
		PingInterval:       30 * time.Second,
		WriteTimeout:       10 * time.Second,
		ReadTimeout:        60 * time.Second,
		MaxMessageSize:     65536,
	}
}

func startServer(t *testing.T, cfg *config.Config, voices channel.Voices, handler channel.MessageHandler) (*websocket.Conn, *hub.Hub) {
	t.Helper()

	h := hub.NewHub(cfg.Namespace)
	go h.Run()

	ch := channel.NewSocketChannel(cfg, voices)
	ch.Attach(h, handler)

	s := NewServer(cfg, h, ch)
	e := echo.New()
	e.GET(cfg.SocketPath, s.HandleSocket)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + cfg.SocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn, h
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(protocol.Envelope{Type: event, Data: data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env protocol.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return env
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var env protocol.Envelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Fatalf("unexpected event received: %+v", env)
	}
}

func TestSessionHandshakeGeneratedID(t *testing.T) {
	conn, _ := startServer(t, testConfig(false), &testVoices{}, func(context.Context, *channel.UserMessage) error {
		return nil
	})

	sendEvent(t, conn, protocol.EventSessionRequest, map[string]any{})

	env := readEnvelope(t, conn)
	if env.Type != protocol.EventSessionConfirm {
		t.Fatalf("expected session_confirm, got %s", env.Type)
	}
	var sessionID string
	if err := json.Unmarshal(env.Data, &sessionID); err != nil {
		t.Fatalf("decode session id: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(sessionID) {
		t.Fatalf("session id is not a generated token: %q", sessionID)
	}
}

func TestSessionHandshakeExplicitID(t *testing.T) {
	cfg := testConfig(true)
	conn, h := startServer(t, cfg, &testVoices{}, func(context.Context, *channel.UserMessage) error {
		return nil
	})

	for i := 0; i < 2; i++ {
		sendEvent(t, conn, protocol.EventSessionRequest, protocol.SessionRequest{SessionID: "my-session"})
		env := readEnvelope(t, conn)
		var sessionID string
		if err := json.Unmarshal(env.Data, &sessionID); err != nil {
			t.Fatalf("decode session id: %v", err)
		}
		if sessionID != "my-session" {
			t.Fatalf("expected my-session, got %q", sessionID)
		}
	}

	// Repeated requests do not create a second room
	if h.RoomCount() != 1 {
		t.Fatalf("expected 1 room, got %d", h.RoomCount())
	}
}

func TestUserMessageRoundTrip(t *testing.T) {
	var mu sync.Mutex
	var received []string
	conn, _ := startServer(t, testConfig(false), &testVoices{}, func(ctx context.Context, msg *channel.UserMessage) error {
		mu.Lock()
		received = append(received, msg.Text)
		mu.Unlock()
		return msg.Output.SendText(ctx, msg.SenderID, "hi there")
	})

	sendEvent(t, conn, protocol.DefaultUserMessageEvent, protocol.UserMessage{Message: "hello", Type: "text"})

	env := readEnvelope(t, conn)
	if env.Type != protocol.DefaultBotMessageEvent {
		t.Fatalf("expected bot_uttered, got %s", env.Type)
	}
	var payload map[string]any
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["text"] != "hi there" {
		t.Fatalf("unexpected reply: %v", payload)
	}
	if _, present := payload["audio"]; present {
		t.Fatal("text turn must not carry an audio field")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "hello" {
		t.Fatalf("pipeline received %v", received)
	}
}

func TestUserMessageWithoutSessionDroppedUnderPersistence(t *testing.T) {
	dispatched := 0
	var mu sync.Mutex
	conn, _ := startServer(t, testConfig(true), &testVoices{}, func(context.Context, *channel.UserMessage) error {
		mu.Lock()
		dispatched++
		mu.Unlock()
		return nil
	})

	sendEvent(t, conn, protocol.DefaultUserMessageEvent, protocol.UserMessage{Message: "hello"})
	expectSilence(t, conn)

	mu.Lock()
	defer mu.Unlock()
	if dispatched != 0 {
		t.Fatalf("expected no pipeline dispatches, got %d", dispatched)
	}
}

func TestAudioMessageVoicedReply(t *testing.T) {
	audio := "c3ludGg="
	conn, _ := startServer(t, testConfig(false), &testVoices{transcript: "decoded words", audio: &audio},
		func(ctx context.Context, msg *channel.UserMessage) error {
			if msg.Text != "decoded words" {
				t.Errorf("expected transcription, got %q", msg.Text)
			}
			return msg.Output.SendText(ctx, msg.SenderID, "hi there")
		})

	sendEvent(t, conn, protocol.DefaultUserMessageEvent, protocol.UserMessage{Message: "ZmFrZQ==", Type: "audio"})

	env := readEnvelope(t, conn)
	var payload map[string]any
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["audio"] != audio {
		t.Fatalf("expected synthesized audio on reply, got %v", payload["audio"])
	}
}

func TestButtonReplyFragmentOrdering(t *testing.T) {
	buttons := []protocol.Button{
		{Title: "A", Payload: "/a"},
		{Title: "B", Payload: "/b"},
	}
	conn, _ := startServer(t, testConfig(false), &testVoices{}, func(ctx context.Context, msg *channel.UserMessage) error {
		return msg.Output.SendTextWithButtons(ctx, msg.SenderID, "Pick one\n\nA or B?", buttons)
	})

	sendEvent(t, conn, protocol.DefaultUserMessageEvent, protocol.UserMessage{Message: "go"})

	first := readEnvelope(t, conn)
	var firstPayload struct {
		Text         string                `json:"text"`
		QuickReplies []protocol.QuickReply `json:"quick_replies"`
	}
	if err := json.Unmarshal(first.Data, &firstPayload); err != nil {
		t.Fatalf("decode first fragment: %v", err)
	}
	if firstPayload.Text != "Pick one" || len(firstPayload.QuickReplies) != 0 {
		t.Fatalf("unexpected first fragment: %+v", firstPayload)
	}

	second := readEnvelope(t, conn)
	var secondPayload struct {
		Text         string                `json:"text"`
		QuickReplies []protocol.QuickReply `json:"quick_replies"`
	}
	if err := json.Unmarshal(second.Data, &secondPayload); err != nil {
		t.Fatalf("decode second fragment: %v", err)
	}
	if secondPayload.Text != "A or B?" {
		t.Fatalf("unexpected second fragment: %+v", secondPayload)
	}
	want := []protocol.QuickReply{
		{ContentType: "text", Title: "A", Payload: "/a"},
		{ContentType: "text", Title: "B", Payload: "/b"},
	}
	if len(secondPayload.QuickReplies) != len(want) {
		t.Fatalf("expected %d quick replies, got %d", len(want), len(secondPayload.QuickReplies))
	}
	for i := range want {
		if secondPayload.QuickReplies[i] != want[i] {
			t.Fatalf("quick reply %d: expected %+v, got %+v", i, want[i], secondPayload.QuickReplies[i])
		}
	}
}

func TestPerConnectionEventOrdering(t *testing.T) {
	var mu sync.Mutex
	var received []string
	conn, _ := startServer(t, testConfig(false), &testVoices{}, func(_ context.Context, msg *channel.UserMessage) error {
		mu.Lock()
		received = append(received, msg.Text)
		mu.Unlock()
		return nil
	})

	for _, text := range []string{"one", "two", "three"} {
		sendEvent(t, conn, protocol.DefaultUserMessageEvent, protocol.UserMessage{Message: text})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 || received[0] != "one" || received[1] != "two" || received[2] != "three" {
		t.Fatalf("events processed out of order: %v", received)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	conn, _ := startServer(t, testConfig(false), &testVoices{}, func(context.Context, *channel.UserMessage) error {
		return nil
	})

	sendEvent(t, conn, "mystery_event", map[string]any{})
	expectSilence(t, conn)
}

func TestNamespaceMismatchIgnored(t *testing.T) {
	cfg := testConfig(false)
	cfg.Namespace = "/chat"
	conn, _ := startServer(t, cfg, &testVoices{}, func(context.Context, *channel.UserMessage) error {
		return nil
	})

	// An envelope without the configured namespace is ignored; only the
	// matching request that follows it gets a confirm.
	sendEvent(t, conn, protocol.EventSessionRequest, map[string]any{})
	data, _ := json.Marshal(protocol.SessionRequest{SessionID: "ns-session"})
	if err := conn.WriteJSON(protocol.Envelope{Type: protocol.EventSessionRequest, Namespace: "/chat", Data: data}); err != nil {
		t.Fatalf("write session_request: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != protocol.EventSessionConfirm {
		t.Fatalf("expected session_confirm, got %s", env.Type)
	}
	if env.Namespace != "/chat" {
		t.Fatalf("expected namespace on outbound envelope, got %q", env.Namespace)
	}
	var sessionID string
	if err := json.Unmarshal(env.Data, &sessionID); err != nil {
		t.Fatalf("decode session id: %v", err)
	}
	if sessionID != "ns-session" {
		t.Fatalf("confirm answered the wrong request: %q", sessionID)
	}
}
