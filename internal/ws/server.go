// Package ws provides the socket server for client connections.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/mxaviersmp/rasa-voice-interface/internal/channel"
	"github.com/mxaviersmp/rasa-voice-interface/internal/config"
	"github.com/mxaviersmp/rasa-voice-interface/internal/hub"
	"github.com/mxaviersmp/rasa-voice-interface/internal/protocol"
)

// Server handles socket connections and hands their events to the channel.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	channel  *channel.SocketChannel
	upgrader websocket.Upgrader
}

// NewServer creates a new socket server.
func NewServer(cfg *config.Config, h *hub.Hub, ch *channel.SocketChannel) *Server {
	return &Server{
		cfg:     cfg,
		hub:     h,
		channel: ch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Allow requests from other origins
				return true
			},
		},
	}
}

// HandleSocket handles the socket upgrade and connection lifecycle.
func (s *Server) HandleSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ws: failed to upgrade connection: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)
	s.channel.HandleConnect(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads events from the socket and dispatches them. Events of one
// connection are handled strictly in received order: each handler, including
// its pipeline call, runs to completion before the next read.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.channel.HandleDisconnect(conn)
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			break
		}

		s.handleEvent(context.Background(), conn, message)
	}
}

// writePump writes queued events to the socket and keeps the connection
// alive with pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("ws: failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent dispatches an incoming event to the channel.
func (s *Server) handleEvent(ctx context.Context, conn *hub.Connection, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("ws: invalid event from %s, ignoring: %v", conn.ID, err)
		return
	}
	if s.cfg.Namespace != "" && env.Namespace != s.cfg.Namespace {
		log.Printf("ws: event for namespace %q from %s ignored", env.Namespace, conn.ID)
		return
	}

	switch env.Type {
	case protocol.EventSessionRequest:
		if err := s.channel.HandleSessionRequest(ctx, conn, env.Data); err != nil {
			log.Printf("ws: session request from %s failed: %v", conn.ID, err)
		}
	case s.channel.UserMessageEvent():
		if err := s.channel.HandleUserMessage(ctx, conn, env.Data); err != nil {
			log.Printf("ws: user message from %s failed: %v", conn.ID, err)
		}
	default:
		log.Printf("ws: unknown event %q from %s ignored", env.Type, conn.ID)
	}
}
