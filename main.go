package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mxaviersmp/rasa-voice-interface/internal/channel"
	"github.com/mxaviersmp/rasa-voice-interface/internal/config"
	internalhttp "github.com/mxaviersmp/rasa-voice-interface/internal/http"
	"github.com/mxaviersmp/rasa-voice-interface/internal/hub"
	"github.com/mxaviersmp/rasa-voice-interface/internal/pipeline"
	"github.com/mxaviersmp/rasa-voice-interface/internal/voice"
	"github.com/mxaviersmp/rasa-voice-interface/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting channel server...")
	log.Printf("Port: %d", cfg.Port)
	log.Printf("Socket path: %s", cfg.SocketPath)
	log.Printf("Session persistence: %v", cfg.SessionPersistence)
	log.Printf("Pipeline URL: %s", cfg.PipelineURL)

	// Initialize hub
	connectionHub := hub.NewHub(cfg.Namespace)
	go connectionHub.Run()

	// Initialize speech service client
	voices := voice.New(cfg.VoiceURL, cfg.VoiceTimeout)

	// Build the socket channel through the registry
	factory, err := channel.DefaultRegistry().Get(channel.SocketChannelName)
	if err != nil {
		log.Fatalf("Failed to resolve channel: %v", err)
	}
	socketChannel, ok := factory(cfg, voices).(*channel.SocketChannel)
	if !ok {
		log.Fatalf("Channel %s is not a socket channel", channel.SocketChannelName)
	}

	// Attach the live transport and the pipeline handler
	pipelineClient := pipeline.NewClient(cfg.PipelineURL, cfg.PipelineTimeout)
	socketChannel.Attach(connectionHub, pipelineClient.Handler())

	// Initialize servers
	socketServer := ws.NewServer(cfg, connectionHub, socketChannel)
	httpServer := internalhttp.NewServer(cfg, socketServer)

	// Start HTTP server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	log.Printf("Channel server started on port %d", cfg.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down channel server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}

	log.Println("Channel server stopped")
}
