// Package config provides configuration for the channel server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the channel server configuration.
type Config struct {
	// Server settings
	Port int `env:"PORT" envDefault:"5005"`

	// Channel settings
	UserMessageEvent   string `env:"USER_MESSAGE_EVT" envDefault:"user_uttered"`
	BotMessageEvent    string `env:"BOT_MESSAGE_EVT" envDefault:"bot_uttered"`
	Namespace          string `env:"NAMESPACE"`
	SessionPersistence bool   `env:"SESSION_PERSISTENCE" envDefault:"false"`
	SocketPath         string `env:"SOCKET_PATH" envDefault:"/socket.io"`

	// Speech service settings
	VoiceURL     string        `env:"VOICE_URL"`
	VoiceTimeout time.Duration `env:"VOICE_TIMEOUT" envDefault:"10s"`

	// Message pipeline settings
	PipelineURL     string        `env:"PIPELINE_URL" envDefault:"http://localhost:5055"`
	PipelineTimeout time.Duration `env:"PIPELINE_TIMEOUT" envDefault:"30s"`

	// Socket settings
	PingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	ReadTimeout    time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"1048576"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.VoiceURL = strings.TrimSuffix(cfg.VoiceURL, "/")
	return cfg, nil
}
