// Package pipeline provides an HTTP client for the external
// message-processing pipeline.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mxaviersmp/rasa-voice-interface/internal/channel"
	"github.com/mxaviersmp/rasa-voice-interface/internal/protocol"
)

// Client is an HTTP client for the message pipeline's webhook API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new pipeline client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// messageRequest is the webhook request for one normalized user message.
type messageRequest struct {
	SenderID     string `json:"sender_id"`
	Text         string `json:"text"`
	InputChannel string `json:"input_channel"`
}

// Reply is one bot reply produced by the pipeline.
type Reply struct {
	Text    string            `json:"text"`
	Buttons []protocol.Button `json:"buttons,omitempty"`
}

// ErrorResponse represents an error response from the pipeline.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Dispatch sends a normalized message to the pipeline and delivers every
// reply it produces through the message's output channel, in order. It
// returns once all replies have been emitted.
func (c *Client) Dispatch(ctx context.Context, msg *channel.UserMessage) error {
	replies, err := c.send(ctx, msg)
	if err != nil {
		return err
	}

	for _, reply := range replies {
		if len(reply.Buttons) > 0 {
			err = msg.Output.SendTextWithButtons(ctx, msg.SenderID, reply.Text, reply.Buttons)
		} else {
			err = msg.Output.SendText(ctx, msg.SenderID, reply.Text)
		}
		if err != nil {
			return fmt.Errorf("failed to deliver reply: %w", err)
		}
	}
	return nil
}

// Handler adapts the client to the channel's message handler contract.
func (c *Client) Handler() channel.MessageHandler {
	return c.Dispatch
}

// send calls POST /webhooks/message on the pipeline.
func (c *Client) send(ctx context.Context, msg *channel.UserMessage) ([]Reply, error) {
	body, err := json.Marshal(messageRequest{
		SenderID:     msg.SenderID,
		Text:         msg.Text,
		InputChannel: msg.InputChannel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/webhooks/message", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call pipeline: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("pipeline error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("pipeline returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var replies []Reply
	if err := json.NewDecoder(resp.Body).Decode(&replies); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline response: %w", err)
	}
	return replies, nil
}
