// Package voice provides an HTTP client for the external speech service.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Bridge translates between text and encoded audio through the speech
// service's /stt and /tts endpoints.
//
// Both operations fail soft: on any transport or decode failure they degrade
// to an empty transcript or an absent clip instead of returning an error, so
// the turn continues as text only.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new speech service client. The timeout bounds each call so a
// slow speech backend cannot stall a connection's turn indefinitely.
func New(baseURL string, timeout time.Duration) *Bridge {
	return &Bridge{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Transcribe converts an encoded audio clip to text. It returns an empty
// string when the speech service is unreachable or replies with garbage.
func (b *Bridge) Transcribe(ctx context.Context, audio string) string {
	var out struct {
		Text string `json:"text"`
	}
	if err := b.post(ctx, "/stt", map[string]string{"audio": audio}, &out); err != nil {
		log.Printf("voice: transcription failed, continuing with empty text: %v", err)
		return ""
	}
	return out.Text
}

// Synthesize converts text to an encoded audio clip. It returns nil when the
// speech service is unreachable or replies with garbage.
func (b *Bridge) Synthesize(ctx context.Context, text string) *string {
	var out struct {
		Audio *string `json:"audio"`
	}
	if err := b.post(ctx, "/tts", map[string]string{"text": text}, &out); err != nil {
		log.Printf("voice: synthesis failed, sending text only: %v", err)
		return nil
	}
	return out.Audio
}

func (b *Bridge) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call speech service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("speech service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode speech service response: %w", err)
	}
	return nil
}
