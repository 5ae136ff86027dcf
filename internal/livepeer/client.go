// Package livepeer talks to the Livepeer Studio API and decodes its
// lifecycle webhooks.
package livepeer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Client provides the minimal API surface needed to provision streams.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client with a bounded request timeout.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// StreamInfo is the provider's view of a created stream.
type StreamInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	StreamKey  string `json:"streamKey"`
	PlaybackID string `json:"playbackId"`
}

// CreateStream provisions a recorded stream.
func (c *Client) CreateStream(ctx context.Context, name string) (*StreamInfo, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("livepeer api key not configured")
	}
	body, err := json.Marshal(map[string]any{"name": name, "record": true})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("livepeer create stream: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("livepeer create stream: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var info StreamInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("livepeer create stream: decode: %w", err)
	}
	if info.StreamKey == "" || info.PlaybackID == "" {
		return nil, fmt.Errorf("livepeer create stream: response missing stream key or playback id")
	}
	return &info, nil
}
