// Package transcribe is the HTTP client for the speech-to-text endpoint.
// It contains no scheduling logic; submission retries and latency
// measurement are wired up by the app through the scheduler and monitor.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "voxnote/pkg/logx"
)

type Config struct {
	BaseURL string
	APIKey  string

	// Timeout caps a single request; the retry task decides how often a
	// failed submission is re-attempted.
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("transcribe base_url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}, nil
}

type transcriptResponse struct {
	Text string `json:"text"`
}

// Transcribe submits one audio payload and returns the transcript text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty audio payload")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/transcripts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a short error body for diagnostics; cap it so a broken
		// server can't balloon the log.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transcribe: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var tr transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}
	c.log.Debug("transcript received",
		logx.Int("audio_bytes", len(audio)),
		logx.Duration("took", time.Since(start)),
	)
	return tr.Text, nil
}
