package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"botforge/internal/training"
	"botforge/pkg/types"
)

// RESTClient talks to an engine that is already running elsewhere, over its
// REST channel webhook. Training is not available through that surface.
type RESTClient struct {
	baseURL string
	client  *http.Client
}

// NewRESTClient wires a client for baseURL, e.g. "http://localhost:5005".
// Timeout=0 on purpose: callers pass contexts carrying deadlines.
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 0},
	}
}

func (c *RESTClient) Train(ctx context.Context, data training.Data, dir string) (Artifact, error) {
	return Artifact{}, fmt.Errorf("rest engine cannot train: engine at %s owns its own model", c.baseURL)
}

func (c *RESTClient) Infer(ctx context.Context, art Artifact, sender, message string) ([]types.BotMessage, error) {
	payload, err := json.Marshal(types.ChatRequest{Sender: sender, Message: message})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/webhooks/rest/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("engine http error: %s: %s", resp.Status, string(b))
	}
	var msgs []types.BotMessage
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}
	return msgs, nil
}

func (c *RESTClient) Close() error { return nil }
