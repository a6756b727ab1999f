// Package graph issues the outbound HTTP calls the platform adapters
// build. It is the only component that talks to the platforms' APIs.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matheus3301/relay/internal/platform"
)

// Read at most this much of a response body; platform error pages can be
// arbitrarily large.
const maxResponseBytes = 1 << 20

// Client executes adapter-built platform requests.
type Client struct {
	http *http.Client
}

// NewClient creates a client with a bounded request timeout. The timeout
// is the only cancellation the relay applies to a send beyond the
// caller's context.
func NewClient() *Client {
	return &Client{
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// Do issues req and returns the raw response body. A non-2xx status is an
// error carrying the status and a snippet of the body.
func (c *Client) Do(ctx context.Context, req platform.Request) ([]byte, error) {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.AuthHeader != "" {
		httpReq.Header.Set("Authorization", req.AuthHeader)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", req.Endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("platform api returned %s: %s", resp.Status, snippet(body))
	}
	return body, nil
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
