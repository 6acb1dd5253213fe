// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/leashd/leash/internal/session"
)

// Client is a client for the leashd daemon API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a new daemon client with the given options.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: "http://localhost", // Default for Unix socket
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.httpClient == nil {
		transport, err := DefaultTransport()
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		c.httpClient = &http.Client{Transport: transport}
	}

	return c, nil
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithTransport sets a custom transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{Transport: transport}
		return nil
	}
}

// SessionNotice is the payload sent when a supervised session starts or ends.
type SessionNotice struct {
	MachineID string           `json:"machine_id"`
	SessionID string           `json:"session_id"`
	Metadata  session.Metadata `json:"metadata"`
}

// NotifySessionStarted tells the daemon a supervised session began.
func (c *Client) NotifySessionStarted(ctx context.Context, notice SessionNotice) error {
	return c.post(ctx, "/v1/sessions", notice)
}

// NotifySessionEnded tells the daemon a supervised session was archived.
func (c *Client) NotifySessionEnded(ctx context.Context, notice SessionNotice) error {
	return c.post(ctx, "/v1/sessions/"+notice.SessionID+"/end", notice)
}

// post performs a POST request with a JSON body and discards the response.
func (c *Client) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned error %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
