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

package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Client dials a server's Unix socket and issues requests.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to the RPC server listening on the given Unix socket.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		HandshakeTimeout: 10 * time.Second,
	}

	// The host portion is ignored; the NetDialContext routes to the socket.
	conn, _, err := dialer.DialContext(ctx, "ws://leash/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", socketPath, err)
	}

	return &Client{conn: conn}, nil
}

// Call sends a request and waits for the matching response.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*Message, error) {
	req, err := NewRequest(method, params)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
		c.conn.SetWriteDeadline(deadline)
	}

	if err := c.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	for {
		var resp Message
		if err := c.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		// Responses for other in-flight requests are not expected on this
		// connection, but skip mismatches rather than failing.
		if resp.CorrelationID != req.CorrelationID {
			continue
		}

		if resp.Type == MessageTypeError && resp.Error != nil {
			return &resp, fmt.Errorf("rpc error %s: %s", resp.Error.Code, resp.Error.Message)
		}
		return &resp, nil
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
