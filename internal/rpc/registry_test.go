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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry()
	reg.Register("session.kill", func(ctx context.Context, req *Message) (*Message, error) {
		return NewResponse(req, map[string]string{"status": "terminating"})
	})

	req, err := NewRequest("session.kill", nil)
	require.NoError(t, err)

	resp, err := reg.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeResponse, resp.Type)
	assert.Equal(t, req.CorrelationID, resp.CorrelationID)
	assert.JSONEq(t, `{"status":"terminating"}`, string(resp.Result))
}

func TestRegistryMethodNotFound(t *testing.T) {
	reg := NewRegistry()

	req, err := NewRequest("nope", nil)
	require.NoError(t, err)

	_, err = reg.Handle(context.Background(), req)
	assert.ErrorIs(t, err, ErrMethodNotFound)
}

func TestRegistryMethods(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", func(ctx context.Context, req *Message) (*Message, error) { return nil, nil })
	reg.Register("a", func(ctx context.Context, req *Message) (*Message, error) { return nil, nil })

	assert.Equal(t, []string{"a", "b"}, reg.Methods())
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr error
	}{
		{
			name:    "missing correlation id",
			msg:     Message{Type: MessageTypeRequest, Method: "x"},
			wantErr: ErrMissingCorrelationID,
		},
		{
			name:    "request missing method",
			msg:     Message{Type: MessageTypeRequest, CorrelationID: "1"},
			wantErr: ErrInvalidMessage,
		},
		{
			name:    "unknown type",
			msg:     Message{Type: "stream", CorrelationID: "1"},
			wantErr: ErrInvalidMessage,
		},
		{
			name: "valid request",
			msg:  Message{Type: MessageTypeRequest, CorrelationID: "1", Method: "x"},
		},
		{
			name: "valid response",
			msg:  Message{Type: MessageTypeResponse, CorrelationID: "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
