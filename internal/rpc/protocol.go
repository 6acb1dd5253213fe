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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidMessage is returned when a message cannot be parsed.
	ErrInvalidMessage = errors.New("rpc: invalid message format")

	// ErrMissingCorrelationID is returned when a message lacks a correlation ID.
	ErrMissingCorrelationID = errors.New("rpc: missing correlation ID")

	// ErrMethodNotFound is returned when the requested method doesn't exist.
	ErrMethodNotFound = errors.New("rpc: method not found")
)

// MessageType identifies the type of RPC message.
type MessageType string

const (
	// MessageTypeRequest is a request from client to server.
	MessageTypeRequest MessageType = "request"

	// MessageTypeResponse is a response from server to client.
	MessageTypeResponse MessageType = "response"

	// MessageTypeError is an error response.
	MessageTypeError MessageType = "error"
)

// Message is the base structure for all RPC messages.
type Message struct {
	// Type identifies the message type
	Type MessageType `json:"type"`

	// CorrelationID links requests with responses
	CorrelationID string `json:"correlationId"`

	// Method is the RPC method to invoke (request only)
	Method string `json:"method,omitempty"`

	// Params contains method parameters (request only)
	Params json.RawMessage `json:"params,omitempty"`

	// Result contains the response data (response only)
	Result json.RawMessage `json:"result,omitempty"`

	// Error contains error information (error only)
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse contains structured error information.
type ErrorResponse struct {
	// Code is a machine-readable error code
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`
}

// NewRequest creates a new request message with a generated correlation ID.
func NewRequest(method string, params interface{}) (*Message, error) {
	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}

	return &Message{
		Type:          MessageTypeRequest,
		CorrelationID: uuid.New().String(),
		Method:        method,
		Params:        paramsJSON,
	}, nil
}

// NewResponse creates a response message for the given request.
func NewResponse(req *Message, result interface{}) (*Message, error) {
	var resultJSON json.RawMessage
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = data
	}

	return &Message{
		Type:          MessageTypeResponse,
		CorrelationID: req.CorrelationID,
		Result:        resultJSON,
	}, nil
}

// NewErrorResponse creates an error message for the given request.
func NewErrorResponse(req *Message, code, message string) *Message {
	return &Message{
		Type:          MessageTypeError,
		CorrelationID: req.CorrelationID,
		Error: &ErrorResponse{
			Code:    code,
			Message: message,
		},
	}
}

// Validate checks that a message is well-formed.
func (m *Message) Validate() error {
	if m.CorrelationID == "" {
		return ErrMissingCorrelationID
	}

	switch m.Type {
	case MessageTypeRequest:
		if m.Method == "" {
			return fmt.Errorf("%w: request missing method", ErrInvalidMessage)
		}
	case MessageTypeResponse, MessageTypeError:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}

	return nil
}
