// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// MessageType is the wire envelope tag.
type MessageType string

// Wire message types.
const (
	MessageEvent       MessageType = "event"
	MessageSubscribe   MessageType = "subscribe"
	MessageUnsubscribe MessageType = "unsubscribe"
	MessagePing        MessageType = "ping"
	MessagePong        MessageType = "pong"
)

// Message is the envelope exchanged with WebSocket clients.
type Message struct {
	Type           MessageType     `json:"type"`
	ExecutionID    string          `json:"executionId,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	Event          json.RawMessage `json:"event,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NewEventMessage wraps an encoded event. The ids are copied from the event header.
func NewEventMessage(ev Event) (Message, error) {
	data, err := Encode(ev)
	if err != nil {
		return Message{}, err
	}
	h := ev.Header()
	return Message{
		Type:           MessageEvent,
		ExecutionID:    h.ExecutionID,
		ConversationID: h.ConversationID,
		Event:          data,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// WrapPayload wraps an already encoded event payload. The ids are read from
// the payload when it is a JSON object carrying them; otherwise the payload
// is forwarded as is.
func WrapPayload(payload []byte) Message {
	msg := Message{
		Type:      MessageEvent,
		Event:     payload,
		Timestamp: time.Now().UTC(),
	}
	if !json.Valid(payload) {
		// Non-JSON payloads are forwarded as a JSON string.
		quoted, _ := json.Marshal(string(payload))
		msg.Event = quoted
		return msg
	}
	var h struct {
		ExecutionID    string `json:"executionId"`
		ConversationID string `json:"conversationId"`
	}
	if json.Unmarshal(payload, &h) == nil {
		msg.ExecutionID = h.ExecutionID
		msg.ConversationID = h.ConversationID
	}
	return msg
}

// NewPing returns a ping message.
func NewPing() Message {
	return Message{Type: MessagePing, Timestamp: time.Now().UTC()}
}

// NewPong returns a pong message.
func NewPong() Message {
	return Message{Type: MessagePong, Timestamp: time.Now().UTC()}
}

// Marshal encodes m as JSON.
func (m Message) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses an inbound control frame. Only the type field is
// required; any timestamp or event payload sent by the client is ignored.
func DecodeMessage(data []byte) (Message, error) {
	var in struct {
		Type           MessageType `json:"type"`
		ExecutionID    string      `json:"executionId"`
		ConversationID string      `json:"conversationId"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if in.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	return Message{
		Type:           in.Type,
		ExecutionID:    in.ExecutionID,
		ConversationID: in.ConversationID,
	}, nil
}
