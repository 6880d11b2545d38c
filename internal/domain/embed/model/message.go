// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"maps"
	"strings"
)

// Payload is the JSON-compatible structured body of events and commands.
type Payload map[string]any

// Clone returns a shallow copy; nested values are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// String returns p[key] when it is a string.
func (p Payload) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns p[key] when it is a bool.
func (p Payload) Bool(key string) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return false
}

// Int returns p[key] as an int for the numeric shapes JSON and CBOR decoders produce.
func (p Payload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Message is the wire-level frame exchanged over the message channel.
type Message struct {
	Direction     Direction `json:"direction" cbor:"direction"`
	Kind          string    `json:"kind" cbor:"kind"`
	CorrelationID string    `json:"correlationId,omitempty" cbor:"correlationId,omitempty"`
	Payload       Payload   `json:"payload,omitempty" cbor:"payload,omitempty"`
}

// Validate checks the framing contract every decoded message must honor.
func (m Message) Validate() error {
	if !m.Direction.IsValid() {
		return fmt.Errorf("%w: unknown direction %q", ErrMalformedMessage, m.Direction)
	}
	if strings.TrimSpace(m.Kind) == "" {
		return fmt.Errorf("%w: empty kind", ErrMalformedMessage)
	}
	return nil
}

// IsReply reports whether the message carries a correlation id and so may
// answer an outbound command.
func (m Message) IsReply() bool {
	return m.Direction == ContentToHost && m.CorrelationID != ""
}
