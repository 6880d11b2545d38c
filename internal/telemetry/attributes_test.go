// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("POST", "/sessions/{id}/commands/{kind}", 202)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, HTTPMethodKey, "POST")
	verifyAttribute(t, attrs, HTTPRouteKey, "/sessions/{id}/commands/{kind}")
	verifyIntAttribute(t, attrs, HTTPStatusCodeKey, 202)
}

func TestSessionAttributes(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		authMode  string
		host      string
		wantLen   int
	}{
		{name: "all fields", sessionID: "s-1", authMode: "trusted-token", host: "https://a.example.com", wantLen: 3},
		{name: "only session", sessionID: "s-1", wantLen: 1},
		{name: "empty", wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := SessionAttributes(tt.sessionID, tt.authMode, tt.host)
			if len(attrs) != tt.wantLen {
				t.Fatalf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			if tt.sessionID != "" {
				verifyAttribute(t, attrs, SessionIDKey, tt.sessionID)
			}
		})
	}
}

func TestCommandAttributes(t *testing.T) {
	attrs := CommandAttributes("GetFilters", "abc-1", true)
	verifyAttribute(t, attrs, CommandKindKey, "GetFilters")
	verifyAttribute(t, attrs, CommandCorrelationIDKey, "abc-1")
	for _, a := range attrs {
		if string(a.Key) == CommandExpectsReplyKey && !a.Value.AsBool() {
			t.Error("Expected expects_reply=true")
		}
	}
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("boom"), "auth")
	verifyAttribute(t, attrs, ErrorTypeKey, "auth")
}

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, want string) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			if got := a.Value.AsString(); got != want {
				t.Errorf("Attribute %s: expected %q, got %q", key, want, got)
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, want int64) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			if got := a.Value.AsInt64(); got != want {
				t.Errorf("Attribute %s: expected %d, got %d", key, want, got)
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
