// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package telemetry provides OpenTelemetry tracing utilities for embedbridge.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Session attributes
	SessionIDKey    = "embed.session_id"
	SessionAuthKey  = "embed.auth_mode"
	SessionStateKey = "embed.state"
	SessionHostKey  = "embed.host"

	// Command attributes
	CommandKindKey          = "command.kind"
	CommandCorrelationIDKey = "command.correlation_id"
	CommandExpectsReplyKey  = "command.expects_reply"

	// Event attributes
	EventKindKey = "event.kind"

	// Token attributes
	TokenSharedKey = "token.shared"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes creates session span attributes, skipping empty values.
func SessionAttributes(sessionID, authMode, host string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if authMode != "" {
		attrs = append(attrs, attribute.String(SessionAuthKey, authMode))
	}
	if host != "" {
		attrs = append(attrs, attribute.String(SessionHostKey, host))
	}
	return attrs
}

// CommandAttributes creates host command span attributes.
func CommandAttributes(kind, correlationID string, expectsReply bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CommandKindKey, kind),
		attribute.String(CommandCorrelationIDKey, correlationID),
		attribute.Bool(CommandExpectsReplyKey, expectsReply),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
