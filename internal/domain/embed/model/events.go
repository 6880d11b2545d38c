// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// EventKind names an embed event (content -> host).
type EventKind string

const (
	EventAuthInit          EventKind = "AuthInit"
	EventLoad              EventKind = "Load"
	EventLiveboardRendered EventKind = "LiveboardRendered"
	EventError             EventKind = "Error"
	EventAuthExpire        EventKind = "AuthExpire"
	EventData              EventKind = "Data"
	EventFiltersChanged    EventKind = "FiltersChanged"
)

// WireContentRendered is the wire kind the embedded content emits once its
// first render completes. It is surfaced to listeners as EventLiveboardRendered.
const WireContentRendered = "ContentRendered"

// DetailVersion is the schema version of the typed event details below.
const DetailVersion = 1

// Error codes used in synthesized Error events.
const (
	CodeAuthFailed    = "auth_failed"
	CodeAuthExpired   = "auth_expired"
	CodeChannelClosed = "channel_closed"
	CodeLoadFailed    = "load_failed"
)

var wireAliases = map[string]EventKind{
	WireContentRendered: EventLiveboardRendered,
}

// KnownEventKinds lists the kinds with a typed detail or lifecycle meaning.
func KnownEventKinds() []EventKind {
	return []EventKind{
		EventAuthInit, EventLoad, EventLiveboardRendered, EventError,
		EventAuthExpire, EventData, EventFiltersChanged,
	}
}

// EventDetail is the typed view of a known event kind's payload.
type EventDetail interface {
	DetailKind() EventKind
}

// ErrorDetail describes an Error event, reported by the content or
// synthesized by the controller.
type ErrorDetail struct {
	Version     int
	Code        string
	Reason      string
	AuthExpired bool
}

func (ErrorDetail) DetailKind() EventKind { return EventError }

// RenderedDetail describes a LiveboardRendered event.
type RenderedDetail struct {
	Version   int
	ContentID string
	WireKind  string
}

func (RenderedDetail) DetailKind() EventKind { return EventLiveboardRendered }

// AuthInitDetail describes an AuthInit event.
type AuthInitDetail struct {
	Version  int
	UserGUID string
}

func (AuthInitDetail) DetailKind() EventKind { return EventAuthInit }

// AuthExpireDetail describes an AuthExpire event.
type AuthExpireDetail struct {
	Version int
	Reason  string
}

func (AuthExpireDetail) DetailKind() EventKind { return EventAuthExpire }

// EmbedEvent is one inbound notification from the embedded content.
// Payload always holds the raw structured body; Detail is set only for
// kinds with a known schema.
type EmbedEvent struct {
	Kind        EventKind
	Payload     Payload
	Detail      EventDetail
	Synthesized bool
}

// IsAuthExpiry reports whether the event signals that the session token
// is no longer accepted by the remote service.
func (e EmbedEvent) IsAuthExpiry() bool {
	switch d := e.Detail.(type) {
	case AuthExpireDetail:
		return true
	case ErrorDetail:
		return d.AuthExpired
	}
	return false
}

// Err converts an Error event into a ContentReportedError; other kinds yield nil.
func (e EmbedEvent) Err() error {
	d, ok := e.Detail.(ErrorDetail)
	if !ok {
		return nil
	}
	return &ContentReportedError{Code: d.Code, Reason: d.Reason, AuthExpired: d.AuthExpired}
}

// CanonicalEventKind maps a wire kind to the event kind listeners register for.
func CanonicalEventKind(wireKind string) EventKind {
	if k, ok := wireAliases[wireKind]; ok {
		return k
	}
	return EventKind(wireKind)
}

// DecodeEvent turns an inbound message into an embed event.
func DecodeEvent(msg Message) EmbedEvent {
	payload := msg.Payload.Clone()
	if payload == nil {
		payload = Payload{}
	}
	kind := CanonicalEventKind(msg.Kind)
	return EmbedEvent{
		Kind:    kind,
		Payload: payload,
		Detail:  decodeDetail(kind, msg.Kind, payload),
	}
}

func decodeDetail(kind EventKind, wireKind string, p Payload) EventDetail {
	switch kind {
	case EventError:
		code := p.String("code")
		return ErrorDetail{
			Version:     DetailVersion,
			Code:        code,
			Reason:      firstString(p, "reason", "message", "error"),
			AuthExpired: p.Bool("authExpired") || code == CodeAuthExpired,
		}
	case EventLiveboardRendered:
		return RenderedDetail{
			Version:   DetailVersion,
			ContentID: firstString(p, "contentId", "liveboardId"),
			WireKind:  wireKind,
		}
	case EventAuthInit:
		return AuthInitDetail{Version: DetailVersion, UserGUID: p.String("userGUID")}
	case EventAuthExpire:
		return AuthExpireDetail{Version: DetailVersion, Reason: p.String("reason")}
	}
	return nil
}

func firstString(p Payload, keys ...string) string {
	for _, k := range keys {
		if v := p.String(k); v != "" {
			return v
		}
	}
	return ""
}

// NewErrorEvent builds an Error event synthesized locally by the host side.
func NewErrorEvent(code, reason string) EmbedEvent {
	return EmbedEvent{
		Kind: EventError,
		Payload: Payload{
			"code":   code,
			"reason": reason,
			"source": "host",
		},
		Detail: ErrorDetail{
			Version:     DetailVersion,
			Code:        code,
			Reason:      reason,
			AuthExpired: code == CodeAuthExpired,
		},
		Synthesized: true,
	}
}
