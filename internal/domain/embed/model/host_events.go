// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"strings"
)

// HostEventKind names a command sent from the host into the embedded content.
type HostEventKind string

const (
	HostReload        HostEventKind = "Reload"
	HostShare         HostEventKind = "Share"
	HostUpdateFilters HostEventKind = "UpdateFilters"
	HostNavigate      HostEventKind = "Navigate"
	HostDownload      HostEventKind = "Download"
	HostGetFilters    HostEventKind = "GetFilters"
	HostGetTabs       HostEventKind = "GetTabs"
	HostGetIframeURL  HostEventKind = "GetIframeUrl"
)

var replyExpecting = map[HostEventKind]bool{
	HostReload:        false,
	HostShare:         false,
	HostUpdateFilters: false,
	HostNavigate:      false,
	HostDownload:      false,
	HostGetFilters:    true,
	HostGetTabs:       true,
	HostGetIframeURL:  true,
}

// KnownHostEventKinds lists every statically known command kind.
func KnownHostEventKinds() []HostEventKind {
	return []HostEventKind{
		HostReload, HostShare, HostUpdateFilters, HostNavigate, HostDownload,
		HostGetFilters, HostGetTabs, HostGetIframeURL,
	}
}

// ExpectsReply reports whether the command is answered with a correlated
// reply. Unknown kinds are fire-and-forget.
func (k HostEventKind) ExpectsReply() bool {
	return replyExpecting[k]
}

// IsKnown reports whether k is one of the statically known kinds.
func (k HostEventKind) IsKnown() bool {
	_, ok := replyExpecting[k]
	return ok
}

// ParseHostEventKind resolves a kind name case-insensitively.
func ParseHostEventKind(s string) (HostEventKind, error) {
	s = strings.TrimSpace(s)
	for k := range replyExpecting {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownHostEvent, s)
}

// HostEvent is one outbound command.
type HostEvent struct {
	Kind    HostEventKind
	Payload Payload
}

// Message frames the command for the wire.
func (e HostEvent) Message(correlationID string) Message {
	return Message{
		Direction:     HostToContent,
		Kind:          string(e.Kind),
		CorrelationID: correlationID,
		Payload:       e.Payload.Clone(),
	}
}
