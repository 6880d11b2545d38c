// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedConfig(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		mode    AuthMode
		custom  Customization
		wantErr bool
	}{
		{name: "valid https", host: "https://analytics.example.com", mode: AuthTrustedTokenCookieless},
		{name: "valid with stylesheet", host: "https://a.example.com", mode: AuthNone, custom: Customization{StylesheetURL: "https://cdn.example.com/x.css"}},
		{name: "empty host", host: "", mode: AuthNone, wantErr: true},
		{name: "bad scheme", host: "ftp://a.example.com", mode: AuthNone, wantErr: true},
		{name: "unknown mode", host: "https://a.example.com", mode: AuthMode("kerberos"), wantErr: true},
		{name: "bad stylesheet", host: "https://a.example.com", mode: AuthNone, custom: Customization{StylesheetURL: "not a url"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewEmbedConfig(tt.host, tt.mode, tt.custom)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.False(t, cfg.Valid())
				return
			}
			require.NoError(t, err)
			assert.True(t, cfg.Valid())
			assert.Equal(t, tt.host, cfg.Host())
			assert.Equal(t, tt.mode, cfg.AuthMode())
		})
	}
}

func TestEmbedConfig_CustomizationIsCopied(t *testing.T) {
	vars := map[string]string{"--primary": "#fff"}
	cfg, err := NewEmbedConfig("https://a.example.com", AuthNone, Customization{Variables: vars})
	require.NoError(t, err)

	vars["--primary"] = "#000"
	got := cfg.Customization()
	assert.Equal(t, "#fff", got.Variables["--primary"])

	got.Variables["--primary"] = "#111"
	assert.Equal(t, "#fff", cfg.Customization().Variables["--primary"])
}

func TestEmbedConfig_ZeroValueInvalid(t *testing.T) {
	var cfg EmbedConfig
	assert.False(t, cfg.Valid())
	assert.Empty(t, cfg.Host())
	assert.Nil(t, cfg.HostURL())
}

func TestDecodeEvent_ContentRenderedSurfacesAsLiveboardRendered(t *testing.T) {
	ev := DecodeEvent(Message{
		Direction: ContentToHost,
		Kind:      WireContentRendered,
		Payload:   Payload{"contentId": "lb-1"},
	})

	assert.Equal(t, EventLiveboardRendered, ev.Kind)
	want := RenderedDetail{Version: DetailVersion, ContentID: "lb-1", WireKind: WireContentRendered}
	if diff := cmp.Diff(want, ev.Detail); diff != "" {
		t.Fatalf("detail mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEvent_ErrorDetail(t *testing.T) {
	ev := DecodeEvent(Message{
		Direction: ContentToHost,
		Kind:      "Error",
		Payload:   Payload{"message": "token rejected", "code": CodeAuthExpired},
	})

	d, ok := ev.Detail.(ErrorDetail)
	require.True(t, ok)
	assert.Equal(t, "token rejected", d.Reason)
	assert.True(t, d.AuthExpired)
	assert.True(t, ev.IsAuthExpiry())

	err := ev.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentReported)
}

func TestDecodeEvent_UnknownKindKeepsPayload(t *testing.T) {
	msg := Message{Direction: ContentToHost, Kind: "VizPointClick", Payload: Payload{"x": 1.0}}
	ev := DecodeEvent(msg)

	assert.Equal(t, EventKind("VizPointClick"), ev.Kind)
	assert.Nil(t, ev.Detail)
	assert.Nil(t, ev.Err())

	ev.Payload["x"] = 2.0
	assert.Equal(t, 1.0, msg.Payload["x"])
}

func TestDecodeEvent_NilPayload(t *testing.T) {
	ev := DecodeEvent(Message{Direction: ContentToHost, Kind: "Load"})
	assert.NotNil(t, ev.Payload)
	assert.False(t, ev.IsAuthExpiry())
}

func TestNewErrorEvent(t *testing.T) {
	ev := NewErrorEvent(CodeAuthFailed, "network down")

	assert.True(t, ev.Synthesized)
	assert.Equal(t, EventError, ev.Kind)
	assert.Equal(t, "network down", ev.Payload.String("reason"))
	assert.Equal(t, CodeAuthFailed, ev.Payload.String("code"))
	assert.False(t, ev.IsAuthExpiry())
}

func TestHostEventKind_ExpectsReply(t *testing.T) {
	for _, k := range KnownHostEventKinds() {
		want := k == HostGetFilters || k == HostGetTabs || k == HostGetIframeURL
		assert.Equal(t, want, k.ExpectsReply(), k)
		assert.True(t, k.IsKnown())
	}
	assert.False(t, HostEventKind("Custom").ExpectsReply())
	assert.False(t, HostEventKind("Custom").IsKnown())
}

func TestParseHostEventKind(t *testing.T) {
	k, err := ParseHostEventKind("getfilters")
	require.NoError(t, err)
	assert.Equal(t, HostGetFilters, k)

	_, err = ParseHostEventKind("Explode")
	assert.ErrorIs(t, err, ErrUnknownHostEvent)
}

func TestHostEvent_Message(t *testing.T) {
	ev := HostEvent{Kind: HostUpdateFilters, Payload: Payload{"col": "region"}}
	msg := ev.Message("c-1")

	require.NoError(t, msg.Validate())
	assert.Equal(t, HostToContent, msg.Direction)
	assert.Equal(t, "UpdateFilters", msg.Kind)
	assert.Equal(t, "c-1", msg.CorrelationID)

	msg.Payload["col"] = "other"
	assert.Equal(t, "region", ev.Payload["col"])
}

func TestMessage_Validate(t *testing.T) {
	assert.ErrorIs(t, Message{Direction: "sideways", Kind: "x"}.Validate(), ErrMalformedMessage)
	assert.ErrorIs(t, Message{Direction: ContentToHost, Kind: "  "}.Validate(), ErrMalformedMessage)
	assert.NoError(t, Message{Direction: ContentToHost, Kind: "Load"}.Validate())

	assert.True(t, Message{Direction: ContentToHost, Kind: "r", CorrelationID: "1"}.IsReply())
	assert.False(t, Message{Direction: HostToContent, Kind: "r", CorrelationID: "1"}.IsReply())
}

func TestPayload_Accessors(t *testing.T) {
	p := Payload{"s": "v", "b": true, "f": 3.0, "u": uint64(4), "bad": []int{1}}
	assert.Equal(t, "v", p.String("s"))
	assert.Empty(t, p.String("b"))
	assert.True(t, p.Bool("b"))

	n, ok := p.Int("f")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	n, ok = p.Int("u")
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	_, ok = p.Int("bad")
	assert.False(t, ok)

	assert.Nil(t, Payload(nil).Clone())
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("network down")
	authErr := &AuthError{Reason: cause.Error(), Err: cause}
	assert.ErrorIs(t, authErr, ErrAuth)
	assert.ErrorIs(t, authErr, cause)
	assert.Equal(t, "auth failed: network down", authErr.Error())

	chErr := &ChannelError{Op: "send", Err: ErrChannelNotReady}
	assert.ErrorIs(t, chErr, ErrChannel)
	assert.ErrorIs(t, chErr, ErrChannelNotReady)

	toErr := &CommandTimeoutError{Kind: HostGetTabs, CorrelationID: "c", After: time.Second}
	assert.ErrorIs(t, toErr, ErrCommandTimeout)
	var target *CommandTimeoutError
	require.ErrorAs(t, error(toErr), &target)
	assert.Equal(t, HostGetTabs, target.Kind)
}

func TestSessionToken_Redacted(t *testing.T) {
	assert.Equal(t, "tok-****", SessionToken{Value: "tok-123"}.Redacted())
	assert.Equal(t, "****", SessionToken{Value: "abc"}.Redacted())
	assert.True(t, SessionToken{}.IsZero())
}

func TestState_Classification(t *testing.T) {
	assert.True(t, StateDisposed.IsTerminal())
	assert.False(t, StateError.IsTerminal())
	assert.True(t, StateError.IsTransient())
	assert.True(t, StateReloading.IsTransient())
	assert.False(t, StateReady.IsTransient())
}

func TestAuthMode_Validity(t *testing.T) {
	for _, m := range AuthModes() {
		assert.True(t, m.IsValid(), m)
	}
	assert.False(t, AuthMode("").IsValid())
	assert.False(t, AuthNone.RequiresToken())
	assert.True(t, AuthTrustedToken.RequiresToken())
}
