// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// State is the lifecycle state of one embed session controller.
type State string

const (
	StateUninitialized  State = "UNINITIALIZED"
	StateAuthenticating State = "AUTHENTICATING"
	StateLoading        State = "LOADING"
	StateReady          State = "READY"
	StateError          State = "ERROR"
	StateReloading      State = "RELOADING"
	StateDisposed       State = "DISPOSED"
)

// IsTerminal returns true if no transition can leave the state.
func (s State) IsTerminal() bool {
	return s == StateDisposed
}

// IsTransient returns true for states that must resolve to Authenticating,
// Ready or Disposed.
func (s State) IsTransient() bool {
	switch s {
	case StateError, StateReloading:
		return true
	}
	return false
}

// AuthMode selects how the embedded content authenticates against the
// remote analytics service.
type AuthMode string

const (
	AuthNone                   AuthMode = "none"
	AuthCookie                 AuthMode = "cookie"
	AuthSSO                    AuthMode = "sso"
	AuthOIDC                   AuthMode = "oidc"
	AuthBasic                  AuthMode = "basic"
	AuthTrustedToken           AuthMode = "trusted-token"
	AuthTrustedTokenCookieless AuthMode = "trusted-token-cookieless"
)

// AuthModes lists every supported mode in a stable order.
func AuthModes() []AuthMode {
	return []AuthMode{
		AuthNone, AuthCookie, AuthSSO, AuthOIDC, AuthBasic,
		AuthTrustedToken, AuthTrustedTokenCookieless,
	}
}

// IsValid reports whether m is a known auth mode.
func (m AuthMode) IsValid() bool {
	for _, known := range AuthModes() {
		if m == known {
			return true
		}
	}
	return false
}

// RequiresToken reports whether the mode needs a token from the host's
// token provider. Cookie and SSO flows are completed by the embedded
// content itself; the provider still runs so the host can gate the load.
func (m AuthMode) RequiresToken() bool {
	return m != AuthNone
}

// Direction is the travel direction of a wire message.
type Direction string

const (
	HostToContent Direction = "host->content"
	ContentToHost Direction = "content->host"
)

// IsValid reports whether d is one of the two known directions.
func (d Direction) IsValid() bool {
	return d == HostToContent || d == ContentToHost
}
