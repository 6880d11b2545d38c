// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// SessionToken is an opaque credential plus its issuance time. The TTL is
// owned by the remote service, so no expiry is tracked here.
type SessionToken struct {
	Value    string
	IssuedAt time.Time
}

// IsZero reports whether the token carries no credential.
func (t SessionToken) IsZero() bool {
	return t.Value == ""
}

// Redacted returns a log-safe rendering of the token.
func (t SessionToken) Redacted() string {
	if len(t.Value) <= 4 {
		return "****"
	}
	return t.Value[:4] + "****"
}
