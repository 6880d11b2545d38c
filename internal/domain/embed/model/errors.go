// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAuth              = errors.New("auth failed")
	ErrChannel           = errors.New("channel not writable")
	ErrChannelNotReady   = errors.New("channel not ready")
	ErrChannelClosed     = errors.New("channel closed")
	ErrCommandTimeout    = errors.New("command timeout")
	ErrContentReported   = errors.New("content reported error")
	ErrInvalidConfig     = errors.New("invalid embed config")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnknownHostEvent  = errors.New("unknown host event")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrDisposed          = errors.New("embed session disposed")
)

// AuthError reports a failed token acquisition.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e == nil || e.Reason == "" {
		return ErrAuth.Error()
	}
	return "auth failed: " + e.Reason
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuth}
	}
	return []error{ErrAuth, e.Err}
}

// ChannelError reports a write to a channel that is not ready or already closed.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("channel %s: %s", e.Op, ErrChannel)
	}
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrChannel}
	}
	return []error{ErrChannel, e.Err}
}

// CommandTimeoutError reports a reply-expecting command that was not
// answered within its window.
type CommandTimeoutError struct {
	Kind          HostEventKind
	CorrelationID string
	After         time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command %s (%s): no reply within %s", e.Kind, e.CorrelationID, e.After)
}

func (e *CommandTimeoutError) Unwrap() error { return ErrCommandTimeout }

// ContentReportedError is an error signalled by the embedded content.
type ContentReportedError struct {
	Code        string
	Reason      string
	AuthExpired bool
}

func (e *ContentReportedError) Error() string {
	if e.Code == "" {
		return "content reported error: " + e.Reason
	}
	return fmt.Sprintf("content reported error [%s]: %s", e.Code, e.Reason)
}

func (e *ContentReportedError) Unwrap() error { return ErrContentReported }
