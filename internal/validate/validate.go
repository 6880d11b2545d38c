// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate accumulates configuration problems so that one run
// reports all of them.
package validate

import (
	"cmp"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Error is one failed check.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Validator collects Errors; the zero value is not usable, call New.
type Validator struct {
	errors []Error
}

func New() *Validator {
	return &Validator{errors: []Error{}}
}

// AddError records a failure for field.
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

func (v *Validator) Errors() []Error { return v.errors }

// Err returns nil or a ValidationError holding a copy of every failure.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

// ValidationError bundles the failures of one validation run.
type ValidationError struct {
	errors []Error
}

func (e ValidationError) Errors() []Error { return e.errors }

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the failed field names in check order.
func (e ValidationError) Fields() []string {
	out := make([]string, len(e.errors))
	for i, err := range e.errors {
		out[i] = err.Field
	}
	return out
}

// URL requires an absolute URL with a host and, when schemes is not
// empty, one of the listed schemes.
func (v *Validator) URL(field, value string, schemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	switch {
	case err != nil:
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
	case u.Host == "":
		v.AddError(field, "URL must have a host", value)
	case len(schemes) > 0 && !slices.Contains(schemes, u.Scheme):
		v.AddError(field, fmt.Sprintf("unsupported URL scheme %q (allowed: %v)", u.Scheme, schemes), value)
	}
}

// ListenAddr accepts host:port with an optional host; port 0 picks a
// free port.
func (v *Validator) ListenAddr(field, addr string) {
	_, port, ok := v.splitAddr(field, addr)
	if ok && port != 0 {
		v.port(field, port)
	}
}

// HostPort accepts a dial address with a host and a port in 1..65535.
func (v *Validator) HostPort(field, addr string) {
	host, port, ok := v.splitAddr(field, addr)
	if !ok {
		return
	}
	if host == "" {
		v.AddError(field, "host must not be empty", addr)
		return
	}
	v.port(field, port)
}

func (v *Validator) splitAddr(field, addr string) (string, int, bool) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid address: %v", err), addr)
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid port %q", portStr), addr)
		return "", 0, false
	}
	return host, port, true
}

func (v *Validator) port(field string, port int) {
	if port < 1 || port > 65535 {
		v.AddError(field, fmt.Sprintf("port must be between 1 and 65535, got %d", port), port)
	}
}

func between[T cmp.Ordered](v *Validator, field, kind string, value, lo, hi T) {
	if value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("%s must be between %v and %v, got %v", kind, lo, hi, value), value)
	}
}

// Range checks lo <= value <= hi.
func (v *Validator) Range(field string, value, lo, hi int) {
	between(v, field, "value", value, lo, hi)
}

// FloatRange checks lo <= value <= hi.
func (v *Validator) FloatRange(field string, value, lo, hi float64) {
	between(v, field, "value", value, lo, hi)
}

// Duration checks lo <= value <= hi.
func (v *Validator) Duration(field string, value, lo, hi time.Duration) {
	if value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("duration must be between %s and %s, got %s", lo, hi, value), value)
	}
}

// NotEmpty rejects empty and whitespace-only strings.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf requires value to be in allowed.
func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
	}
}

// NonNegative rejects values below zero.
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %d", value), value)
	}
}
