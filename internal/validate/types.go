// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import "slices"

// LogLevel is a zerolog level name accepted in configuration.
type LogLevel string

// LogLevels lists the accepted levels from most to least verbose.
var LogLevels = []LogLevel{"trace", "debug", "info", "warn", "error"}

// ErrInvalidLogLevel is returned by ParseLogLevel for unknown levels.
var ErrInvalidLogLevel = &Error{
	Field:   "logLevel",
	Message: "invalid log level (must be: trace, debug, info, warn, error)",
}

func (l LogLevel) IsValid() bool { return slices.Contains(LogLevels, l) }

// ParseLogLevel returns s as a LogLevel or ErrInvalidLogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	if l := LogLevel(s); l.IsValid() {
		return l, nil
	}
	return "", ErrInvalidLogLevel
}
