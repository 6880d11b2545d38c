// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestReconfigureAttachesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Reconfigure(Config{Level: "debug", Output: &buf, Service: "embed-test", Version: "v0.0.1"})
	t.Cleanup(func() { Reconfigure(Config{}) })

	l := WithComponent("bus")
	l.Info().Str(FieldEvent, "bus.test").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["service"] != "embed-test" {
		t.Errorf("service = %v, want embed-test", entry["service"])
	}
	if entry["version"] != "v0.0.1" {
		t.Errorf("version = %v, want v0.0.1", entry["version"])
	}
	if entry[FieldComponent] != "bus" {
		t.Errorf("component = %v, want bus", entry[FieldComponent])
	}
}

func TestConfigureIsFirstWins(t *testing.T) {
	var first, second bytes.Buffer
	Reconfigure(Config{Output: &first})
	t.Cleanup(func() { Reconfigure(Config{}) })

	Configure(Config{Output: &second})
	L().Info().Msg("x")

	if first.Len() == 0 {
		t.Error("expected output on the first configured writer")
	}
	if second.Len() != 0 {
		t.Error("Configure after Reconfigure must not replace the logger")
	}
}
