// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet_UsesLinkerValues(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })
	Version, Commit, Date = "v9.9.9", "abc1234", "2026-01-02"

	info := Get()
	assert.Equal(t, Info{Version: "v9.9.9", Commit: "abc1234", Date: "2026-01-02", GoVersion: runtime.Version()}, info)
	assert.Contains(t, info.String(), "v9.9.9")
}
