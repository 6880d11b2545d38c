// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestMemory_SendRequiresReadiness(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	msg := model.Message{Direction: model.HostToContent, Kind: "Reload"}

	err := m.Send(ctx, msg)
	require.ErrorIs(t, err, model.ErrChannel)
	assert.ErrorIs(t, err, model.ErrChannelNotReady)

	m.MarkReady()
	m.MarkReady()
	require.NoError(t, m.Send(ctx, msg))
	assert.Len(t, m.Sent(), 1)
	assert.Equal(t, msg, <-m.Outbound())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Send(ctx, msg), model.ErrChannelClosed)
}

func TestMemory_AutoReadyOnPrepare(t *testing.T) {
	m := NewMemory(WithAutoReady())
	assert.False(t, isClosed(m.Ready()))
	require.NoError(t, m.Prepare(context.Background()))
	assert.True(t, isClosed(m.Ready()))
	assert.Equal(t, 1, m.Prepared())
}

func TestMemory_EmitQueuesInOrder(t *testing.T) {
	m := NewMemory(WithInboundBuffer(2))
	require.NoError(t, m.Emit(model.Message{Kind: "Load"}))
	require.NoError(t, m.Emit(model.Message{Kind: "Data"}))
	assert.ErrorIs(t, m.Emit(model.Message{Kind: "Overflow"}), ErrInboundFull)

	first := <-m.Inbound()
	assert.Equal(t, "Load", first.Kind)
	assert.Equal(t, model.ContentToHost, first.Direction)
	assert.Equal(t, "Data", (<-m.Inbound()).Kind)
}

func TestMemory_NothingArrivesAfterClose(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Emit(model.Message{Kind: "Load"}), model.ErrChannelClosed)
	m.MarkReady()
	assert.False(t, isClosed(m.Ready()))
	assert.Error(t, m.Prepare(context.Background()))
}

func TestMemory_SendErrorInjection(t *testing.T) {
	boom := errors.New("socket reset")
	m := NewMemory(WithSendError(boom))
	m.MarkReady()

	err := m.Send(context.Background(), model.Message{Direction: model.HostToContent, Kind: "Share"})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, model.ErrChannel)
}
