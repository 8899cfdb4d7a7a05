// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, ACTemperatureCommand{Temperature: 20}))
	require.True(t, q.TryEnqueue(HeartbeatTimer{}))
	require.NoError(t, q.Enqueue(ctx, MQTTConnected{}))
	assert.Equal(t, 3, q.Len())

	for _, want := range []Kind{KindACTemperatureCommand, KindHeartbeatTimer, KindMQTTConnected} {
		ev, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, ev.Kind())
	}
	assert.Zero(t, q.Len())
}

func TestQueueDefaultDepth(t *testing.T) {
	assert.Equal(t, DefaultDepth, NewQueue(0).Cap())
	assert.Equal(t, 3, NewQueue(3).Cap())
}

func TestTryEnqueueDropsWhenFull(t *testing.T) {
	q := NewQueue(2)

	assert.True(t, q.TryEnqueue(IRReceived{}))
	assert.True(t, q.TryEnqueue(IRReceived{}))
	assert.False(t, q.TryEnqueue(IRReceived{}))
	assert.False(t, q.TryEnqueue(PowerDetectorChanged{}))

	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, 2, q.Len())
}

func TestEnqueueWaitsForRoom(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, HeartbeatTimer{}))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(ctx, NetworkConnected{}) }()

	select {
	case <-done:
		t.Fatal("Enqueue returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	ev, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeatTimer, ev.Kind())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue did not resume")
	}

	ev, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindNetworkConnected, ev.Kind())
	assert.Zero(t, q.Dropped())
}

func TestEnqueueHonorsContext(t *testing.T) {
	q := NewQueue(1)
	require.True(t, q.TryEnqueue(HeartbeatTimer{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, HeartbeatTimer{}), context.DeadlineExceeded)

	empty := NewQueue(1)
	_, err := empty.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedQueue(t *testing.T) {
	q := NewQueue(1)
	require.True(t, q.TryEnqueue(HeartbeatTimer{}))

	blocked := make(chan error, 1)
	go func() { blocked <- q.Enqueue(context.Background(), HeartbeatTimer{}) }()

	q.Close()
	q.Close()

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not release the producer")
	}

	assert.ErrorIs(t, q.Enqueue(context.Background(), HeartbeatTimer{}), ErrClosed)
	assert.False(t, q.TryEnqueue(HeartbeatTimer{}))
	assert.Zero(t, q.Dropped(), "closed is not a drop")
}
