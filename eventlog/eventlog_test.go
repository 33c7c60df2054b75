package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainAppendAndTraverse(t *testing.T) {
	head, emitter := NewChain("endpoint-up")
	second, emitter := emitter.Emit("connection-accepted")
	_, _ = emitter.Emit("request-handled")

	assert.Equal(t, "endpoint-up", head.Payload())

	next, ok := head.NextNow()
	require.True(t, ok)
	assert.Same(t, second, next)
	assert.Equal(t, "connection-accepted", next.Payload())

	third, ok := second.NextNow()
	require.True(t, ok)
	assert.Equal(t, "request-handled", third.Payload())

	_, ok = third.NextNow()
	assert.False(t, ok, "tail node has no next yet")
}

func TestEmitterUsedTwicePanics(t *testing.T) {
	_, emitter := NewChain(1)
	_, _ = emitter.Emit(2)

	assert.Panics(t, func() {
		emitter.Emit(3)
	})
}

func TestNextBlocksUntilEmitted(t *testing.T) {
	head, emitter := NewChain("a")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		emitter.Emit("b")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	next, err := head.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", next.Payload())
	wg.Wait()
}

func TestNextRespectsCancellation(t *testing.T) {
	head, _ := NewChain("a")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := head.Next(ctx)
	assert.Error(t, err)
}

func TestMultipleConsumersSeeSameNode(t *testing.T) {
	head, emitter := NewChain("a")
	emitter.Emit("b")

	ctx := context.Background()
	n1, err := head.Next(ctx)
	require.NoError(t, err)
	n2, err := head.Next(ctx)
	require.NoError(t, err)
	assert.Same(t, n1, n2)
}
