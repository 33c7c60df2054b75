package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets a test advance time deterministically instead of sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRequestGrantImmediateWhenAvailable(t *testing.T) {
	b, err := NewTokenBucket(Config{MaxBurstSize: 10, FlowRate: 1, Clock: newFakeClock()})
	require.NoError(t, err)

	grant := b.RequestGrant(context.Background(), 5)
	assert.True(t, grant.Done)
	assert.Equal(t, 5.0, grant.Grant)
	assert.Equal(t, 5.0, b.Available())
}

func TestRequestGrantDeniesWhenQueueFull(t *testing.T) {
	clock := newFakeClock()
	b, err := NewTokenBucket(Config{MaxBurstSize: 1, FlowRate: 1, MaxQueueSize: 1, Clock: clock})
	require.NoError(t, err)

	grant := b.RequestGrant(context.Background(), 1)
	require.True(t, grant.Done)

	// Burst exhausted; a second waiter bigger than the queue cap is denied
	// outright rather than queued.
	grant = b.RequestGrant(context.Background(), 2)
	assert.False(t, grant.Done)
	assert.Equal(t, 0.0, grant.Grant)
}

// TestRequestGrantUnboundedQueueStallsRatherThanDenies covers the scenario 5
// data-bucket shape: a bucket configured with no MaxQueueSize must let a
// single waiter stall for more tokens instead of being denied once the
// burst is consumed.
func TestRequestGrantUnboundedQueueStallsRatherThanDenies(t *testing.T) {
	clock := newFakeClock()
	b, err := NewTokenBucket(Config{MaxBurstSize: 10, FlowRate: 10, Clock: clock})
	require.NoError(t, err)

	grant := b.RequestGrant(context.Background(), 10)
	require.True(t, grant.Done)

	resultCh := make(chan Grant, 1)
	go func() {
		resultCh <- b.RequestGrant(context.Background(), 5)
	}()

	// Give the waiter time to enqueue before asserting it hasn't resolved.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-resultCh:
		t.Fatal("expected the waiter to stall, not resolve immediately")
	default:
	}
	assert.Equal(t, 1, b.QueueDepth())

	clock.Advance(time.Second)

	select {
	case grant := <-resultCh:
		assert.True(t, grant.Done)
		assert.Equal(t, 5.0, grant.Grant)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never resolved after refill")
	}
}

func TestDenyAllRequestsResolvesQueuedWaiters(t *testing.T) {
	clock := newFakeClock()
	b, err := NewTokenBucket(Config{MaxBurstSize: 1, FlowRate: 1, Clock: clock})
	require.NoError(t, err)

	grant := b.RequestGrant(context.Background(), 1)
	require.True(t, grant.Done)

	resultCh := make(chan Grant, 1)
	go func() {
		resultCh <- b.RequestGrant(context.Background(), 1)
	}()
	time.Sleep(20 * time.Millisecond)

	b.DenyAllRequests()

	select {
	case grant := <-resultCh:
		assert.False(t, grant.Done)
	case <-time.After(time.Second):
		t.Fatal("waiter never resolved after DenyAllRequests")
	}

	grant = b.RequestGrant(context.Background(), 1)
	assert.False(t, grant.Done)
}
