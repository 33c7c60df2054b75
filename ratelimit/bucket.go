// Package ratelimit implements the token-bucket rate-limiting substrate:
// a bounded-wait-queue TokenBucket (this file) and the RateLimiter service
// that bundles up to three buckets (connections, requests, data) for an
// Endpoint (limiter.go).
//
// The bucket's waiter queue reuses github.com/eapache/queue/v2, the same
// ring-buffer queue the teacher repo depends on for its admission queue
// middleware; here it holds pending grant requests instead of pending HTTP
// requests.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/eapache/queue/v2"
)

// Grant is the result of a TokenBucket.RequestGrant call.
type Grant struct {
	// Done is true only when Grant equals the amount requested.
	Done bool
	// Grant is the number of tokens actually handed to the caller. It may
	// be less than the requested amount (a partial grant) only when the
	// bucket's MaxQueueGrantSize is smaller than the request — the data
	// bucket's use case, where the caller is expected to ask again for the
	// remainder.
	Grant float64
	// WaitTime is how long the caller waited before this result was produced.
	WaitTime time.Duration
}

// Config describes a single TokenBucket's shape.
type Config struct {
	// MaxBurstSize is the bucket capacity.
	MaxBurstSize float64
	// FlowRate is the refill rate in tokens per second. Must be > 0.
	FlowRate float64
	// MaxQueueGrantSize bounds a single grant handed to a waiter. Defaults
	// to MaxBurstSize when zero.
	MaxQueueGrantSize float64
	// MaxQueueSize bounds the sum of wantedTokens across all queued waiters.
	MaxQueueSize float64
	// Clock overrides the time source; defaults to SystemClock.
	Clock Clock
}

type waiter struct {
	wantedTokens float64
	queuedAt     time.Time
	canceled     bool
	resultCh     chan Grant
}

// TokenBucket implements the leaky/token-bucket algorithm described in the
// core rate-limiting substrate: lazy refill, immediate satisfaction when
// tokens are available, and a bounded FIFO wait queue otherwise.
type TokenBucket struct {
	mu sync.Mutex

	maxBurstSize      float64
	flowRate          float64
	maxQueueGrantSize float64
	maxQueueSize      float64

	available      float64
	lastRefillTime time.Time

	waiters     *queue.Queue[*waiter]
	queuedSum   float64
	pumpRunning bool
	denied      bool

	clock Clock
}

// NewTokenBucket constructs a TokenBucket starting at full capacity.
func NewTokenBucket(cfg Config) (*TokenBucket, error) {
	if cfg.FlowRate <= 0 {
		return nil, fmt.Errorf("ratelimit: flow rate must be positive, got %v", cfg.FlowRate)
	}
	if cfg.MaxBurstSize <= 0 {
		return nil, fmt.Errorf("ratelimit: max burst size must be positive, got %v", cfg.MaxBurstSize)
	}
	grantSize := cfg.MaxQueueGrantSize
	if grantSize <= 0 {
		grantSize = cfg.MaxBurstSize
	}
	// An unset (zero) MaxQueueSize means the caller didn't choose to bound
	// the wait queue, not that no one may ever queue — a lone waiter must
	// still be able to stall for more tokens (spec's wrapWriter backpressure
	// requirement) rather than being denied outright. Bound it in only when
	// the caller actually asked for a cap.
	maxQueueSize := cfg.MaxQueueSize
	if maxQueueSize <= 0 {
		maxQueueSize = math.Inf(1)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &TokenBucket{
		maxBurstSize:      cfg.MaxBurstSize,
		flowRate:          cfg.FlowRate,
		maxQueueGrantSize: grantSize,
		maxQueueSize:      maxQueueSize,
		available:         cfg.MaxBurstSize,
		lastRefillTime:    clock.Now(),
		waiters:           queue.New[*waiter](),
		clock:             clock,
	}, nil
}

// refillLocked advances `available` for elapsed time. Callers must hold mu.
func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefillTime).Seconds()
	if elapsed <= 0 {
		return
	}
	b.available = math.Min(b.maxBurstSize, b.available+elapsed*b.flowRate)
	b.lastRefillTime = now
}

// RequestGrant asks the bucket for `amount` tokens. It returns immediately
// if tokens are available, blocks in a bounded FIFO wait if not (until
// granted, denied, or ctx is canceled), and is denied outright if the
// queue is already full or the bucket has been shut down.
func (b *TokenBucket) RequestGrant(ctx context.Context, amount float64) Grant {
	now := b.clock.Now()

	b.mu.Lock()
	b.refillLocked(now)

	if b.denied {
		b.mu.Unlock()
		return Grant{Done: false}
	}

	if b.available >= amount {
		b.available -= amount
		b.mu.Unlock()
		return Grant{Done: true, Grant: amount, WaitTime: 0}
	}

	if b.queuedSum+amount > b.maxQueueSize {
		b.mu.Unlock()
		return Grant{Done: false}
	}

	w := &waiter{
		wantedTokens: amount,
		queuedAt:     now,
		resultCh:     make(chan Grant, 1),
	}
	b.waiters.Add(w)
	b.queuedSum += amount
	b.ensurePumpLocked()
	b.mu.Unlock()

	select {
	case result := <-w.resultCh:
		return result
	case <-ctx.Done():
		b.mu.Lock()
		w.canceled = true
		b.mu.Unlock()
		return Grant{Done: false}
	}
}

// DenyAllRequests terminates all current and future waits with a denied
// outcome. Once called, every subsequent RequestGrant returns Done=false
// immediately.
func (b *TokenBucket) DenyAllRequests() {
	b.mu.Lock()
	b.denied = true
	for b.waiters.Length() > 0 {
		w := b.waiters.Remove()
		b.queuedSum -= w.wantedTokens
		if !w.canceled {
			select {
			case w.resultCh <- Grant{Done: false}:
			default:
			}
		}
	}
	b.mu.Unlock()
}

// Available reports the current token count, refilled to now. Primarily
// useful for metrics and tests.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(b.clock.Now())
	return b.available
}

// QueueDepth reports how many waiters are currently queued. Primarily
// useful for metrics and tests.
func (b *TokenBucket) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiters.Length()
}

// ensurePumpLocked starts the background waiter-draining loop if it is not
// already running. Callers must hold mu.
func (b *TokenBucket) ensurePumpLocked() {
	if b.pumpRunning {
		return
	}
	b.pumpRunning = true
	go b.pump()
}

// pump drains queued waiters FIFO as tokens become available. It sleeps in
// short bounded increments (never longer than pumpMaxSleep) so that
// DenyAllRequests and newly queued higher-priority state changes are
// observed promptly, the same bounded-sleep-or-shorter pattern the memory
// monitor uses while tracking a grace period.
const pumpMaxSleep = 100 * time.Millisecond

func (b *TokenBucket) pump() {
	for {
		b.mu.Lock()
		now := b.clock.Now()
		b.refillLocked(now)

		if b.denied {
			for b.waiters.Length() > 0 {
				w := b.waiters.Remove()
				b.queuedSum -= w.wantedTokens
				if !w.canceled {
					select {
					case w.resultCh <- Grant{Done: false}:
					default:
					}
				}
			}
			b.pumpRunning = false
			b.mu.Unlock()
			return
		}

		if b.waiters.Length() == 0 {
			b.pumpRunning = false
			b.mu.Unlock()
			return
		}

		head := b.waiters.Peek()
		if head.canceled {
			b.waiters.Remove()
			b.queuedSum -= head.wantedTokens
			b.mu.Unlock()
			continue
		}

		capped := math.Min(head.wantedTokens, b.maxQueueGrantSize)
		if b.available >= capped {
			b.waiters.Remove()
			b.queuedSum -= head.wantedTokens
			b.available -= capped
			waited := now.Sub(head.queuedAt)
			result := Grant{Done: capped == head.wantedTokens, Grant: capped, WaitTime: waited}
			b.mu.Unlock()
			select {
			case head.resultCh <- result:
			default:
			}
			continue
		}

		needed := capped - b.available
		sleepFor := time.Duration(needed/b.flowRate*float64(time.Second)) + time.Millisecond
		if sleepFor > pumpMaxSleep {
			sleepFor = pumpMaxSleep
		}
		b.mu.Unlock()
		time.Sleep(sleepFor)
	}
}
