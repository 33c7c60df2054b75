package lifecycle

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MainFunc is the cooperative body of a Threadlet. It must poll ShouldStop
// or select on WhenStopRequested at its suspension points and return
// promptly once either fires.
type MainFunc func(handle *ThreadletHandle)

// ThreadletHandle is passed to a running MainFunc so it can observe the
// stop request without reaching back into the owning Threadlet.
type ThreadletHandle struct {
	ctx context.Context
}

// ShouldStop reports whether a stop has been requested, without blocking.
func (h *ThreadletHandle) ShouldStop() bool {
	select {
	case <-h.ctx.Done():
		return true
	default:
		return false
	}
}

// WhenStopRequested returns a channel that closes the instant a stop is
// requested, suitable for use in a select alongside other suspension
// points (socket reads, timers).
func (h *ThreadletHandle) WhenStopRequested() <-chan struct{} {
	return h.ctx.Done()
}

// Threadlet is a cooperative background task wrapper: it owns a MainFunc
// and guarantees that Stop only returns after that function has observed
// the stop request and returned. Supervised components that need
// background work embed a Threadlet and implement ImplStart as
// threadlet.Start().
type Threadlet struct {
	name   string
	logger *zap.Logger
	main   MainFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewThreadlet constructs a Threadlet that will run main when started.
func NewThreadlet(name string, logger *zap.Logger, main MainFunc) *Threadlet {
	return &Threadlet{name: name, logger: logger, main: main}
}

// Start launches the main function in its own goroutine. Starting an
// already-running Threadlet is a no-op.
func (t *Threadlet) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true

	handle := &ThreadletHandle{ctx: runCtx}
	done := t.done
	go func() {
		defer close(done)
		t.main(handle)
	}()
}

// Stop requests the main function to stop and blocks until it has returned.
// Calling Stop on a Threadlet that was never started, or already stopped,
// is a no-op.
func (t *Threadlet) Stop(ctx context.Context) {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		t.logger.Warn("threadlet did not stop before drain deadline", zap.String("threadlet", t.name))
		<-done
	}

	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}
