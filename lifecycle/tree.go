package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ComponentTree is the supervisory harness: an ordered forest of
// Supervisors rooted conceptually at a RootComponent. Layers are added in
// dependency order (lowest first, e.g. services before endpoints); Init
// and Start walk layers bottom-up, Stop walks them in reverse.
type ComponentTree struct {
	logger *zap.Logger
	layers [][]*Supervisor
	events *EventLog
}

// NewComponentTree constructs an empty tree. Its event chain starts fresh;
// Reload reseeds a replacement tree's chain in place with the predecessor's
// final event.
func NewComponentTree(logger *zap.Logger) *ComponentTree {
	return &ComponentTree{logger: logger, events: NewEventLog(nil)}
}

// Events returns the tree's event chain, for components to Emit lifecycle
// events onto and for consumers to follow from its Head.
func (t *ComponentTree) Events() *EventLog {
	return t.events
}

// AddLayer appends a dependency layer. Components within one layer are
// started (and stopped) concurrently; layers themselves are sequential.
func (t *ComponentTree) AddLayer(supervisors ...*Supervisor) {
	t.layers = append(t.layers, supervisors)
}

// Init walks every layer bottom-up, initializing each component. The walk
// stops at the first failing component and returns its error.
func (t *ComponentTree) Init(ctx context.Context, isReload bool) error {
	for _, layer := range t.layers {
		for _, s := range layer {
			if err := s.Init(ctx, isReload); err != nil {
				return err
			}
		}
	}
	return nil
}

// Start walks layers bottom-up, starting every component within a layer
// concurrently before moving to the next layer. The first error from any
// component in a layer fails the whole Start; components already started
// in earlier layers are left running for the caller to unwind via Stop.
func (t *ComponentTree) Start(ctx context.Context, isReload bool) error {
	for _, layer := range t.layers {
		if err := startLayer(ctx, layer, isReload); err != nil {
			return err
		}
	}
	return nil
}

func startLayer(ctx context.Context, layer []*Supervisor, isReload bool) error {
	var wg sync.WaitGroup
	errs := make([]error, len(layer))
	for i, s := range layer {
		wg.Add(1)
		go func(i int, s *Supervisor) {
			defer wg.Done()
			errs[i] = s.Start(ctx, isReload)
		}(i, s)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("lifecycle: %s: %w", layer[i].Control().Path(), err)
		}
	}
	return nil
}

// Stop walks layers in reverse order of Start, stopping every component in
// a layer concurrently under a shared drain deadline before moving to the
// previous layer. Every component is given the chance to stop even if
// others in its layer fail; the first recorded error is returned.
func (t *ComponentTree) Stop(ctx context.Context, willReload bool) error {
	var firstErr error
	for i := len(t.layers) - 1; i >= 0; i-- {
		if err := stopLayer(ctx, t.layers[i], willReload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func stopLayer(ctx context.Context, layer []*Supervisor, willReload bool) error {
	var wg sync.WaitGroup
	errs := make([]error, len(layer))
	for i, s := range layer {
		wg.Add(1)
		go func(i int, s *Supervisor) {
			defer wg.Done()
			errs[i] = s.Stop(ctx, willReload)
		}(i, s)
	}
	wg.Wait()

	var firstErr error
	for i, err := range errs {
		if err != nil {
			wrapped := fmt.Errorf("lifecycle: %s: %w", layer[i].Control().Path(), err)
			if firstErr == nil {
				firstErr = wrapped
			}
		}
	}
	return firstErr
}

// Reload stops the tree (willReload=true), asks build for a freshly
// constructed replacement tree, and starts it (isReload=true). The two
// trees never share runtime state; on failure to build or start the
// replacement, the caller is left with no running tree and must decide
// whether to retry or exit.
func (t *ComponentTree) Reload(ctx context.Context, build func() (*ComponentTree, error)) (*ComponentTree, error) {
	if err := t.Stop(ctx, true); err != nil {
		t.logger.Error("reload: stop of previous tree reported errors", zap.Error(err))
	}

	next, err := build()
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reload: rebuild: %w", err)
	}
	// Reseed in place: components built by build already hold next.events.
	carried := NewEventLog(t.events.LastNode())
	next.events.mu.Lock()
	next.events.head, next.events.tail, next.events.emitter = carried.head, carried.tail, carried.emitter
	next.events.mu.Unlock()
	if err := next.Init(ctx, true); err != nil {
		return nil, fmt.Errorf("lifecycle: reload: init: %w", err)
	}
	if err := next.Start(ctx, true); err != nil {
		return nil, fmt.Errorf("lifecycle: reload: start: %w", err)
	}
	return next, nil
}
