// Package lifecycle provides the supervised init/start/stop state machine
// shared by every long-running participant in the system: endpoints,
// services, applications, and the memory monitor. A ComponentTree owns a
// forest of Components and drives them through coordinated transitions,
// including in-place reload.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// State is the tagged lifecycle state of a Component.
type State int

const (
	Uninitialized State = iota
	Initialized
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ControlContext is the parent-scoped handle every Component receives on
// construction: its name, its logger (already tagged with that name), and
// a reference to the parent component's ControlContext, if any.
type ControlContext struct {
	Name   string
	Logger *zap.Logger
	Parent *ControlContext
}

// Path renders the dotted name path from the root to this component,
// useful in log lines and error messages.
func (c *ControlContext) Path() string {
	if c == nil {
		return ""
	}
	if c.Parent == nil {
		return c.Name
	}
	return c.Parent.Path() + "." + c.Name
}

// Component is implemented by every supervised participant. Implementations
// provide the three phase hooks; Supervisor (below) wraps them with state
// tracking, serialization, and idempotency.
type Component interface {
	// ImplInit performs sensing only: reading files, validating
	// configuration, resolving references. No external side effects.
	ImplInit(ctx context.Context, isReload bool) error
	// ImplStart begins accepting work.
	ImplStart(ctx context.Context, isReload bool) error
	// ImplStop stops accepting new work, drains, and releases resources.
	ImplStop(ctx context.Context, willReload bool) error
}

// Supervisor wraps a Component with state tracking, per-phase
// serialization, and idempotency: calling Init twice is a no-op the second
// time, and so on.
type Supervisor struct {
	mu    sync.Mutex
	state State
	cc    *ControlContext
	impl  Component
}

// NewSupervisor wraps impl with a ControlContext named name and rooted
// under parent (nil for the root component).
func NewSupervisor(name string, parent *ControlContext, logger *zap.Logger, impl Component) *Supervisor {
	return &Supervisor{
		state: Uninitialized,
		cc:    &ControlContext{Name: name, Logger: logger.Named(name), Parent: parent},
		impl:  impl,
	}
}

// Control returns the component's ControlContext.
func (s *Supervisor) Control() *ControlContext { return s.cc }

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Init transitions Uninitialized -> Initialized. A second call is a no-op.
func (s *Supervisor) Init(ctx context.Context, isReload bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Uninitialized {
		return nil
	}
	if err := s.impl.ImplInit(ctx, isReload); err != nil {
		return fmt.Errorf("lifecycle: %s: init: %w", s.cc.Path(), err)
	}
	s.state = Initialized
	return nil
}

// Start transitions Initialized -> Running. A second call is a no-op.
func (s *Supervisor) Start(ctx context.Context, isReload bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		return nil
	}
	if s.state != Initialized {
		return fmt.Errorf("lifecycle: %s: start called from state %s, want %s", s.cc.Path(), s.state, Initialized)
	}
	if err := s.impl.ImplStart(ctx, isReload); err != nil {
		return fmt.Errorf("lifecycle: %s: start: %w", s.cc.Path(), err)
	}
	s.state = Running
	s.cc.Logger.Info("component started")
	return nil
}

// Stop transitions Running (or Initialized) -> Stopped. A second call is a
// no-op.
func (s *Supervisor) Stop(ctx context.Context, willReload bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return nil
	}
	if err := s.impl.ImplStop(ctx, willReload); err != nil {
		return fmt.Errorf("lifecycle: %s: stop: %w", s.cc.Path(), err)
	}
	s.state = Stopped
	s.cc.Logger.Info("component stopped", zap.Bool("will_reload", willReload))
	return nil
}
