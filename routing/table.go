package routing

import (
	"fmt"
	"sync"
)

// Dispatch carries the matched mount prefix and the remainder of the
// request path beyond it, as handed to an application's handler.
type Dispatch struct {
	Base  string
	Extra string
}

// Match pairs a Dispatch with the application reference bound to it.
type Match[A any] struct {
	Dispatch Dispatch
	App      A
}

// RoutingTable is a two-level longest-prefix map: hostnames (wildcards at
// the front) to path prefixes (wildcards at the end) to application
// references. It is immutable after Start; readers never take a lock once
// started.
type RoutingTable[A any] struct {
	mu      sync.RWMutex
	hosts   *hostTrie[A]
	started bool
}

// NewRoutingTable constructs an empty, still-mutable RoutingTable.
func NewRoutingTable[A any]() *RoutingTable[A] {
	return &RoutingTable[A]{hosts: newHostTrie[A]()}
}

// Insert adds a mount. Configuration-time only; inserting the same
// hostname/path pair twice, or after Start, is an error.
func (t *RoutingTable[A]) Insert(host HostnameKey, path PathKey, app A) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return fmt.Errorf("routing: table is immutable after start")
	}
	pt := t.hosts.pathTrieFor(host)
	if err := pt.insert(path, app); err != nil {
		return fmt.Errorf("routing: host %q: %w", host.String(), err)
	}
	return nil
}

// InsertMount is a convenience wrapper for inserting a parsed Mount.
func (t *RoutingTable[A]) InsertMount(m Mount, app A) error {
	return t.Insert(m.Host, m.Path, app)
}

// Start freezes the table against further mutation. Called once by the
// owning Endpoint after all configured mounts have been inserted.
func (t *RoutingTable[A]) Start() {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
}

// Find returns the applications bound to host whose mount matches path,
// ordered most- to least-specific, for fallthrough on a declined outcome.
// A nil result with a nil error means no host matched at all.
func (t *RoutingTable[A]) Find(host, path string) ([]Match[A], error) {
	hostKey, err := ParseHostname(host)
	if err != nil {
		return nil, err
	}

	pt, ok := t.hosts.find(hostKey.Labels)
	if !ok {
		return nil, nil
	}

	components := splitPathComponents(path)
	raw := pt.find(components)
	matches := make([]Match[A], 0, len(raw))
	for _, m := range raw {
		matches = append(matches, Match[A]{
			Dispatch: Dispatch{
				Base:  joinBase(components[:m.baseLen]),
				Extra: joinPath(components[m.baseLen:]),
			},
			App: m.app,
		})
	}
	return matches, nil
}

func joinPath(components []string) string {
	if len(components) == 0 {
		return "/"
	}
	s := ""
	for _, c := range components {
		s += "/" + c
	}
	return s
}

// joinBase renders a matched mount point. A mount is always a directory
// boundary (routing.ParseMountPath forces Wildcard), so its base always
// carries a trailing slash, matching the "/florp/" form mounts are
// declared in even though the component list itself carries no slashes.
func joinBase(components []string) string {
	if len(components) == 0 {
		return "/"
	}
	return joinPath(components) + "/"
}
