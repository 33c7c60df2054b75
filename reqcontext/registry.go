package reqcontext

import "sync"

// Registry associates a primitive object (by identity — a *net.TCPConn, a
// multiplexed-stream handle, a *http.Request) with the context record
// built for it. It is insert-once, lookup-many, and entries are removed
// explicitly by the Endpoint's per-connection teardown rather than by a
// true garbage-collector weak reference: Go exposes no standard weak-map
// primitive prior to the weak.Pointer type, and the Endpoint's accept/close
// pipeline already has an obvious place to call Forget.
type Registry[K comparable, V any] struct {
	entries sync.Map
}

// NewRegistry constructs an empty Registry.
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{}
}

// Associate records that key maps to value. Associating the same key twice
// overwrites the previous value; callers are expected to insert once per
// primitive's lifetime.
func (r *Registry[K, V]) Associate(key K, value V) {
	r.entries.Store(key, value)
}

// Lookup recovers the context associated with key, if any.
func (r *Registry[K, V]) Lookup(key K) (V, bool) {
	v, ok := r.entries.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// GetOrCreate returns the value already associated with key, or
// atomically associates and returns the result of create if there was
// none. Unlike a separate Lookup-then-Associate, two callers racing on
// the same key never both win: only one create() result is ever stored,
// and every caller observes that same value.
func (r *Registry[K, V]) GetOrCreate(key K, create func() V) V {
	if v, ok := r.entries.Load(key); ok {
		return v.(V)
	}
	v, _ := r.entries.LoadOrStore(key, create())
	return v.(V)
}

// Forget removes the association for key. Called when the owning
// primitive is closed or discarded.
func (r *Registry[K, V]) Forget(key K) {
	r.entries.Delete(key)
}
