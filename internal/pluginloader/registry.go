// Package pluginloader implements the Protocol Loader (spec §4.2):
// scanning a library directory, loading plugins through the ABI
// (internal/abi), and maintaining a name-keyed registry with
// load/unload/reload lifecycle.
package pluginloader

import (
	"sync"
	"sync/atomic"

	"github.com/carles-abarca/NEO6/internal/abi"
)

// State tracks a plugin entry's position in its §3 lifecycle:
// registered → ready → active → draining → destroyed.
type State int

const (
	StateReady State = iota
	StateActive
	StateDraining
	StateDestroyed
)

// entry is one (name, handle, plugin) triple, the Go analogue of the
// ABI's (name, vtable, handle) tuple (spec §9).
type entry struct {
	plugin   abi.ProtocolPlugin
	handle   abi.Handle
	mu       sync.RWMutex
	state    State
	inflight int64 // atomic
}

func (e *entry) beginCall() bool {
	e.mu.RLock()
	draining := e.state == StateDraining || e.state == StateDestroyed
	e.mu.RUnlock()
	if draining {
		return false
	}
	atomic.AddInt64(&e.inflight, 1)
	return true
}

func (e *entry) endCall() {
	atomic.AddInt64(&e.inflight, -1)
}

func (e *entry) inflightCount() int64 {
	return atomic.LoadInt64(&e.inflight)
}

// Registry is an immutable-once-built map of protocol name to loaded
// plugin entry. Reload builds an entirely new Registry and swaps it
// in atomically (spec §4.2, §5); in-flight invocations keep a
// reference to the Registry they started against, so they never see
// a half-swapped world (testable property P6).
type Registry struct {
	entries map[string]*entry
}

func newRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Names returns every loaded protocol name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

func (r *Registry) has(name string) bool {
	_, ok := r.entries[name]
	return ok
}
