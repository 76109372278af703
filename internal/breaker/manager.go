package breaker

import (
	"hash/fnv"
	"sync"
)

const shardCount = 16

// Manager indexes a Breaker per (protocol, endpoint) key behind a
// striped lock: each shard owns its own mutex and map so that
// breakers for unrelated endpoints never contend on the same lock
// (spec §9: "the circuit breaker's sliding window (per-endpoint
// striped lock)").
type Manager struct {
	cfg    Config
	shards [shardCount]*shard
}

type shard struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewManager(cfg Config) *Manager {
	m := &Manager{cfg: cfg}
	for i := range m.shards {
		m.shards[i] = &shard{breakers: make(map[string]*Breaker)}
	}
	return m
}

func key(protocol, endpoint string) string {
	return protocol + "\x00" + endpoint
}

func (m *Manager) shardFor(k string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	return m.shards[h.Sum32()%shardCount]
}

// For returns the Breaker for (protocol, endpoint), creating one on
// first access.
func (m *Manager) For(protocol, endpoint string) *Breaker {
	k := key(protocol, endpoint)
	s := m.shardFor(k)

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[k]
	if !ok {
		b = New(m.cfg)
		s.breakers[k] = b
	}
	return b
}

// Snapshot returns the state of every breaker touched so far, for the
// admin GetMetrics command.
func (m *Manager) Snapshot() map[string]string {
	out := make(map[string]string)
	for _, s := range m.shards {
		s.mu.Lock()
		for k, b := range s.breakers {
			out[k] = b.State().String()
		}
		s.mu.Unlock()
	}
	return out
}
