package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAtFailureThreshold(t *testing.T) {
	cfg := Config{WindowSize: 10, FailureThreshold: 0.5, RecoveryTimeout: time.Minute, HalfOpenMaxCalls: 1}
	b := New(cfg)

	for i := 0; i < 4; i++ {
		require.True(t, b.Allow())
		b.Record(false)
	}
	assert.Equal(t, Closed, b.State())

	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Open, b.State())
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	cfg := Config{WindowSize: 4, FailureThreshold: 0.5, RecoveryTimeout: time.Hour, HalfOpenMaxCalls: 1}
	b := New(cfg)

	b.Record(false)
	b.Record(false)
	b.Record(false)
	require.Equal(t, Open, b.State())

	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cfg := Config{WindowSize: 4, FailureThreshold: 0.5, RecoveryTimeout: 10 * time.Millisecond, HalfOpenMaxCalls: 1}
	b := New(cfg)

	b.Record(false)
	b.Record(false)
	b.Record(false)
	require.Equal(t, Open, b.State())

	time.Sleep(20 * time.Millisecond)

	require.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())

	// a second concurrent probe is rejected while one is in flight
	assert.False(t, b.Allow())

	b.Record(true)
	assert.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := Config{WindowSize: 4, FailureThreshold: 0.5, RecoveryTimeout: 10 * time.Millisecond, HalfOpenMaxCalls: 1}
	b := New(cfg)

	b.Record(false)
	b.Record(false)
	b.Record(false)
	time.Sleep(20 * time.Millisecond)

	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Open, b.State())
}

func TestManagerShardsByEndpoint(t *testing.T) {
	m := NewManager(DefaultConfig())

	a := m.For("rest", "/v1/acctbal")
	b := m.For("rest", "/v1/acctbal")
	c := m.For("rest", "/v1/xferfnd")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestManagerSnapshot(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.For("rest", "/v1/acctbal")
	m.For("tcp", "TXN01")

	snap := m.Snapshot()
	assert.Len(t, snap, 2)
	for _, state := range snap {
		assert.Equal(t, "closed", state)
	}
}
