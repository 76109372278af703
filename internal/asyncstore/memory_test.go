package asyncstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "abc"))

	r, ok, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Pending, r.Status)
}

func TestMemoryStoreComplete(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "abc"))
	require.NoError(t, s.Complete(ctx, "abc", map[string]int{"balance": 5}))

	r, ok, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Done, r.Status)
	assert.NotNil(t, r.Data)
}

func TestMemoryStoreFail(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "abc"))
	require.NoError(t, s.Fail(ctx, "abc", "backend unavailable"))

	r, _, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, Failed, r.Status)
	assert.Equal(t, "backend unavailable", r.Error)
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(ctx, fmt.Sprintf("id-%d", i)))
	}

	_, ok, _ := s.Get(ctx, "id-0")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok, _ = s.Get(ctx, "id-4")
	assert.True(t, ok, "newest entry should still be present")
}

func TestMemoryStoreUnknownID(t *testing.T) {
	s := NewMemoryStore(10)
	_, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreCompleteUnknownID(t *testing.T) {
	s := NewMemoryStore(10)
	err := s.Complete(context.Background(), "nope", nil)
	assert.Error(t, err)
}
