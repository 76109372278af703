package probe

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carles-abarca/NEO6/internal/abi"
)

func TestInvokeAlwaysOK(t *testing.T) {
	p := New()
	h, err := p.Create(nil)
	require.NoError(t, err)

	body, status := p.Invoke(context.Background(), h, "__probe_rest__", json.RawMessage(`{}`))
	assert.Equal(t, abi.OK, status)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, true, decoded["alive"])
	assert.Equal(t, "__probe_rest__", decoded["transaction_id"])
}

func TestNameAndLifecycle(t *testing.T) {
	p := New()
	assert.Equal(t, "probe", p.Name())
	assert.Equal(t, abi.Version, p.ABIVersion())

	h, err := p.Create(json.RawMessage(`{"anything":"ignored"}`))
	require.NoError(t, err)
	assert.NoError(t, p.Destroy(h))
}
