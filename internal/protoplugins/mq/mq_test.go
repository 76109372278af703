package mq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carles-abarca/NEO6/internal/abi"
)

func TestConfigUnmarshal(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"url":"nats://mq.example:4222","endpoints":{"TXFER":"neo6.backend.txfer"},"timeout_ms":2000}`), &cfg))
	assert.Equal(t, "nats://mq.example:4222", cfg.URL)
	assert.Equal(t, "neo6.backend.txfer", cfg.Endpoints["TXFER"])
	assert.Equal(t, 2000, cfg.TimeoutMS)
}

func TestRequestEnvelopeMarshalsTransactionID(t *testing.T) {
	env := requestEnvelope{MessageID: "m1", TransactionID: "TXFER", Parameters: map[string]interface{}{"amount": 10.0}}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"transaction_id":"TXFER"`)
	assert.Contains(t, string(body), `"amount":10`)
}

// TestInvokeUnconfiguredTransactionIsLivenessProbe exercises the
// no-network early-return path without a live NATS broker, the same
// approach the teacher's own NATS-adjacent tests take (see
// internal/listeners/mq's DESIGN.md entry).
func TestInvokeUnconfiguredTransactionIsLivenessProbe(t *testing.T) {
	s := &session{endpoints: map[string]string{}, timeout: time.Second}
	p := New()

	_, status := p.Invoke(context.Background(), s, "__probe_mq__", json.RawMessage(`{}`))
	assert.Equal(t, abi.OK, status)
}

func TestInvokeRejectsMalformedParams(t *testing.T) {
	s := &session{endpoints: map[string]string{"TXFER": "neo6.backend.txfer"}, timeout: time.Second}
	p := New()

	_, status := p.Invoke(context.Background(), s, "TXFER", json.RawMessage(`not-json`))
	assert.Equal(t, abi.InvalidArgs, status)
}
