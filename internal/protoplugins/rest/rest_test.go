package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carles-abarca/NEO6/internal/abi"
)

func TestInvokeMirrorsBackendBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "AC100", in["account_id"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"balance":100.5}`))
	}))
	defer srv.Close()

	p := New()
	h, err := p.Create(mustJSON(Config{Endpoints: map[string]string{"ACCTBAL": srv.URL}}))
	require.NoError(t, err)
	defer p.Destroy(h)

	body, status := p.Invoke(context.Background(), h, "ACCTBAL", json.RawMessage(`{"account_id":"AC100"}`))
	require.Equal(t, abi.OK, status)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 100.5, out["balance"])
}

func TestInvokeUnconfiguredTransactionIsLivenessProbe(t *testing.T) {
	p := New()
	h, err := p.Create(mustJSON(Config{}))
	require.NoError(t, err)

	_, status := p.Invoke(context.Background(), h, "__probe_rest__", json.RawMessage(`{}`))
	assert.Equal(t, abi.OK, status)
}

func TestInvokeBackendUnavailable(t *testing.T) {
	p := New()
	h, err := p.Create(mustJSON(Config{Endpoints: map[string]string{"ACCTBAL": "http://127.0.0.1:0"}, TimeoutMS: 200}))
	require.NoError(t, err)

	_, status := p.Invoke(context.Background(), h, "ACCTBAL", json.RawMessage(`{}`))
	assert.Equal(t, abi.BackendUnavailable, status)
}

func TestInvokeBackendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New()
	h, err := p.Create(mustJSON(Config{Endpoints: map[string]string{"ACCTBAL": srv.URL}}))
	require.NoError(t, err)

	_, status := p.Invoke(context.Background(), h, "ACCTBAL", json.RawMessage(`{}`))
	assert.Equal(t, abi.BackendUnavailable, status)
}

func TestInvokeRespectsContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := New()
	h, err := p.Create(mustJSON(Config{Endpoints: map[string]string{"ACCTBAL": srv.URL}}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, status := p.Invoke(ctx, h, "ACCTBAL", json.RawMessage(`{}`))
	assert.True(t, status == abi.Timeout || status == abi.BackendUnavailable)
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
