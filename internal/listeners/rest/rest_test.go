package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carles-abarca/NEO6/internal/abi"
	"github.com/carles-abarca/NEO6/internal/asyncstore"
	"github.com/carles-abarca/NEO6/internal/breaker"
	"github.com/carles-abarca/NEO6/internal/conntrack"
	"github.com/carles-abarca/NEO6/internal/metrics"
	"github.com/carles-abarca/NEO6/internal/pluginloader"
	"github.com/carles-abarca/NEO6/internal/router"
	"github.com/carles-abarca/NEO6/internal/txregistry"
)

type fakePlugin struct {
	abi.BasePlugin
	status abi.StatusCode
	data   string
	// block, when non-nil, is read from before every Invoke returns —
	// used to hold worker goroutines busy so a bounded async queue can
	// be observed full.
	block <-chan struct{}
}

func (p *fakePlugin) Name() string                              { return "rest" }
func (p *fakePlugin) Create(json.RawMessage) (abi.Handle, error) { return "h", nil }
func (p *fakePlugin) Destroy(abi.Handle) error                   { return nil }
func (p *fakePlugin) Invoke(context.Context, abi.Handle, string, json.RawMessage) (json.RawMessage, abi.StatusCode) {
	if p.block != nil {
		<-p.block
	}
	if p.data == "" {
		return nil, p.status
	}
	return json.RawMessage(p.data), p.status
}

func newTestListener(t *testing.T, plugin *fakePlugin, d Deps) *Listener {
	t.Helper()

	reg := txregistry.New()
	require.NoError(t, reg.LoadBytes([]byte(`
transactions:
  ACCTBAL:
    protocol: rest
    endpoint: /v1/acctbal
    parameters:
      - name: account_id
        type: string
        required: true
`)))

	loader := pluginloader.New(nil)
	loader.RegisterBuiltin("rest", func() abi.ProtocolPlugin { return plugin })
	_, err := loader.LoadAll(context.Background())
	require.NoError(t, err)

	breakers := breaker.NewManager(breaker.DefaultConfig())
	r := router.New(reg, loader, breakers)
	collector := metrics.New(breakers.Snapshot)

	d.Router = r
	d.Loader = loader
	d.Registry = reg
	if d.Store == nil {
		d.Store = asyncstore.NewMemoryStore(100)
	}
	d.Conns = conntrack.New()
	d.Collector = collector

	return New(d)
}

func TestHandleInvokeSuccess(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{"balance":100.5}`}
	l := newTestListener(t, plugin, Deps{})

	body := `{"transaction_id":"ACCTBAL","parameters":{"account_id":"123456"}}`
	req := httptest.NewRequest(http.MethodPost, "/invoke", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	l.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "balance")
}

func TestHandleInvokeMalformedBody(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{}`}
	l := newTestListener(t, plugin, Deps{})

	req := httptest.NewRequest(http.MethodPost, "/invoke", bytes.NewBufferString(`not json`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInvokeAsyncAndStatus(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{"balance":1}`}
	l := newTestListener(t, plugin, Deps{})

	body := `{"transaction_id":"ACCTBAL","parameters":{"account_id":"1"}}`
	req := httptest.NewRequest(http.MethodPost, "/invoke-async", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	l.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted InvokeAsyncAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "pending", accepted.Status)
	assert.NotEmpty(t, accepted.ID)

	require.Eventually(t, func() bool {
		result, ok, err := l.store.Get(context.Background(), accepted.ID)
		return err == nil && ok && result.Status != asyncstore.Pending
	}, time.Second, 10*time.Millisecond)

	statusReq := httptest.NewRequest(http.MethodGet, "/status/"+accepted.ID, nil)
	statusRec := httptest.NewRecorder()
	l.engine.ServeHTTP(statusRec, statusReq)
	assert.Equal(t, http.StatusOK, statusRec.Code)
}

func TestHandleInvokeAsyncQueueFull(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	plugin := &fakePlugin{status: abi.OK, data: `{}`, block: block}
	l := newTestListener(t, plugin, Deps{AsyncQueueSize: 1})

	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	// Occupy every worker goroutine with a blocked Invoke, then fill the
	// single queue slot, so the next submission has nowhere to land.
	for i := 0; i < workers; i++ {
		l.jobs <- asyncJob{id: "occupying-worker", req: router.Request{TransactionID: "ACCTBAL"}}
	}
	require.Eventually(t, func() bool { return len(l.jobs) == 0 }, time.Second, 5*time.Millisecond)
	l.jobs <- asyncJob{id: "occupying-slot", req: router.Request{TransactionID: "ACCTBAL"}}

	body := `{"transaction_id":"ACCTBAL","parameters":{"account_id":"1"}}`
	req := httptest.NewRequest(http.MethodPost, "/invoke-async", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	l.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestHandleStatusUnknown(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{}`}
	l := newTestListener(t, plugin, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/status/does-not-exist", nil)
	rec := httptest.NewRecorder()
	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{}`}
	l := newTestListener(t, plugin, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	l.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Contains(t, resp.Protocols, "rest")
}

func TestHandleMetrics(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{}`}
	l := newTestListener(t, plugin, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	l.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "neo6_invoke_total")
}

func TestHandleAdminReload(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{}`}
	l := newTestListener(t, plugin, Deps{})

	req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
	rec := httptest.NewRecorder()
	l.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitRejectsOverflow(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{}`}
	l := newTestListener(t, plugin, Deps{RequestsPerSecond: 1, Burst: 1})

	var lastCode int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		l.engine.ServeHTTP(rec, req)
		lastCode = rec.Code
		if lastCode == http.StatusServiceUnavailable {
			break
		}
	}
	assert.Equal(t, http.StatusServiceUnavailable, lastCode)
}
