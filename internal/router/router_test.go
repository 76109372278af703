package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carles-abarca/NEO6/internal/abi"
	"github.com/carles-abarca/NEO6/internal/breaker"
	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/pluginloader"
	"github.com/carles-abarca/NEO6/internal/txregistry"
	"github.com/carles-abarca/NEO6/internal/validate"
)

// fakePlugin is a hand-written abi.ProtocolPlugin test double, in place
// of a real .so — each call records its invocation count so tests can
// assert retry behavior.
type fakePlugin struct {
	abi.BasePlugin
	name      string
	responses []fakeResult
	calls     int
}

type fakeResult struct {
	status abi.StatusCode
	data   string
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) Create(_ json.RawMessage) (abi.Handle, error) { return "handle", nil }

func (p *fakePlugin) Destroy(abi.Handle) error { return nil }

func (p *fakePlugin) Invoke(_ context.Context, _ abi.Handle, _ string, _ json.RawMessage) (json.RawMessage, abi.StatusCode) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1 // keep answering with the last response
	}
	r := p.responses[idx]
	p.calls++
	if r.data == "" {
		return nil, r.status
	}
	return json.RawMessage(r.data), r.status
}

func newTestRouter(t *testing.T, plugin *fakePlugin) *Router {
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
	return New(reg, loader, breakers)
}

func TestInvokeSuccess(t *testing.T) {
	plugin := &fakePlugin{name: "rest", responses: []fakeResult{{status: abi.OK, data: `{"balance":100.5}`}}}
	r := newTestRouter(t, plugin)

	resp := r.Invoke(context.Background(), Request{
		TransactionID: "ACCTBAL",
		Parameters:    validate.Params{"account_id": "123456"},
	})

	require.Equal(t, "success", resp.Status)
	assert.Equal(t, 100.5, resp.Data["balance"])
	assert.NotEmpty(t, resp.TraceID)
	require.NotNil(t, resp.Metadata)
	assert.Equal(t, "rest", resp.Metadata.Protocol)
}

func TestInvokeUnknownTransaction(t *testing.T) {
	plugin := &fakePlugin{name: "rest", responses: []fakeResult{{status: abi.OK, data: `{}`}}}
	r := newTestRouter(t, plugin)

	resp := r.Invoke(context.Background(), Request{TransactionID: "NOPE"})

	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Err)
	assert.Equal(t, errors.CodeTransactionUnknown, resp.Err.Code)
}

func TestInvokeMissingParameter(t *testing.T) {
	plugin := &fakePlugin{name: "rest", responses: []fakeResult{{status: abi.OK, data: `{}`}}}
	r := newTestRouter(t, plugin)

	resp := r.Invoke(context.Background(), Request{TransactionID: "ACCTBAL", Parameters: validate.Params{}})

	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Err)
	assert.Equal(t, errors.CodeParamsInvalid, resp.Err.Code)
}

func TestInvokeRetriesOnBackendUnavailable(t *testing.T) {
	plugin := &fakePlugin{name: "rest", responses: []fakeResult{
		{status: abi.BackendUnavailable},
		{status: abi.OK, data: `{"balance":1}`},
	}}
	r := newTestRouter(t, plugin)

	resp := r.Invoke(context.Background(), Request{
		TransactionID: "ACCTBAL",
		Parameters:    validate.Params{"account_id": "123456"},
		Options:       Options{RetryCount: 2},
	})

	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 2, plugin.calls)
}

func TestInvokeDoesNotRetryParamsInvalid(t *testing.T) {
	plugin := &fakePlugin{name: "rest", responses: []fakeResult{{status: abi.InvalidArgs}}}
	r := newTestRouter(t, plugin)

	resp := r.Invoke(context.Background(), Request{
		TransactionID: "ACCTBAL",
		Parameters:    validate.Params{"account_id": "123456"},
		Options:       Options{RetryCount: 3},
	})

	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, plugin.calls)
}

func TestDeadlineForCapsAtMaxTimeout(t *testing.T) {
	r := &Router{defaultTimeout: DefaultTimeout, maxTimeout: MaxTimeout}

	assert.Equal(t, DefaultTimeout, r.deadlineFor(Options{}))
	assert.Equal(t, r.maxTimeout, r.deadlineFor(Options{TimeoutMS: int(time.Hour.Milliseconds())}))
	assert.Equal(t, 500*time.Millisecond, r.deadlineFor(Options{TimeoutMS: 500}))
}
