package tcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carles-abarca/NEO6/internal/abi"
	"github.com/carles-abarca/NEO6/internal/breaker"
	"github.com/carles-abarca/NEO6/internal/conntrack"
	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/metrics"
	"github.com/carles-abarca/NEO6/internal/pluginloader"
	"github.com/carles-abarca/NEO6/internal/router"
	"github.com/carles-abarca/NEO6/internal/txregistry"
)

type fakePlugin struct {
	abi.BasePlugin
	status abi.StatusCode
	data   string
}

func (p *fakePlugin) Name() string                              { return "tcp" }
func (p *fakePlugin) Create(json.RawMessage) (abi.Handle, error) { return "h", nil }
func (p *fakePlugin) Destroy(abi.Handle) error                   { return nil }
func (p *fakePlugin) Invoke(context.Context, abi.Handle, string, json.RawMessage) (json.RawMessage, abi.StatusCode) {
	return json.RawMessage(p.data), p.status
}

func newTestListener(t *testing.T, plugin *fakePlugin) *Listener {
	t.Helper()

	reg := txregistry.New()
	require.NoError(t, reg.LoadBytes([]byte(`
transactions:
  ACCTBAL:
    protocol: tcp
    endpoint: /v1/acctbal
    parameters:
      - name: account_id
        type: string
        required: true
`)))

	loader := pluginloader.New(nil)
	loader.RegisterBuiltin("tcp", func() abi.ProtocolPlugin { return plugin })
	_, err := loader.LoadAll(context.Background())
	require.NoError(t, err)

	breakers := breaker.NewManager(breaker.DefaultConfig())
	r := router.New(reg, loader, breakers)
	collector := metrics.New(breakers.Snapshot)

	return New(Deps{Router: r, Conns: conntrack.New(), Collector: collector})
}

func TestBinaryFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeBinaryFrame(&buf, 1, "ACCTBAL", []byte(`{"account_id":"1"}`)))

	frame, err := readBinaryFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), frame.Version)
	assert.Equal(t, "ACCTBAL", frame.TxID)
	assert.Equal(t, `{"account_id":"1"}`, string(frame.Payload))
}

func TestBinaryFrameLengthTooShort(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 5)
	buf.Write(lenBuf[:])
	_, err := readBinaryFrame(&buf)
	assert.Error(t, err)
}

func TestTextFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTextFrame(&buf, 1, "ACCTBAL", `{"account_id":"1"}`))

	r := bufio.NewReader(&buf)
	frame, err := readTextFrame(r)
	require.NoError(t, err)
	assert.Equal(t, 1, frame.Version)
	assert.Equal(t, "ACCTBAL", frame.TxID)
	assert.Equal(t, `{"account_id":"1"}`, frame.JSON)
}

func TestSniffModeDetectsTextVsBinary(t *testing.T) {
	textR := bufio.NewReader(bytes.NewBufferString("NEO6|1|ACCTBAL|{}\n"))
	isText, err := sniffMode(textR)
	require.NoError(t, err)
	assert.True(t, isText)

	var binBuf bytes.Buffer
	require.NoError(t, writeBinaryFrame(&binBuf, 1, "ACCTBAL", []byte(`{}`)))
	binR := bufio.NewReader(&binBuf)
	isText, err = sniffMode(binR)
	require.NoError(t, err)
	assert.False(t, isText)
}

func TestHandleConnBinaryInvoke(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{"balance":100.5}`}
	l := newTestListener(t, plugin)

	clientConn, serverConn := net.Pipe()
	connID := "test-conn"
	go l.handleConn(context.Background(), connID, serverConn)

	require.NoError(t, writeBinaryFrame(clientConn, 1, "ACCTBAL", []byte(`{"account_id":"1"}`)))

	frame, err := readBinaryFrame(clientConn)
	require.NoError(t, err)
	assert.Equal(t, "ACCTBAL", frame.TxID)

	var resp router.Response
	require.NoError(t, json.Unmarshal(frame.Payload, &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 100.5, resp.Data["balance"])

	clientConn.Close()
}

func TestHandleConnTextInvoke(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{"balance":1}`}
	l := newTestListener(t, plugin)

	clientConn, serverConn := net.Pipe()
	connID := "test-conn"
	go l.handleConn(context.Background(), connID, serverConn)

	require.NoError(t, writeTextFrame(clientConn, 1, "ACCTBAL", `{"account_id":"1"}`))

	r := bufio.NewReader(clientConn)
	frame, err := readTextFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "ACCTBAL", frame.TxID)

	var resp router.Response
	require.NoError(t, json.Unmarshal([]byte(frame.JSON), &resp))
	assert.Equal(t, "success", resp.Status)

	clientConn.Close()
}

func TestHandleConnUnknownTransaction(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{}`}
	l := newTestListener(t, plugin)

	clientConn, serverConn := net.Pipe()
	go l.handleConn(context.Background(), "test-conn", serverConn)

	require.NoError(t, writeTextFrame(clientConn, 1, "NOPE", `{}`))

	r := bufio.NewReader(clientConn)
	frame, err := readTextFrame(r)
	require.NoError(t, err)

	var resp errors.Response
	require.NoError(t, json.Unmarshal([]byte(frame.JSON), &resp))
	assert.Equal(t, errors.CodeTransactionUnknown, resp.Error)

	clientConn.Close()
}

func TestListenAndServeAcceptsConnections(t *testing.T) {
	plugin := &fakePlugin{status: abi.OK, data: `{"ok":true}`}
	l := newTestListener(t, plugin)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	errCh := make(chan error, 1)
	go func() { errCh <- l.ListenAndServe(ctx, addr) }()

	var conn net.Conn
	require.Eventually(t, func() bool {
		c, dialErr := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if dialErr != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()

	require.NoError(t, writeTextFrame(conn, 1, "ACCTBAL", `{"account_id":"1"}`))
	r := bufio.NewReader(conn)
	frame, err := readTextFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "ACCTBAL", frame.TxID)

	cancel()
}
