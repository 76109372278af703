// Package tcp implements the example "tcp" outbound protocol plugin:
// it dials a configured legacy backend per transaction and speaks the
// same NEO6 text frame the internal/listeners/tcp frontend accepts
// from clients (`NEO6|<version>|<tx>|<json>\n`), so a NEO6 proxy can
// sit on both sides of a TCP hop during local testing.
//
// Configuration is a map of transaction ID to backend "host:port":
//
//	{"endpoints": {"TXFER": "mainframe.example:4000"}, "timeout_ms": 5000}
package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/carles-abarca/NEO6/internal/abi"
	"github.com/carles-abarca/NEO6/internal/logger"
)

const protocolName = "tcp"
const wireVersion = 1
const defaultTimeout = 5 * time.Second

type Config struct {
	Endpoints map[string]string `json:"endpoints"`
	TimeoutMS int                `json:"timeout_ms"`
}

type session struct {
	endpoints map[string]string
	timeout   time.Duration
}

// Plugin is the example outbound TCP protocol plugin.
type Plugin struct {
	abi.BasePlugin
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return protocolName }

func (p *Plugin) Create(configJSON json.RawMessage) (abi.Handle, error) {
	var cfg Config
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return nil, fmt.Errorf("tcp plugin: invalid config: %w", err)
		}
	}
	timeout := defaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &session{endpoints: cfg.Endpoints, timeout: timeout}, nil
}

func (p *Plugin) Destroy(_ abi.Handle) error { return nil }

func (p *Plugin) Invoke(ctx context.Context, h abi.Handle, transactionID string, paramsJSON json.RawMessage) (json.RawMessage, abi.StatusCode) {
	s, ok := h.(*session)
	if !ok {
		return nil, abi.Internal
	}

	addr, configured := s.endpoints[transactionID]
	if !configured {
		return json.RawMessage(`{"alive":true}`), abi.OK
	}

	log := logger.Plugin(protocolName)

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.Warn().Err(err).Str("transaction_id", transactionID).Msg("tcp plugin dial failed")
		return nil, abi.BackendUnavailable
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	frame := fmt.Sprintf("NEO6|%d|%s|%s\n", wireVersion, transactionID, paramsJSON)
	if _, err := conn.Write([]byte(frame)); err != nil {
		return nil, abi.BackendUnavailable
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, abi.Timeout
		}
		return nil, abi.BackendUnavailable
	}

	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), "|", 4)
	if len(parts) != 4 || parts[0] != "NEO6" {
		return nil, abi.ProtocolError
	}
	return json.RawMessage(parts[3]), abi.OK
}

func padTxID(id string) string {
	const fieldSize = 8
	if len(id) >= fieldSize {
		return id[:fieldSize]
	}
	return id + strings.Repeat(" ", fieldSize-len(id))
}
