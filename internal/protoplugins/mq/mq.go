// Package mq implements the example "mq" outbound protocol plugin: it
// publishes a request envelope to a configured NATS subject per
// transaction and waits for a correlated reply, standing in for the
// IBM MQ wire binding the spec delegates to a plugin (§1 scope).
//
// Configuration:
//
//	{"url": "nats://mq.example:4222", "endpoints": {"TXFER": "neo6.backend.txfer"}, "timeout_ms": 5000}
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/carles-abarca/NEO6/internal/abi"
	"github.com/carles-abarca/NEO6/internal/logger"
)

const protocolName = "mq"
const defaultTimeout = 5 * time.Second

type Config struct {
	URL       string            `json:"url"`
	Endpoints map[string]string `json:"endpoints"`
	TimeoutMS int                `json:"timeout_ms"`
}

type session struct {
	conn      *nats.Conn
	endpoints map[string]string
	timeout   time.Duration
}

type requestEnvelope struct {
	MessageID     string                 `json:"message_id"`
	TransactionID string                 `json:"transaction_id"`
	Parameters    map[string]interface{} `json:"parameters"`
}

// Plugin is the example outbound MQ protocol plugin.
type Plugin struct {
	abi.BasePlugin
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return protocolName }

func (p *Plugin) Create(configJSON json.RawMessage) (abi.Handle, error) {
	var cfg Config
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return nil, fmt.Errorf("mq plugin: invalid config: %w", err)
		}
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	timeout := defaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}

	log := logger.Plugin(protocolName)
	conn, err := nats.Connect(cfg.URL,
		nats.Name("neo6-mq-plugin"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("mq plugin disconnected")
			}
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			log.Info().Msg("mq plugin reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("mq plugin: connect: %w", err)
	}

	return &session{conn: conn, endpoints: cfg.Endpoints, timeout: timeout}, nil
}

func (p *Plugin) Destroy(h abi.Handle) error {
	if s, ok := h.(*session); ok {
		s.conn.Close()
	}
	return nil
}

func (p *Plugin) Invoke(ctx context.Context, h abi.Handle, transactionID string, paramsJSON json.RawMessage) (json.RawMessage, abi.StatusCode) {
	s, ok := h.(*session)
	if !ok {
		return nil, abi.Internal
	}

	subject, configured := s.endpoints[transactionID]
	if !configured {
		return json.RawMessage(`{"alive":true}`), abi.OK
	}

	var params map[string]interface{}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &params); err != nil {
			return nil, abi.InvalidArgs
		}
	}

	env := requestEnvelope{
		MessageID:     uuid.New().String(),
		TransactionID: transactionID,
		Parameters:    params,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, abi.Internal
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	msg, err := s.conn.Request(subject, body, timeout)
	if err != nil {
		if err == nats.ErrTimeout {
			return nil, abi.Timeout
		}
		logger.Plugin(protocolName).Warn().Err(err).Str("transaction_id", transactionID).Msg("mq plugin request failed")
		return nil, abi.BackendUnavailable
	}

	return json.RawMessage(msg.Data), abi.OK
}
