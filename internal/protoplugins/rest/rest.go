// Package rest implements the example "rest" outbound protocol plugin
// (spec §4.1 Invoke side): it relays a validated parameter tree to a
// configured HTTP backend and mirrors the backend's JSON body back as
// the plugin's response, the same "proxy the body through" shape the
// teacher's handlers use for its own upstream calls.
//
// Configuration, set via the Loader's per-protocol configJSON (the
// ABI's "slice of configuration" handed to create), is a map of
// transaction ID to backend URL:
//
//	{"endpoints": {"TX_BAL": "https://api.test/bal"}, "timeout_ms": 5000}
//
// A transaction ID with no configured endpoint is treated as a bare
// liveness probe (see internal/protoplugins/probe) and answered OK
// without a network call, so TestProtocol rest works even when an
// operator hasn't wired a dedicated health endpoint.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/carles-abarca/NEO6/internal/abi"
	"github.com/carles-abarca/NEO6/internal/logger"
)

const protocolName = "rest"

const defaultTimeout = 5 * time.Second

// Config is the plugin's create()-time configuration.
type Config struct {
	Endpoints map[string]string `json:"endpoints"`
	TimeoutMS int                `json:"timeout_ms"`
}

type session struct {
	client    *http.Client
	endpoints map[string]string
}

// Plugin is the example outbound REST protocol plugin.
type Plugin struct {
	abi.BasePlugin
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return protocolName }

func (p *Plugin) Create(configJSON json.RawMessage) (abi.Handle, error) {
	var cfg Config
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return nil, fmt.Errorf("rest plugin: invalid config: %w", err)
		}
	}
	timeout := defaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &session{
		client:    &http.Client{Timeout: timeout},
		endpoints: cfg.Endpoints,
	}, nil
}

func (p *Plugin) Destroy(h abi.Handle) error {
	if s, ok := h.(*session); ok {
		s.client.CloseIdleConnections()
	}
	return nil
}

func (p *Plugin) Invoke(ctx context.Context, h abi.Handle, transactionID string, paramsJSON json.RawMessage) (json.RawMessage, abi.StatusCode) {
	s, ok := h.(*session)
	if !ok {
		return nil, abi.Internal
	}

	url, configured := s.endpoints[transactionID]
	if !configured {
		return json.RawMessage(`{"alive":true}`), abi.OK
	}

	log := logger.Plugin(protocolName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(paramsJSON))
	if err != nil {
		log.Warn().Err(err).Str("transaction_id", transactionID).Msg("rest plugin build request failed")
		return nil, abi.ProtocolError
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, abi.Timeout
		}
		log.Warn().Err(err).Str("transaction_id", transactionID).Msg("rest plugin backend unreachable")
		return nil, abi.BackendUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, abi.ProtocolError
	}

	if resp.StatusCode >= 500 {
		return nil, abi.BackendUnavailable
	}
	if resp.StatusCode >= 400 {
		return nil, abi.InvalidArgs
	}
	return json.RawMessage(body), abi.OK
}
