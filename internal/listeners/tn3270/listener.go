// Package tn3270 implements the TN3270 Frontend Listener (spec
// §4.6, gluing §4.7-§4.9): a terminal session renders a compiled
// screen, reads back modified-field data on each AID, and drives the
// Router from the resulting parameter tree. Grounded on the same
// accept-loop shape as internal/admin and internal/listeners/tcp,
// adapted for telnet EOR framing instead of a length prefix.
package tn3270

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/carles-abarca/NEO6/internal/conntrack"
	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/logger"
	"github.com/carles-abarca/NEO6/internal/metrics"
	"github.com/carles-abarca/NEO6/internal/router"
	"github.com/carles-abarca/NEO6/internal/tn3270/compiler"
	"github.com/carles-abarca/NEO6/internal/tn3270/fields"
	"github.com/carles-abarca/NEO6/internal/tn3270/render"
)

// Config names the templates and transaction a session drives.
type Config struct {
	// EntryTemplate is compiled and rendered once a connection opens.
	EntryTemplate string
	// ResultTemplate is re-rendered after every invocation; if empty,
	// EntryTemplate is reused.
	ResultTemplate string
	// TransactionID is the transaction invoked with the field values
	// collected from each inbound AID.
	TransactionID string
	// TerminalType is reported to templates via the terminal_type
	// substitution variable; defaults to "IBM-3278-2".
	TerminalType string
}

// Deps bundles the subsystems the TN3270 listener dispatches through.
type Deps struct {
	Router    *router.Router
	Conns     *conntrack.Tracker
	Collector *metrics.Collector
}

// Listener is the TN3270 frontend.
type Listener struct {
	cfg       Config
	router    *router.Router
	conns     *conntrack.Tracker
	collector *metrics.Collector
}

func New(cfg Config, d Deps) *Listener {
	if cfg.TerminalType == "" {
		cfg.TerminalType = "IBM-3278-2"
	}
	return &Listener{cfg: cfg, router: d.Router, conns: d.Conns, collector: d.Collector}
}

// ListenAndServe accepts connections until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	log := logger.Listener("tn3270")
	log.Info().Str("addr", addr).Msg("tn3270 listener listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warn().Err(err).Msg("tn3270 accept failed")
				return err
			}
		}

		connID := uuid.New().String()
		l.conns.Add(conntrack.Connection{
			ID:          connID,
			Protocol:    "tn3270",
			RemoteAddr:  conn.RemoteAddr().String(),
			ConnectedAt: time.Now(),
		}, func() { _ = conn.Close() })

		go l.handleConn(ctx, connID, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, connID string, conn net.Conn) {
	defer func() {
		_ = conn.Close()
		l.conns.Remove(connID)
	}()

	log := logger.Listener("tn3270")

	if _, err := conn.Write(negotiationHandshake); err != nil {
		log.Debug().Err(err).Msg("tn3270 negotiation write failed")
		return
	}
	br := bufio.NewReader(conn)

	vars := baseVars(connID, l.cfg.TerminalType, nil)
	mgr, err := l.renderAndSend(conn, l.cfg.EntryTemplate, vars)
	if err != nil {
		log.Warn().Err(err).Msg("tn3270 entry screen render failed")
		return
	}

	for {
		record, err := readRecord(br)
		if err != nil {
			return
		}

		params, err := mgr.ApplyInboundStream(record)
		if err != nil {
			mgr, err = l.renderAndSend(conn, l.cfg.EntryTemplate, withError(vars, err))
			if err != nil {
				log.Warn().Err(err).Msg("tn3270 error screen render failed")
				return
			}
			continue
		}

		start := time.Now()
		resp := l.router.Invoke(ctx, router.Request{TransactionID: l.cfg.TransactionID, Parameters: params})
		l.collector.RecordInvocation(resp.Err == nil, time.Since(start).Milliseconds())

		resultTemplate := l.cfg.ResultTemplate
		if resultTemplate == "" {
			resultTemplate = l.cfg.EntryTemplate
		}

		mgr, err = l.renderAndSend(conn, resultTemplate, withResult(vars, resp))
		if err != nil {
			log.Warn().Err(err).Msg("tn3270 result screen render failed")
			return
		}
	}
}

// renderAndSend compiles+renders template against vars, writes its
// data stream to the connection, and returns a fresh Field Manager
// scoped to the new screen (spec §4.9: per-session current screen).
func (l *Listener) renderAndSend(conn net.Conn, template string, vars map[string]string) (*fields.Manager, error) {
	prog, err := compiler.Compile(template, vars)
	if err != nil {
		return nil, err
	}
	screen := render.Render(prog)
	if err := writeRecord(conn, screen.DataStream); err != nil {
		return nil, err
	}
	return fields.NewManager(screen), nil
}

func withError(vars map[string]string, err error) map[string]string {
	out := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}
	if pe, ok := err.(*errors.ProxyError); ok {
		out["error_message"] = pe.Message
	} else {
		out["error_message"] = err.Error()
	}
	return out
}

func withResult(vars map[string]string, resp router.Response) map[string]string {
	out := make(map[string]string, len(vars)+len(resp.Data)+2)
	for k, v := range vars {
		out[k] = v
	}
	if resp.Err != nil {
		out["status"] = "error"
		out["error_message"] = resp.Err.Message
		return out
	}
	out["status"] = resp.Status
	for k, v := range resp.Data {
		out[k] = fmt.Sprint(v)
	}
	return out
}
