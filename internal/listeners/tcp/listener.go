// Package tcp implements the TCP Frontend Listener (spec §4.6): the
// legacy client wire, framed either as a length-prefixed binary
// message or as a pipe-delimited text line, chosen per connection by
// a first-byte sniff. Unlike MQ, a TCP connection does not pipeline —
// one request is read, invoked, and answered before the next is read
// (spec §4.6's ordering note), so handleConn is a strictly sequential
// loop, grounded on the same accept-loop shape as internal/admin's
// control socket.
package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/carles-abarca/NEO6/internal/conntrack"
	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/logger"
	"github.com/carles-abarca/NEO6/internal/metrics"
	"github.com/carles-abarca/NEO6/internal/router"
)

// DefaultWireVersion is used on outbound frames when a request didn't
// carry one worth echoing back verbatim.
const DefaultWireVersion = 1

// Deps bundles the subsystems the TCP listener dispatches through.
type Deps struct {
	Router    *router.Router
	Conns     *conntrack.Tracker
	Collector *metrics.Collector
}

// Listener is the TCP frontend.
type Listener struct {
	router    *router.Router
	conns     *conntrack.Tracker
	collector *metrics.Collector
}

func New(d Deps) *Listener {
	return &Listener{router: d.Router, conns: d.Conns, collector: d.Collector}
}

// ListenAndServe accepts connections until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	log := logger.Listener("tcp")
	log.Info().Str("addr", addr).Msg("tcp listener listening")

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
				log.Warn().Err(err).Msg("tcp accept failed")
				return err
			}
		}

		connID := uuid.New().String()
		l.conns.Add(conntrack.Connection{
			ID:          connID,
			Protocol:    "tcp",
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

	log := logger.Listener("tcp")
	br := bufio.NewReader(conn)

	for {
		textMode, err := sniffMode(br)
		if err != nil {
			return
		}

		var (
			txID    string
			version int
			params  map[string]interface{}
			reply   func(router.Response, *errors.ProxyError) error
		)

		if textMode {
			frame, err := readTextFrame(br)
			if err != nil {
				log.Debug().Err(err).Msg("malformed text frame")
				return
			}
			txID, version = frame.TxID, frame.Version
			if err := json.Unmarshal([]byte(frame.JSON), &params); err != nil {
				l.replyTextError(conn, version, txID, errors.ParamsInvalid("", "malformed parameters JSON: "+err.Error()))
				continue
			}
			reply = func(resp router.Response, perr *errors.ProxyError) error {
				return l.replyText(conn, version, txID, resp, perr)
			}
		} else {
			frame, err := readBinaryFrame(br)
			if err != nil {
				log.Debug().Err(err).Msg("malformed binary frame")
				return
			}
			txID, version = frame.TxID, int(frame.Version)
			if err := json.Unmarshal(frame.Payload, &params); err != nil {
				l.replyBinaryError(conn, uint16(version), txID, errors.ParamsInvalid("", "malformed parameters JSON: "+err.Error()))
				continue
			}
			reply = func(resp router.Response, perr *errors.ProxyError) error {
				return l.replyBinary(conn, uint16(version), txID, resp, perr)
			}
		}

		start := time.Now()
		resp := l.router.Invoke(ctx, router.Request{TransactionID: txID, Parameters: params})
		l.collector.RecordInvocation(resp.Err == nil, time.Since(start).Milliseconds())

		if err := reply(resp, resp.Err); err != nil {
			log.Warn().Err(err).Msg("tcp write failed")
			return
		}
	}
}
