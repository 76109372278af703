// Package admin implements the Admin Control Socket (spec §4.10): a
// length-prefixed JSON frame protocol over TCP exposing lifecycle and
// introspection commands as a sidechannel that never carries data-
// plane traffic.
package admin

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carles-abarca/NEO6/internal/breaker"
	"github.com/carles-abarca/NEO6/internal/conntrack"
	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/logger"
	"github.com/carles-abarca/NEO6/internal/metrics"
	"github.com/carles-abarca/NEO6/internal/pluginloader"
	"github.com/carles-abarca/NEO6/internal/router"
	"github.com/carles-abarca/NEO6/internal/txregistry"
)

// Server is the admin socket: one TCP listener, many short-lived
// command connections.
type Server struct {
	addr string

	registry  *txregistry.Registry
	txPath    string
	loader    *pluginloader.Loader
	breakers  *breaker.Manager
	router    *router.Router
	collector *metrics.Collector
	conns     *conntrack.Tracker
	logs      *LogBuffer

	probeTxByProtocol map[string]string

	// Shutdown is invoked once in response to a Shutdown command,
	// before the admin listener itself closes. Set by cmd/neo6proxy to
	// the full proxy teardown sequence.
	Shutdown func(context.Context) error

	startedAt time.Time

	mu sync.Mutex
	ln net.Listener
}

// Deps bundles the subsystems admin commands read or mutate.
type Deps struct {
	Registry  *txregistry.Registry
	TxPath    string
	Loader    *pluginloader.Loader
	Breakers  *breaker.Manager
	Router    *router.Router
	Collector *metrics.Collector
	Conns     *conntrack.Tracker
	Logs      *LogBuffer
}

func New(addr string, d Deps) *Server {
	return &Server{
		addr:              addr,
		registry:          d.Registry,
		txPath:            d.TxPath,
		loader:            d.Loader,
		breakers:          d.Breakers,
		router:            d.Router,
		collector:         d.Collector,
		conns:             d.Conns,
		logs:              d.Logs,
		probeTxByProtocol: make(map[string]string),
		startedAt:         time.Now(),
	}
}

// SetProbeTransaction records which transaction id TestProtocol should
// invoke for protocol. Without an entry, TestProtocol falls back to
// the "__probe_<protocol>__" convention.
func (s *Server) SetProbeTransaction(protocol, transactionID string) {
	s.probeTxByProtocol[protocol] = transactionID
}

// ListenAndServe accepts admin connections until ctx is cancelled or
// Shutdown closes the listener.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin socket listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	log := logger.Admin()
	log.Info().Str("addr", s.addr).Msg("admin socket listening")

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
				log.Warn().Err(err).Msg("admin accept failed")
				return err
			}
		}
		connID := uuid.New().String()
		s.conns.Add(conntrack.Connection{
			ID:          connID,
			Protocol:    "admin",
			RemoteAddr:  conn.RemoteAddr().String(),
			ConnectedAt: time.Now(),
		}, func() { _ = conn.Close() })

		go s.handleConn(ctx, connID, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, connID string, conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.conns.Remove(connID)
	}()

	log := logger.Admin()
	for {
		var req Request
		if err := readFrame(conn, &req); err != nil {
			return
		}
		log.Debug().Str("command", req.Command).Msg("admin command received")

		resp := s.dispatch(ctx, req)
		if err := writeFrame(conn, resp); err != nil {
			log.Warn().Err(err).Msg("admin write failed")
			return
		}
	}
}

var validate = validator.New()

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	if err := validate.Struct(req); err != nil {
		return errResponse(errors.New(errors.CodeParamsInvalid, "malformed admin frame: "+err.Error()))
	}

	switch req.Command {
	case CmdStatus:
		return s.handleStatus()
	case CmdGetMetrics:
		return s.handleGetMetrics()
	case CmdGetConnections:
		return s.handleGetConnections()
	case CmdGetProtocols:
		return s.handleGetProtocols()
	case CmdSetLogLevel:
		return s.handleSetLogLevel(req.Level)
	case CmdReloadConfig:
		return s.handleReloadConfig(req)
	case CmdReloadProtocols:
		return s.handleReloadProtocols(ctx)
	case CmdTestProtocol:
		return s.handleTestProtocol(ctx, req.Protocol)
	case CmdKillConnection:
		return s.handleKillConnection(req.ConnID)
	case CmdGetLogs:
		return s.handleGetLogs(req.Lines)
	case CmdShutdown:
		return s.handleShutdown(ctx)
	default:
		return errResponse(errors.New(errors.CodeInternal, "unknown admin command: "+req.Command))
	}
}

func (s *Server) handleStatus() Response {
	return Response{
		Ok: true,
		Status: &StatusInfo{
			Running:     true,
			UptimeS:     time.Since(s.startedAt).Seconds(),
			Connections: s.conns.Count(),
			Protocols:   s.loader.Active().Names(),
		},
	}
}

func (s *Server) handleGetMetrics() Response {
	return Response{Ok: true, Metrics: s.collector.WriteProm()}
}

func (s *Server) handleGetConnections() Response {
	list := s.conns.List()
	out := make([]ConnectionInfo, 0, len(list))
	for _, c := range list {
		out = append(out, ConnectionInfo{
			ID:          c.ID,
			Protocol:    c.Protocol,
			RemoteAddr:  c.RemoteAddr,
			ConnectedAt: c.ConnectedAt.Format(time.RFC3339),
		})
	}
	return Response{Ok: true, Connections: out}
}

func (s *Server) handleGetProtocols() Response {
	reg := s.loader.Active()
	snapshot := s.breakers.Snapshot()
	out := make([]ProtocolInfo, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		out = append(out, ProtocolInfo{Name: name, BreakerState: breakerStateFor(snapshot, name)})
	}
	return Response{Ok: true, Protocols: out}
}

// breakerStateFor returns the state of the first breaker keyed under
// protocol. A protocol with several endpoints may have several
// breakers; GetProtocols reports one representative state rather than
// a full endpoint breakdown (see GetMetrics for the complete snapshot).
func breakerStateFor(snapshot map[string]string, protocol string) string {
	prefix := protocol + "\x00"
	for k, v := range snapshot {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			return v
		}
	}
	return ""
}

func (s *Server) handleSetLogLevel(level string) Response {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return errResponse(errors.New(errors.CodeParamsInvalid, "invalid log level: "+level).WithField("level"))
	}
	zerolog.SetGlobalLevel(parsed)
	logger.Admin().Info().Str("level", level).Msg("log level changed")
	return Response{Ok: true, Message: "log level set to " + level}
}

func (s *Server) handleReloadConfig(req Request) Response {
	var err error
	if len(req.TransactionsYAML) > 0 {
		err = s.registry.LoadBytes(req.TransactionsYAML)
	} else if s.txPath != "" {
		err = s.registry.Load(s.txPath)
	} else {
		return errResponse(errors.New(errors.CodeConfigInvalid, "no transactions.yaml source configured"))
	}
	if err != nil {
		return errResponse(err)
	}
	logger.Admin().Info().Int("transactions", s.registry.Len()).Msg("transaction registry reloaded")
	return Response{Ok: true, Message: fmt.Sprintf("%d transactions loaded", s.registry.Len())}
}

func (s *Server) handleReloadProtocols(ctx context.Context) Response {
	reg, err := s.loader.Reload(ctx)
	if err != nil {
		return errResponse(err)
	}
	details := make(map[string]string, len(reg.Names()))
	for _, name := range reg.Names() {
		details[name] = "ready"
	}
	logger.Admin().Info().Strs("protocols", reg.Names()).Msg("protocol registry reloaded")
	return Response{Ok: true, Details: details}
}

func (s *Server) handleTestProtocol(ctx context.Context, protocol string) Response {
	if protocol == "" {
		return errResponse(errors.New(errors.CodeParamsInvalid, "protocol is required").WithField("protocol"))
	}
	txID, ok := s.probeTxByProtocol[protocol]
	if !ok {
		txID = fmt.Sprintf("__probe_%s__", protocol)
	}

	resp := s.router.Invoke(ctx, router.Request{
		TransactionID: txID,
		Parameters:    nil,
		Options:       router.Options{TimeoutMS: 5000},
	})
	passed := resp.Err == nil && resp.Status == "success"
	return Response{
		Ok:          true,
		ProbeResult: &ProbeResult{Passed: passed, ExecutionTimeMS: resp.ExecutionTimeMS},
	}
}

func (s *Server) handleKillConnection(connID string) Response {
	if connID == "" {
		return errResponse(errors.New(errors.CodeParamsInvalid, "connection_id is required").WithField("connection_id"))
	}
	if !s.conns.Kill(connID) {
		return errResponse(errors.New(errors.CodeParamsInvalid, "no such connection: "+connID).WithField("connection_id"))
	}
	return Response{Ok: true}
}

func (s *Server) handleGetLogs(lines int) Response {
	return Response{Ok: true, Logs: s.logs.Tail(lines)}
}

func (s *Server) handleShutdown(ctx context.Context) Response {
	logger.Admin().Warn().Msg("shutdown requested via admin socket")
	if s.Shutdown != nil {
		go func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				logger.Admin().Error().Err(err).Msg("shutdown sequence failed")
			}
		}()
	}
	return Response{Ok: true, Message: "shutdown initiated"}
}

func errResponse(err error) Response {
	if pe, ok := err.(*errors.ProxyError); ok {
		return Response{Ok: false, Error: pe.Code, Message: pe.Message}
	}
	return Response{Ok: false, Error: errors.CodeInternal, Message: err.Error()}
}
