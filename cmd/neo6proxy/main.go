// Command neo6proxy is the NEO6 transaction proxy: it loads a
// Transaction Registry and a set of protocol plugins, wires them
// through the Router, and exposes exactly one Frontend Listener
// (selected with --protocol) plus the Admin Control Socket (§4.10).
//
// Bring-up order mirrors the teacher's own cmd/main.go: config (which
// supplies the logger's level and format), then the logger, then the
// transaction registry, then the plugin loader, then
// the frontend listener and admin socket, with a deferred graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carles-abarca/NEO6/internal/abi"
	"github.com/carles-abarca/NEO6/internal/admin"
	"github.com/carles-abarca/NEO6/internal/asyncstore"
	"github.com/carles-abarca/NEO6/internal/breaker"
	"github.com/carles-abarca/NEO6/internal/config"
	"github.com/carles-abarca/NEO6/internal/conntrack"
	"github.com/carles-abarca/NEO6/internal/listeners/mq"
	"github.com/carles-abarca/NEO6/internal/listeners/rest"
	"github.com/carles-abarca/NEO6/internal/listeners/tcp"
	"github.com/carles-abarca/NEO6/internal/listeners/tn3270"
	"github.com/carles-abarca/NEO6/internal/logger"
	"github.com/carles-abarca/NEO6/internal/metrics"
	"github.com/carles-abarca/NEO6/internal/pluginloader"
	protomq "github.com/carles-abarca/NEO6/internal/protoplugins/mq"
	"github.com/carles-abarca/NEO6/internal/protoplugins/probe"
	protorest "github.com/carles-abarca/NEO6/internal/protoplugins/rest"
	prototcp "github.com/carles-abarca/NEO6/internal/protoplugins/tcp"
	"github.com/carles-abarca/NEO6/internal/router"
	"github.com/carles-abarca/NEO6/internal/txregistry"
)

// Exit codes per spec §6.
const (
	exitOK             = 0
	exitConfigInvalid  = 1
	exitPortBindFail   = 2
	exitPluginLoadFail = 3
	exitInternal       = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", getEnv("NEO6_CONFIG", "default.toml"), "path to default.toml")
		protocol    = flag.String("protocol", "rest", "frontend listener to run: rest|tcp|mq|tn3270")
		port        = flag.Int("port", 0, "override server.port")
		adminPort   = flag.Int("admin-port", 0, "override server.admin_port")
		libraryPath = flag.String("library-path", getEnv("NEO6_LIBRARY_PATH", ""), "override protocols.library_path")
		logLevel    = flag.String("log-level", getEnv("LOG_LEVEL", ""), "override logging.level")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neo6proxy: config invalid: %v\n", err)
		return exitConfigInvalid
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *adminPort != 0 {
		cfg.Server.AdminPort = *adminPort
	}
	if *libraryPath != "" {
		cfg.Protocols.LibraryPath = *libraryPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger.Initialize(cfg.Logging.Level, cfg.Logging.Format)

	// Tee every log line into the ring buffer behind the admin GetLogs
	// command, keeping the sink Initialize chose for the format.
	var logSink io.Writer = os.Stderr
	if cfg.Logging.Format == "text" {
		logSink = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	logs := admin.NewLogBuffer(1000)
	logger.Log = logger.Log.Output(zerolog.MultiLevelWriter(logSink, logs))
	log := logger.GetLogger()

	// transactions.yaml lives alongside default.toml; §9 Open Question
	// resolved in favor of a sibling-file convention since the CLI
	// surface (spec §6) names no dedicated flag for it.
	txPath := filepath.Join(filepath.Dir(*configPath), "transactions.yaml")

	reg := txregistry.New()
	if err := reg.Load(txPath); err != nil {
		log.Error().Err(err).Str("path", txPath).Msg("failed to load transactions.yaml")
		return exitConfigInvalid
	}
	log.Info().Int("transactions", reg.Len()).Msg("transaction registry loaded")

	loader := pluginloader.New(libraryDirs(cfg.Protocols.LibraryPath))
	registerOutboundPlugins(loader, reg, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	active, err := loader.LoadAll(ctx)
	if err != nil || active.Len() == 0 {
		log.Error().Err(err).Msg("PLUGIN_INVALID: no protocol plugins loaded")
		return exitPluginLoadFail
	}
	log.Info().Strs("protocols", active.Names()).Msg("protocol plugins loaded")

	breakers := breaker.NewManager(breakerConfig(cfg))
	r := router.New(reg, loader, breakers)
	collector := metrics.New(breakers.Snapshot)
	if stop, err := collector.Start(cfg.Metrics.CollectIntervalS); err == nil {
		defer stop()
	}
	conns := conntrack.New()
	store := asyncstore.NewMemoryStore(getEnvInt("NEO6_ASYNC_QUEUE_SIZE", rest.DefaultAsyncQueueSize))

	adminSrv := admin.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.AdminPort), admin.Deps{
		Registry:  reg,
		TxPath:    txPath,
		Loader:    loader,
		Breakers:  breakers,
		Router:    r,
		Collector: collector,
		Conns:     conns,
		Logs:      logs,
	})
	for _, name := range active.Names() {
		adminSrv.SetProbeTransaction(name, fmt.Sprintf("__probe_%s__", name))
	}

	shutdownCh := make(chan struct{})
	adminSrv.Shutdown = func(context.Context) error {
		close(shutdownCh)
		return nil
	}

	errCh := make(chan error, 2)
	go func() { errCh <- adminSrv.ListenAndServe(ctx) }()

	frontendAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		errCh <- runFrontend(ctx, *protocol, frontendAddr, cfg, frontendDeps{
			router:    r,
			loader:    loader,
			registry:  reg,
			txPath:    txPath,
			store:     store,
			conns:     conns,
			collector: collector,
		})
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		return exitOK
	case <-shutdownCh:
		log.Info().Msg("shutdown requested via admin socket")
		cancel()
		return exitOK
	case err := <-errCh:
		if err == nil {
			return exitOK
		}
		if isBindError(err) {
			log.Error().Err(err).Msg("port bind failure")
			return exitPortBindFail
		}
		log.Error().Err(err).Msg("unexpected internal error")
		return exitInternal
	}
}

// frontendDeps bundles the subsystems shared by every frontend
// listener kind; runFrontend narrows it to each listener's own Deps.
type frontendDeps struct {
	router    *router.Router
	loader    *pluginloader.Loader
	registry  *txregistry.Registry
	txPath    string
	store     asyncstore.Store
	conns     *conntrack.Tracker
	collector *metrics.Collector
}

func runFrontend(ctx context.Context, protocol, addr string, cfg *config.Config, d frontendDeps) error {
	switch protocol {
	case "rest":
		l := rest.New(rest.Deps{
			Router:            d.router,
			Loader:            d.loader,
			Registry:          d.registry,
			TxPath:            d.txPath,
			Store:             d.store,
			Conns:             d.conns,
			Collector:         d.collector,
			RequestsPerSecond: float64(getEnvInt("NEO6_REST_RPS", 100)),
			Burst:             getEnvInt("NEO6_REST_BURST", 200),
			JWTSecret:         cfg.Security.JWTSecret,
		})
		return l.Serve(ctx, addr)
	case "tcp":
		l := tcp.New(tcp.Deps{Router: d.router, Conns: d.conns, Collector: d.collector})
		return l.ListenAndServe(ctx, addr)
	case "mq":
		l := mq.New(mq.Config{
			URL:            cfg.MQ.URL,
			RequestSubject: cfg.MQ.RequestSubject,
			User:           cfg.MQ.User,
			Password:       cfg.MQ.Password,
		}, mq.Deps{Router: d.router, Collector: d.collector})
		return l.ListenAndServe(ctx, addr)
	case "tn3270":
		entry, err := os.ReadFile(cfg.TN3270.EntryTemplatePath)
		if err != nil {
			return fmt.Errorf("tn3270 entry template: %w", err)
		}
		var result []byte
		if cfg.TN3270.ResultTemplatePath != "" {
			result, err = os.ReadFile(cfg.TN3270.ResultTemplatePath)
			if err != nil {
				return fmt.Errorf("tn3270 result template: %w", err)
			}
		}
		l := tn3270.New(tn3270.Config{
			EntryTemplate:  string(entry),
			ResultTemplate: string(result),
			TransactionID:  cfg.TN3270.TransactionID,
			TerminalType:   cfg.TN3270.TerminalType,
		}, tn3270.Deps{Router: d.router, Conns: d.conns, Collector: d.collector})
		return l.ListenAndServe(ctx, addr)
	default:
		return fmt.Errorf("unknown --protocol %q", protocol)
	}
}

// registerOutboundPlugins wires the example protoplugins (the invoke
// side Router.dispatch reaches through) plus the built-in probe
// plugin, and hands each its per-transaction endpoint map drawn from
// the transaction registry (see internal/protoplugins DESIGN.md entry
// for why Create's configJSON, not Invoke's signature, carries it).
func registerOutboundPlugins(loader *pluginloader.Loader, reg *txregistry.Registry, cfg *config.Config) {
	loader.RegisterBuiltin("probe", func() abi.ProtocolPlugin { return probe.New() })

	loader.RegisterBuiltin("rest", func() abi.ProtocolPlugin { return protorest.New() })
	loader.SetConfig("rest", mustJSON(protorest.Config{Endpoints: reg.EndpointsFor("rest")}))

	loader.RegisterBuiltin("tcp", func() abi.ProtocolPlugin { return prototcp.New() })
	loader.SetConfig("tcp", mustJSON(prototcp.Config{Endpoints: reg.EndpointsFor("tcp")}))

	loader.RegisterBuiltin("mq", func() abi.ProtocolPlugin { return protomq.New() })
	loader.SetConfig("mq", mustJSON(protomq.Config{URL: cfg.MQ.URL, Endpoints: reg.EndpointsFor("mq")}))
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func libraryDirs(path string) []string {
	if path == "" {
		return nil
	}
	return []string{path}
}

func breakerConfig(cfg *config.Config) breaker.Config {
	bc := breaker.DefaultConfig()
	if cfg.CircuitBreaker.FailureThreshold > 0 {
		bc.FailureThreshold = cfg.CircuitBreaker.FailureThreshold
	}
	if cfg.CircuitBreaker.RecoveryTimeoutS > 0 {
		bc.RecoveryTimeout = time.Duration(cfg.CircuitBreaker.RecoveryTimeoutS) * time.Second
	}
	if cfg.CircuitBreaker.HalfOpenMaxCalls > 0 {
		bc.HalfOpenMaxCalls = cfg.CircuitBreaker.HalfOpenMaxCalls
	}
	return bc
}

func isBindError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "listen"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
