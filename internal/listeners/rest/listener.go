// Package rest implements the REST Frontend Listener (spec §4.6):
// POST /invoke, POST /invoke-async, GET /status/:id, GET /health,
// GET /metrics, POST /admin/reload, and an additive GET /ws/status/:id
// push channel. Grounded on the teacher's own Gin bring-up in
// cmd/main.go and its handlers.<Resource>Handler{RegisterRoutes}
// convention (internal/handlers/agents.go).
package rest

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/carles-abarca/NEO6/internal/asyncstore"
	"github.com/carles-abarca/NEO6/internal/conntrack"
	applog "github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/logger"
	"github.com/carles-abarca/NEO6/internal/metrics"
	"github.com/carles-abarca/NEO6/internal/pluginloader"
	"github.com/carles-abarca/NEO6/internal/router"
	"github.com/carles-abarca/NEO6/internal/txregistry"
)

// DefaultAsyncQueueSize matches spec §4.6's default invoke-async queue bound.
const DefaultAsyncQueueSize = 1024

type asyncJob struct {
	id  string
	req router.Request
}

// Deps bundles the subsystems the REST listener reads or dispatches
// through.
type Deps struct {
	Router    *router.Router
	Loader    *pluginloader.Loader
	Registry  *txregistry.Registry
	TxPath    string
	Store     asyncstore.Store
	Conns     *conntrack.Tracker
	Collector *metrics.Collector

	// RequestsPerSecond/Burst configure the listener's back-pressure
	// token bucket (golang.org/x/time/rate), matching the teacher's own
	// middleware/ratelimit.go shape generalized from per-IP to
	// per-listener (spec §4.6: "Back-pressure is per-listener").
	RequestsPerSecond float64
	Burst             int

	// AsyncQueueSize overrides DefaultAsyncQueueSize when non-zero.
	AsyncQueueSize int

	// JWTSecret, when non-empty, requires a valid "Bearer" JWT on every
	// /invoke* route (spec §6 [security] jwt_secret).
	JWTSecret string
}

// Listener is the REST frontend.
type Listener struct {
	router    *router.Router
	loader    *pluginloader.Loader
	registry  *txregistry.Registry
	txPath    string
	store     asyncstore.Store
	conns     *conntrack.Tracker
	collector *metrics.Collector
	limiter   *rate.Limiter
	upgrader  websocket.Upgrader
	jwtSecret string

	jobs   chan asyncJob
	engine *gin.Engine

	wg sync.WaitGroup
}

// New builds a Listener and wires its routes onto a fresh Gin engine.
func New(d Deps) *Listener {
	queueSize := d.AsyncQueueSize
	if queueSize <= 0 {
		queueSize = DefaultAsyncQueueSize
	}
	rps := d.RequestsPerSecond
	if rps <= 0 {
		rps = 200
	}
	burst := d.Burst
	if burst <= 0 {
		burst = 50
	}

	l := &Listener{
		router:    d.Router,
		loader:    d.Loader,
		registry:  d.Registry,
		txPath:    d.TxPath,
		store:     d.Store,
		conns:     d.Conns,
		collector: d.Collector,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		upgrader:  websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		jwtSecret: d.JWTSecret,
		jobs:      make(chan asyncJob, queueSize),
	}

	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(applog.Recovery(), applog.ErrorHandler(), l.rateLimit())
	l.engine = engine
	l.registerRoutes(engine)

	return l
}

func (l *Listener) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"status":  "error",
				"error":   "BACKEND_UNAVAILABLE",
				"message": "listener is over capacity",
			})
			return
		}
		c.Next()
	}
}

func (l *Listener) registerRoutes(r *gin.Engine) {
	invoke := r.Group("/")
	if l.jwtSecret != "" {
		invoke.Use(bearerAuth(l.jwtSecret))
	}
	invoke.POST("/invoke", l.handleInvoke)
	invoke.POST("/invoke-async", l.handleInvokeAsync)
	invoke.GET("/status/:id", l.handleStatus)
	invoke.GET("/ws/status/:id", l.handleWS)

	r.GET("/health", l.handleHealth)
	r.GET("/metrics", l.handleMetrics)
	r.POST("/admin/reload", l.handleAdminReload)
}

// Serve runs the listener until ctx is cancelled, draining the async
// worker pool on shutdown. The whole HTTP server is registered as one
// conntrack entry under its listen address (killing it closes the
// server); individual client connections are not tracked.
func (l *Listener) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: l.engine}

	connID := uuid.New().String()
	l.conns.Add(conntrack.Connection{
		ID:          connID,
		Protocol:    "rest",
		RemoteAddr:  addr,
		ConnectedAt: time.Now(),
	}, func() { _ = srv.Close() })
	defer l.conns.Remove(connID)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		close(l.jobs)
		l.wg.Wait()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (l *Listener) worker() {
	defer l.wg.Done()
	log := logger.Listener("rest")

	for job := range l.jobs {
		start := time.Now()
		resp := l.router.Invoke(context.Background(), job.req)
		elapsed := time.Since(start).Milliseconds()

		if resp.Err != nil {
			if err := l.store.Fail(context.Background(), job.id, resp.Err.Error()); err != nil {
				log.Warn().Err(err).Str("id", job.id).Msg("failed to record async failure")
			}
			l.collector.RecordInvocation(false, elapsed)
			continue
		}
		if err := l.store.Complete(context.Background(), job.id, resp.Data); err != nil {
			log.Warn().Err(err).Str("id", job.id).Msg("failed to record async result")
		}
		l.collector.RecordInvocation(true, elapsed)
	}
}
