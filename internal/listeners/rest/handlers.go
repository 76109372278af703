package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/router"
	"github.com/carles-abarca/NEO6/internal/validate"
)

func (l *Listener) bindInvoke(c *gin.Context) (router.Request, bool) {
	var body InvokeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		errors.AbortWithError(c, errors.ParamsInvalid("", "malformed request body: "+err.Error()))
		return router.Request{}, false
	}

	req := router.Request{
		TransactionID: body.TransactionID,
		Parameters:    validate.Params(body.Parameters),
	}
	if body.Options != nil {
		req.Options = router.Options{
			TimeoutMS:    body.Options.TimeoutMS,
			RetryCount:   body.Options.RetryCount,
			TraceEnabled: body.Options.TraceEnabled,
		}
	}
	return req, true
}

// handleInvoke answers POST /invoke synchronously (spec §4.6).
func (l *Listener) handleInvoke(c *gin.Context) {
	req, ok := l.bindInvoke(c)
	if !ok {
		return
	}

	start := time.Now()
	resp := l.router.Invoke(c.Request.Context(), req)
	l.collector.RecordInvocation(resp.Err == nil, time.Since(start).Milliseconds())

	if resp.Err != nil {
		errors.AbortWithError(c, resp.Err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleInvokeAsync answers POST /invoke-async: enqueues the
// invocation and immediately returns a server-generated id. A full
// queue responds 503 with Retry-After (spec §4.6).
func (l *Listener) handleInvokeAsync(c *gin.Context) {
	req, ok := l.bindInvoke(c)
	if !ok {
		return
	}

	id := uuid.New().String()
	// Record the pending entry before a worker can pick the job up, so
	// the worker's Complete/Fail always finds it.
	if err := l.store.Put(context.Background(), id); err != nil {
		errors.AbortWithError(c, errors.Internal("failed to record async invocation"))
		return
	}

	select {
	case l.jobs <- asyncJob{id: id, req: req}:
	default:
		_ = l.store.Fail(context.Background(), id, "async invocation queue is full")
		c.Header("Retry-After", "1")
		errors.AbortWithError(c, errors.BackendUnavailable("async invocation queue is full"))
		return
	}
	c.JSON(http.StatusAccepted, InvokeAsyncAccepted{ID: id, Status: "pending"})
}

// handleStatus answers GET /status/:id.
func (l *Listener) handleStatus(c *gin.Context) {
	id := c.Param("id")
	result, ok, err := l.store.Get(c.Request.Context(), id)
	if err != nil {
		errors.AbortWithError(c, errors.Internal(err.Error()))
		return
	}
	if !ok {
		errors.AbortWithError(c, errors.New(errors.CodeTransactionUnknown, "no async invocation with id "+id))
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleHealth answers GET /health.
func (l *Listener) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Protocols: l.loader.Active().Names()})
}

// handleMetrics answers GET /metrics in Prometheus text exposition format.
func (l *Listener) handleMetrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(l.collector.WriteProm()))
}

// handleAdminReload answers POST /admin/reload: reloads the
// transaction registry (if a source path is configured) and triggers
// the plugin Loader's atomic registry swap.
func (l *Listener) handleAdminReload(c *gin.Context) {
	if l.txPath != "" {
		if err := l.registry.Load(l.txPath); err != nil {
			errors.AbortWithError(c, errors.Wrap(errors.CodeConfigInvalid, "reload transactions.yaml", err))
			return
		}
	}
	if _, err := l.loader.Reload(c.Request.Context()); err != nil {
		errors.AbortWithError(c, errors.Wrap(errors.CodeInternal, "reload protocols", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
