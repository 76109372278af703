// Package router implements the Router (spec §4.5): resolve
// descriptor + plugin, validate parameters, dispatch through the
// circuit breaker with retry/backoff, and normalize the response.
package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/carles-abarca/NEO6/internal/abi"
	"github.com/carles-abarca/NEO6/internal/breaker"
	"github.com/carles-abarca/NEO6/internal/errors"
	"github.com/carles-abarca/NEO6/internal/logger"
	"github.com/carles-abarca/NEO6/internal/pluginloader"
	"github.com/carles-abarca/NEO6/internal/txregistry"
	"github.com/carles-abarca/NEO6/internal/validate"
)

// DefaultTimeout and MaxTimeout bound every invocation's deadline
// (spec §4.5 step 5) unless Router is constructed with overrides.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 5 * time.Minute
)

// Options mirrors an invocation's optional knobs (spec §3).
type Options struct {
	TimeoutMS    int
	RetryCount   int
	TraceEnabled bool
}

// Request is the Invocation Request of spec §3.
type Request struct {
	TransactionID string
	Parameters    validate.Params
	Options       Options
	TraceID       string // inherited from the caller's header, if present
}

// Metadata accompanies a successful Response (spec §3).
type Metadata struct {
	Protocol        string `json:"protocol"`
	Endpoint        string `json:"endpoint"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// Response is the Invocation Response of spec §3. Err is set (and
// Data left nil) on failure.
type Response struct {
	Status          string                 `json:"status"`
	Data            map[string]interface{} `json:"data,omitempty"`
	ExecutionTimeMS int64                  `json:"execution_time_ms"`
	TraceID         string                 `json:"trace_id"`
	Metadata        *Metadata              `json:"metadata,omitempty"`
	Err             *errors.ProxyError     `json:"-"`
}

// Router ties the Transaction Registry, the Protocol Loader, and the
// per-endpoint circuit breaker manager into the single public
// Invoke operation.
type Router struct {
	registry       *txregistry.Registry
	loader         *pluginloader.Loader
	breakers       *breaker.Manager
	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

func New(registry *txregistry.Registry, loader *pluginloader.Loader, breakers *breaker.Manager) *Router {
	return &Router{
		registry:       registry,
		loader:         loader,
		breakers:       breakers,
		defaultTimeout: DefaultTimeout,
		maxTimeout:     MaxTimeout,
	}
}

// Invoke runs the full §4.5 algorithm for req.
func (r *Router) Invoke(ctx context.Context, req Request) Response {
	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.New().String()
	}

	desc, err := r.registry.Get(req.TransactionID)
	if err != nil {
		return errResponse(err, traceID)
	}

	reg := r.loader.Active() // pin the world this call observes (property P6)
	if !contains(reg.Names(), desc.Protocol) {
		return errResponse(errors.ProtocolUnavailable(desc.Protocol), traceID)
	}

	validated, err := validate.Validate(desc, req.Parameters)
	if err != nil {
		return errResponse(err, traceID)
	}

	deadline := r.deadlineFor(req.Options)
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	paramsJSON, merr := json.Marshal(validated)
	if merr != nil {
		return errResponse(errors.Internal(merr.Error()), traceID)
	}

	start := time.Now()
	respJSON, status, err := r.dispatch(callCtx, reg, desc, req.TransactionID, paramsJSON, req.Options.RetryCount)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return errResponse(err, traceID)
	}
	if status != abi.OK {
		return errResponse(statusToError(status, traceID), traceID)
	}

	var data map[string]interface{}
	if len(respJSON) > 0 {
		if uerr := json.Unmarshal(respJSON, &data); uerr != nil {
			return errResponse(errors.Internal("plugin returned malformed JSON"), traceID)
		}
	}
	if verr := validate.ValidateResponse(desc, data); verr != nil {
		return errResponse(verr, traceID)
	}

	return Response{
		Status:          "success",
		Data:            data,
		ExecutionTimeMS: elapsed,
		TraceID:         traceID,
		Metadata: &Metadata{
			Protocol:        desc.Protocol,
			Endpoint:        desc.Endpoint,
			ExecutionTimeMS: elapsed,
		},
	}
}

// dispatch invokes the plugin through the circuit breaker, retrying
// per spec §4.5 (BACKEND_UNAVAILABLE/TIMEOUT only, exponential
// backoff base 100ms ×2, jitter ±25%, capped at 2s).
func (r *Router) dispatch(ctx context.Context, reg *pluginloader.Registry, desc *txregistry.Descriptor, txID string, paramsJSON []byte, retryCount int) (json.RawMessage, abi.StatusCode, error) {
	b := r.breakers.For(desc.Protocol, desc.Endpoint)

	attempt := func() (json.RawMessage, abi.StatusCode, error) {
		if !b.Allow() {
			return nil, abi.Internal, errors.CircuitOpen(desc.Protocol, desc.Endpoint)
		}
		resp, status, err := reg.Invoke(ctx, desc.Protocol, txID, paramsJSON)
		if err != nil {
			b.Record(false)
			return nil, abi.Internal, err
		}
		b.Record(status == abi.OK)
		return resp, status, nil
	}

	resp, status, err := attempt()
	if retryCount <= 0 {
		return resp, status, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.Multiplier = 2
	bo.MaxInterval = 2 * time.Second
	bo.RandomizationFactor = 0.25

	for i := 0; i < retryCount; i++ {
		if err == nil && status == abi.OK {
			return resp, status, nil
		}
		if !retryable(status, err) {
			return resp, status, err
		}

		wait := bo.NextBackOff()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, abi.Timeout, errors.Timeout("deadline exceeded during retry backoff")
		case <-timer.C:
		}

		logger.Router().Debug().Str("transaction_id", txID).Int("attempt", i+1).Dur("backoff", wait).Msg("retrying invocation")
		resp, status, err = attempt()
	}

	return resp, status, err
}

func retryable(status abi.StatusCode, err error) bool {
	if pe, ok := err.(*errors.ProxyError); ok {
		return pe.Code == errors.CodeBackendUnavailable || pe.Code == errors.CodeTimeout
	}
	return status == abi.BackendUnavailable || status == abi.Timeout
}

func (r *Router) deadlineFor(opts Options) time.Duration {
	if opts.TimeoutMS <= 0 {
		return r.defaultTimeout
	}
	d := time.Duration(opts.TimeoutMS) * time.Millisecond
	if d > r.maxTimeout {
		return r.maxTimeout
	}
	return d
}

func statusToError(status abi.StatusCode, traceID string) *errors.ProxyError {
	switch status {
	case abi.BackendUnavailable:
		return errors.BackendUnavailable("downstream reported unavailable")
	case abi.Timeout:
		return errors.Timeout("plugin invocation exceeded its deadline")
	case abi.InvalidArgs:
		return errors.New(errors.CodeParamsInvalid, "plugin rejected arguments")
	default:
		return errors.ProtocolErr(traceID, nil)
	}
}

func errResponse(err error, traceID string) Response {
	pe, ok := err.(*errors.ProxyError)
	if !ok {
		pe = errors.Internal(err.Error())
	}
	return Response{Status: "error", TraceID: traceID, Err: pe}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
