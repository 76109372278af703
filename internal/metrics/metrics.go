// Package metrics implements the proxy's metrics collector: lock-free
// atomic counters updated on the hot path, a periodic snapshot driven
// by robfig/cron/v3 matching [metrics].collect_interval_s, and a
// hand-rolled Prometheus text exposition (spec §9 supplemented
// feature 3 — no metrics section appears in spec.md's Non-goals, so
// this is an ambient-stack addition, not scope creep).
package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/carles-abarca/NEO6/internal/logger"
)

// Collector tracks invocation counters and reads per-endpoint breaker
// state through breakerSnapshot whenever it logs or exposes metrics.
type Collector struct {
	invokeTotal    atomic.Int64
	invokeSuccess  atomic.Int64
	invokeFailure  atomic.Int64
	invokeDuration atomic.Int64 // cumulative milliseconds, for a crude average

	breakerSnapshot func() map[string]string

	cron *cron.Cron
}

// New builds a Collector. breakerSnapshot is called on every
// collect_interval_s snapshot log line and on every WriteProm, so the
// exposed breaker-state gauge is read fresh at each scrape; pass nil
// to omit it (e.g. in tests).
func New(breakerSnapshot func() map[string]string) *Collector {
	return &Collector{breakerSnapshot: breakerSnapshot}
}

// RecordInvocation updates the hot-path counters for one Router.Invoke
// call.
func (c *Collector) RecordInvocation(success bool, durationMS int64) {
	c.invokeTotal.Add(1)
	if success {
		c.invokeSuccess.Add(1)
	} else {
		c.invokeFailure.Add(1)
	}
	c.invokeDuration.Add(durationMS)
}

// Start schedules the periodic snapshot log line at intervalSeconds.
// Returns a stop function.
func (c *Collector) Start(intervalSeconds int) (stop func(), err error) {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	c.cron = cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %ds", intervalSeconds)
	_, err = c.cron.AddFunc(spec, c.logSnapshot)
	if err != nil {
		return nil, err
	}
	c.cron.Start()
	return func() { <-c.cron.Stop().Done() }, nil
}

func (c *Collector) logSnapshot() {
	log := logger.Metrics()
	total := c.invokeTotal.Load()
	avg := int64(0)
	if total > 0 {
		avg = c.invokeDuration.Load() / total
	}
	event := log.Info().
		Int64("invoke_total", total).
		Int64("invoke_success", c.invokeSuccess.Load()).
		Int64("invoke_failure", c.invokeFailure.Load()).
		Int64("avg_duration_ms", avg)
	if c.breakerSnapshot != nil {
		event = event.Interface("breakers", c.breakerSnapshot())
	}
	event.Msg("metrics snapshot")
}

// WriteProm renders the current counters in Prometheus text exposition
// format for GET /metrics.
func (c *Collector) WriteProm() string {
	var b strings.Builder
	total := c.invokeTotal.Load()
	avg := float64(0)
	if total > 0 {
		avg = float64(c.invokeDuration.Load()) / float64(total)
	}

	writeMetric(&b, "neo6_invoke_total", "counter", float64(total))
	writeMetric(&b, "neo6_invoke_success_total", "counter", float64(c.invokeSuccess.Load()))
	writeMetric(&b, "neo6_invoke_failure_total", "counter", float64(c.invokeFailure.Load()))
	writeMetric(&b, "neo6_invoke_duration_ms_avg", "gauge", avg)

	if c.breakerSnapshot != nil {
		b.WriteString("# HELP neo6_breaker_state 0=closed 1=open 2=half-open\n")
		b.WriteString("# TYPE neo6_breaker_state gauge\n")
		for endpoint, state := range c.breakerSnapshot() {
			fmt.Fprintf(&b, "neo6_breaker_state{endpoint=%q} %d\n", endpoint, breakerStateValue(state))
		}
	}

	return b.String()
}

func writeMetric(b *strings.Builder, name, typ string, value float64) {
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	fmt.Fprintf(b, "%s %v\n", name, value)
}

func breakerStateValue(state string) int {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return 0
	}
}
