// Package mq implements the MQ Frontend Listener (spec §4.6): a
// message-queue transport standing in for the IBM MQ wire binding the
// spec delegates to a protocol plugin. Grounded on the teacher's own
// NATS subscriber (internal/events/subscriber.go) for connection
// bring-up and subscribe/reply shape, generalized from StreamSpace's
// fixed event subjects to one configurable request subject per spec
// §4.6's "subscribes to the configured request queue".
package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carles-abarca/NEO6/internal/logger"
	"github.com/carles-abarca/NEO6/internal/metrics"
	"github.com/carles-abarca/NEO6/internal/router"
)

// Config configures the NATS connection and subject the listener
// reads requests from.
type Config struct {
	URL            string
	RequestSubject string
	User           string
	Password       string
}

// Deps bundles the subsystems the MQ listener dispatches through.
type Deps struct {
	Router    *router.Router
	Collector *metrics.Collector
}

// Listener is the MQ frontend: one NATS subscription answering every
// Envelope with a ReplyEnvelope published on its reply_to subject.
type Listener struct {
	cfg       Config
	router    *router.Router
	collector *metrics.Collector

	conn *nats.Conn
	sub  *nats.Subscription
}

func New(cfg Config, d Deps) *Listener {
	return &Listener{cfg: cfg, router: d.Router, collector: d.Collector}
}

// ListenAndServe connects to NATS, subscribes to the configured
// request subject, and blocks until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	log := logger.Listener("mq")

	opts := []nats.Option{
		nats.Name("neo6-mq-listener"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("mq listener disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("mq listener reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Warn().Err(err).Msg("mq listener error")
		}),
	}
	if l.cfg.User != "" {
		opts = append(opts, nats.UserInfo(l.cfg.User, l.cfg.Password))
	}

	url := l.cfg.URL
	if url == "" {
		url = addr
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return err
	}
	l.conn = conn

	sub, err := conn.Subscribe(l.cfg.RequestSubject, l.handleMessage(ctx))
	if err != nil {
		conn.Close()
		return err
	}
	l.sub = sub

	log.Info().Str("url", conn.ConnectedUrl()).Str("subject", l.cfg.RequestSubject).Msg("mq listener subscribed")

	<-ctx.Done()
	_ = sub.Unsubscribe()
	conn.Drain()
	conn.Close()
	return nil
}

// buildReply translates a Router response into the wire ReplyEnvelope,
// preserving correlation_id regardless of outcome.
func buildReply(correlationID string, resp router.Response) ReplyEnvelope {
	reply := ReplyEnvelope{CorrelationID: correlationID}
	if resp.Err != nil {
		reply.Status = "error"
		reply.Error = resp.Err.Code
		reply.Message = resp.Err.Message
		return reply
	}
	reply.Status = resp.Status
	reply.Data = resp.Data
	return reply
}

func (l *Listener) handleMessage(ctx context.Context) nats.MsgHandler {
	log := logger.Listener("mq")

	return func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn().Err(err).Msg("malformed mq envelope")
			return
		}

		invokeCtx := ctx
		var cancel context.CancelFunc
		if env.ExpiryMS > 0 {
			invokeCtx, cancel = context.WithTimeout(ctx, time.Duration(env.ExpiryMS)*time.Millisecond)
			defer cancel()
		}

		start := time.Now()
		resp := l.router.Invoke(invokeCtx, router.Request{
			TransactionID: env.TransactionID,
			Parameters:    env.Parameters,
		})
		l.collector.RecordInvocation(resp.Err == nil, time.Since(start).Milliseconds())

		reply := buildReply(env.CorrelationID, resp)

		if env.ReplyTo == "" {
			return
		}
		body, err := json.Marshal(reply)
		if err != nil {
			log.Warn().Err(err).Msg("failed to marshal mq reply")
			return
		}
		if err := l.conn.Publish(env.ReplyTo, body); err != nil {
			log.Warn().Err(err).Str("reply_to", env.ReplyTo).Msg("failed to publish mq reply")
		}
	}
}
