// Package bus implements the durable message bus on Redis Streams.
//
// Topics are stream keys. Publishing appends one entry per event with every
// top-level event field serialized to its own JSON document. Consumption
// uses consumer groups: subscribers in one group share the topic's backlog,
// acknowledge processed entries explicitly, and reclaim entries from
// crashed members of the group. Delivery is at-least-once; consumers must
// be idempotent with respect to redelivery.
package bus

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/metric"
	"github.com/yakimka/feed-watchdog/redisclient"
)

// Event is any payload that can encode itself into bus fields
type Event interface {
	Fields() (map[string]any, error)
}

// Publisher appends events to topics. It never blocks on consumers: an
// append either succeeds or returns a transport error, and the caller
// decides whether to retry or fail the scheduling tick.
type Publisher struct {
	client    *redisclient.Client
	logger    *slog.Logger
	published *prometheus.CounterVec
}

// PublisherOption configures optional publisher behavior
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the structured logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithPublisherMetrics registers publish counters with the metrics registry
func WithPublisherMetrics(registry *metric.Registry) PublisherOption {
	return func(p *Publisher) {
		if registry == nil {
			return
		}
		p.published = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Events published per topic",
		}, []string{"topic"})
		if err := registry.Register("bus", "published", p.published); err != nil {
			p.logger.Warn("failed to register publisher metrics", "component", "bus", "error", err)
			p.published = nil
		}
	}
}

// NewPublisher creates a publisher on the given Redis connection
func NewPublisher(client *redisclient.Client, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish serializes the event and appends it to the topic as one durable
// entry
func (p *Publisher) Publish(ctx context.Context, topic string, evt Event) error {
	fields, err := evt.Fields()
	if err != nil {
		return errors.Wrap(err, "Publisher", "Publish", "event encoding")
	}

	err = p.client.Redis().XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: fields,
	}).Err()
	if err != nil {
		return errors.WrapTransient(err, "Publisher", "Publish", "stream append")
	}

	if p.published != nil {
		p.published.WithLabelValues(topic).Inc()
	}
	p.logger.Debug("published event", "component", "bus", "topic", topic)
	return nil
}
