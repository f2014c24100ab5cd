package pipeline

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yakimka/feed-watchdog/bus"
	"github.com/yakimka/feed-watchdog/dedup"
	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/event"
	"github.com/yakimka/feed-watchdog/handler"
	"github.com/yakimka/feed-watchdog/metric"
	"github.com/yakimka/feed-watchdog/streamapi"
)

// StreamLookup resolves a stream definition at delivery time
type StreamLookup interface {
	GetStreamBySlug(ctx context.Context, slug string) (streamapi.StreamDefinition, error)
}

// SendDeps are the collaborators of the send stage
type SendDeps struct {
	Subscriber *bus.Subscriber
	Store      dedup.Store
	Registry   *handler.Registry
	Streams    StreamLookup
}

// SendWorker is the send stage: message batch in, receiver call out.
//
// The receiver is resolved per delivery against the current stream
// definition, not the one the fetch stage saw: receiver configuration may
// have changed while the batch sat on the topic.
type SendWorker struct {
	deps   SendDeps
	logger *slog.Logger
	sent   *prometheus.CounterVec
}

// SendOption configures optional send worker behavior
type SendOption func(*SendWorker)

// WithSendLogger sets the structured logger
func WithSendLogger(logger *slog.Logger) SendOption {
	return func(w *SendWorker) {
		w.logger = logger.With("component", "send_worker")
	}
}

// WithSendMetrics registers delivery counters with the metrics registry
func WithSendMetrics(registry *metric.Registry) SendOption {
	return func(w *SendWorker) {
		if registry == nil {
			return
		}
		w.sent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "pipeline",
			Name:      "messages_sent_total",
			Help:      "Messages delivered per receiver type",
		}, []string{"receiver"})
		if err := registry.Register("pipeline", "messages_sent", w.sent); err != nil {
			w.logger.Warn("failed to register send metrics", "error", err)
			w.sent = nil
		}
	}
}

// NewSendWorker creates the send stage
func NewSendWorker(deps SendDeps, opts ...SendOption) *SendWorker {
	w := &SendWorker{
		deps:   deps,
		logger: slog.Default().With("component", "send_worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes message batches until ctx is cancelled
func (w *SendWorker) Run(ctx context.Context) {
	w.logger.Info("start processing message batches")
	for delivery := range w.deps.Subscriber.Deliveries(ctx) {
		w.processDelivery(ctx, delivery)
	}
	w.logger.Info("message batch processing stopped")
}

// processDelivery handles one delivery end to end, including the commit
// decision
func (w *SendWorker) processDelivery(ctx context.Context, delivery bus.Delivery) {
	batch, err := event.DecodeMessageBatch(delivery.Fields)
	if err == nil {
		err = w.processBatch(ctx, batch)
	}
	finishDelivery(ctx, w.deps.Subscriber, w.logger, delivery, err)
}

// processBatch delivers one batch. Messages already recorded in the sent
// set are dropped before the receiver call, and delivered messages are
// recorded right after it, so a redelivered batch cannot reach the
// receiver twice.
func (w *SendWorker) processBatch(ctx context.Context, batch event.MessageBatch) error {
	logger := w.logger.With("stream", batch.StreamSlug)

	stream, err := w.deps.Streams.GetStreamBySlug(ctx, batch.StreamSlug)
	if err != nil {
		if errors.Is(err, errors.ErrStreamNotFound) {
			logger.Warn("stream definition not found, dropping batch")
			return nil
		}
		return err
	}

	receiver, err := w.deps.Registry.GetReceiver(stream.Receiver.Type, stream.MergedReceiverOptions())
	if err != nil {
		return err
	}

	pending, err := w.unsentMessages(ctx, batch, stream.Receiver.Type)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		logger.Info("all messages already sent, nothing to deliver")
		return nil
	}

	if err := receiver.Send(ctx, pending); err != nil {
		return err
	}

	for _, message := range pending {
		if err := w.deps.Store.MarkSent(ctx, message.PostID, batch.StreamSlug, stream.Receiver.Type); err != nil {
			return err
		}
	}

	if w.sent != nil {
		w.sent.WithLabelValues(stream.Receiver.Type).Add(float64(len(pending)))
	}
	logger.Info("message batch sent", "receiver", stream.Receiver.Type, "messages", len(pending))
	return nil
}

// unsentMessages filters out messages whose post already reached this
// receiver type
func (w *SendWorker) unsentMessages(ctx context.Context, batch event.MessageBatch, receiverType string) ([]event.Message, error) {
	pending := make([]event.Message, 0, len(batch.Messages))
	for _, message := range batch.Messages {
		sent, err := w.deps.Store.WasSent(ctx, message.PostID, batch.StreamSlug, receiverType)
		if err != nil {
			return nil, err
		}
		if !sent {
			pending = append(pending, message)
		}
	}
	return pending, nil
}
