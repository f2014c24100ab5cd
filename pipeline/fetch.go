package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yakimka/feed-watchdog/bus"
	"github.com/yakimka/feed-watchdog/dedup"
	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/event"
	"github.com/yakimka/feed-watchdog/feed"
	"github.com/yakimka/feed-watchdog/handler"
	"github.com/yakimka/feed-watchdog/lock"
	"github.com/yakimka/feed-watchdog/metric"
)

// FetchDeps are the collaborators of the fetch stage
type FetchDeps struct {
	Subscriber *bus.Subscriber
	Publisher  *bus.Publisher
	Store      dedup.Store
	Registry   *handler.Registry
	Locker     *lock.Locker
}

// FetchWorker is the fetch stage: stream event in, message batches out
type FetchWorker struct {
	deps          FetchDeps
	messagesTopic string
	logger        *slog.Logger
	processed     *prometheus.CounterVec
}

// FetchOption configures optional fetch worker behavior
type FetchOption func(*FetchWorker)

// WithFetchLogger sets the structured logger
func WithFetchLogger(logger *slog.Logger) FetchOption {
	return func(w *FetchWorker) {
		w.logger = logger.With("component", "fetch_worker")
	}
}

// WithFetchMetrics registers processing counters with the metrics registry
func WithFetchMetrics(registry *metric.Registry) FetchOption {
	return func(w *FetchWorker) {
		if registry == nil {
			return
		}
		w.processed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "pipeline",
			Name:      "stream_events_total",
			Help:      "Stream events processed by result",
		}, []string{"result"})
		if err := registry.Register("pipeline", "stream_events", w.processed); err != nil {
			w.logger.Warn("failed to register fetch metrics", "error", err)
			w.processed = nil
		}
	}
}

// NewFetchWorker creates the fetch stage publishing batches to
// messagesTopic
func NewFetchWorker(deps FetchDeps, messagesTopic string, opts ...FetchOption) *FetchWorker {
	w := &FetchWorker{
		deps:          deps,
		messagesTopic: messagesTopic,
		logger:        slog.Default().With("component", "fetch_worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes stream events until ctx is cancelled
func (w *FetchWorker) Run(ctx context.Context) {
	w.logger.Info("start processing stream events")
	for delivery := range w.deps.Subscriber.Deliveries(ctx) {
		w.processDelivery(ctx, delivery)
	}
	w.logger.Info("stream event processing stopped")
}

// processDelivery handles one delivery end to end, including the commit
// decision
func (w *FetchWorker) processDelivery(ctx context.Context, delivery bus.Delivery) {
	evt, err := event.DecodeProcessStreamEvent(delivery.Fields)
	if err == nil {
		err = w.processStream(ctx, evt)
	}
	w.count(err)
	finishDelivery(ctx, w.deps.Subscriber, w.logger, delivery, err)
}

// processStream runs one scheduled tick of one stream.
//
// A fetch that yields nothing (upstream down, lock busy, empty body) is
// not an error: the stream is re-fetched on its next tick, so the event
// is dropped with a log line. Handler resolution failures are stream
// misconfigurations and also drop the event. Only Redis-side failures
// return transient and trigger redelivery.
func (w *FetchWorker) processStream(ctx context.Context, evt event.ProcessStreamEvent) error {
	logger := w.logger.With("stream", evt.Slug)

	text, err := w.fetchText(ctx, evt)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		logger.Warn("no content fetched, skipping tick")
		return nil
	}

	posts, err := w.parsePosts(ctx, evt, text)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		logger.Warn("no posts parsed, skipping tick")
		return nil
	}

	feed.Normalize(posts, evt.Source.Tags)

	// captured before modifiers run: a post a modifier removes must still
	// count as processed, or it comes back as "new" on every tick
	parsedIDs := postIDs(posts)

	posts, err = w.applyModifiers(ctx, evt, posts)
	if err != nil {
		return err
	}

	seenCount, err := w.deps.Store.SeenCount(ctx, evt.Slug)
	if err != nil {
		return err
	}
	if seenCount == 0 {
		// first run: adopt the whole backlog silently so a fresh stream
		// does not flood its receiver with years of history
		logger.Info("first run, adopting existing posts", "posts", len(parsedIDs))
		return w.deps.Store.MarkSeen(ctx, evt.Slug, parsedIDs...)
	}

	messages, err := w.collectNewMessages(ctx, evt, posts)
	if err != nil {
		return err
	}
	if len(messages) > 0 {
		logger.Info("new posts found", "count", len(messages))
		if err := w.publishMessages(ctx, evt, messages); err != nil {
			return err
		}
	}

	return w.markLeftoverSeen(ctx, evt.Slug, parsedIDs, messages)
}

// fetchText resolves the fetcher and runs it, serialized per lock key for
// fetchers that hit a remote host. A busy lock or a dead upstream yields
// empty text, not an error.
func (w *FetchWorker) fetchText(ctx context.Context, evt event.ProcessStreamEvent) (string, error) {
	fetcher, err := w.deps.Registry.GetFetcher(evt.Source.FetcherType, evt.Source.FetcherOptions)
	if err != nil {
		return "", err
	}

	var text string
	fetch := func(ctx context.Context) error {
		var fetchErr error
		text, fetchErr = fetcher.Fetch(ctx)
		return fetchErr
	}

	if keyed, ok := fetcher.(handler.DomainKeyed); ok {
		err = w.deps.Locker.WithLock(ctx, keyed.LockKey(), fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		w.logger.Warn("fetch failed, skipping tick", "stream", evt.Slug, "error", err)
		return "", nil
	}
	return text, nil
}

func (w *FetchWorker) parsePosts(ctx context.Context, evt event.ProcessStreamEvent, text string) ([]feed.Post, error) {
	parser, err := w.deps.Registry.GetParser(evt.Source.ParserType, evt.Source.ParserOptions)
	if err != nil {
		return nil, err
	}
	return parser.Parse(ctx, text)
}

// applyModifiers runs the stream's modifiers in declared order
func (w *FetchWorker) applyModifiers(ctx context.Context, evt event.ProcessStreamEvent, posts []feed.Post) ([]feed.Post, error) {
	for _, modifierData := range evt.Modifiers {
		modifier, err := w.deps.Registry.GetModifier(modifierData.Type, modifierData.Options)
		if err != nil {
			return nil, err
		}
		posts, err = modifier.Modify(ctx, posts)
		if err != nil {
			return nil, err
		}
	}
	return posts, nil
}

// collectNewMessages walks posts oldest to newest and renders every post
// not yet in the seen set. Parsers emit newest first, so the walk is
// reversed and receivers get messages in chronological order.
func (w *FetchWorker) collectNewMessages(ctx context.Context, evt event.ProcessStreamEvent, posts []feed.Post) ([]event.Message, error) {
	var messages []event.Message
	for i := len(posts) - 1; i >= 0; i-- {
		post := posts[i]
		seen, err := w.deps.Store.IsSeen(ctx, post.ID(), evt.Slug)
		if err != nil {
			return nil, err
		}
		if seen {
			continue
		}
		messages = append(messages, event.Message{
			PostID: post.ID(),
			Text:   feed.RenderTemplate(evt.MessageTemplate, escapeKwargs(post.TemplateKwargs())),
		})
	}
	return messages, nil
}

// publishMessages emits the batches and marks their posts seen. Marking
// follows each publish so a redelivered event never republishes a post.
func (w *FetchWorker) publishMessages(ctx context.Context, evt event.ProcessStreamEvent, messages []event.Message) error {
	var batches []event.MessageBatch
	if evt.Squash {
		batches = []event.MessageBatch{{StreamSlug: evt.Slug, Messages: messages}}
	} else {
		for _, message := range messages {
			batches = append(batches, event.MessageBatch{StreamSlug: evt.Slug, Messages: []event.Message{message}})
		}
	}

	for _, batch := range batches {
		if err := w.deps.Publisher.Publish(ctx, w.messagesTopic, batch); err != nil {
			return err
		}
		ids := make([]string, len(batch.Messages))
		for i, message := range batch.Messages {
			ids[i] = message.PostID
		}
		if err := w.deps.Store.MarkSeen(ctx, evt.Slug, ids...); err != nil {
			return err
		}
	}
	return nil
}

// markLeftoverSeen records every parsed post that did not produce a
// message: posts already in the seen set (no-op) and posts removed by a
// modifier, which would otherwise be reconsidered forever
func (w *FetchWorker) markLeftoverSeen(ctx context.Context, slug string, parsedIDs []string, messages []event.Message) error {
	emitted := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		emitted[message.PostID] = struct{}{}
	}

	left := make([]string, 0, len(parsedIDs))
	for _, id := range parsedIDs {
		if _, ok := emitted[id]; !ok {
			left = append(left, id)
		}
	}
	return w.deps.Store.MarkSeen(ctx, slug, left...)
}

func (w *FetchWorker) count(err error) {
	if w.processed == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.IsTransient(err):
		result = "redelivered"
	default:
		result = "dropped"
	}
	w.processed.WithLabelValues(result).Inc()
}

func postIDs(posts []feed.Post) []string {
	ids := make([]string, len(posts))
	for i, post := range posts {
		ids[i] = post.ID()
	}
	return ids
}
