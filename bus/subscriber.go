package bus

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/redisclient"
)

// Subscriber defaults
const (
	DefaultMessagesPerRead = 1000
	DefaultBlockTime       = 100 * time.Millisecond
	DefaultMinIdleTime     = 60 * time.Second
	DefaultClaimEvery      = 100

	// pause after a transport error before the loop continues
	errorBackoff = 500 * time.Millisecond
)

// Delivery is one bus entry handed to a consumer. Fields hold one JSON
// document per event field.
type Delivery struct {
	ID     string
	Fields map[string]string
}

// Subscriber consumes one topic as a member of a consumer group. The
// subscription is an infinite, non-restartable sequence: create a new
// Subscriber per consumer loop.
//
// Every iteration reads only new entries; every claimEvery-th iteration it
// instead reclaims entries that were delivered to any consumer in the
// group but sat unacknowledged for at least minIdleTime. That recovers
// work from crashed or stalled consumers without a separate watchdog.
type Subscriber struct {
	client   *redisclient.Client
	logger   *slog.Logger
	topic    string
	group    string
	consumer string

	messagesPerRead int64
	blockTime       time.Duration
	minIdleTime     time.Duration
	claimEvery      int

	initialized bool
}

// SubscriberOption configures optional subscriber behavior
type SubscriberOption func(*Subscriber)

// WithSubscriberLogger sets the structured logger
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		s.logger = logger
	}
}

// WithMessagesPerRead overrides how many entries one read may return
func WithMessagesPerRead(n int64) SubscriberOption {
	return func(s *Subscriber) {
		s.messagesPerRead = n
	}
}

// WithBlockTime overrides the poll timeout of one read. Short timeouts
// keep the loop cooperatively cancellable.
func WithBlockTime(d time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.blockTime = d
	}
}

// WithMinIdleTime overrides how long an entry must sit unacknowledged
// before another consumer may reclaim it
func WithMinIdleTime(d time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.minIdleTime = d
	}
}

// WithClaimEvery overrides how often the loop checks the group backlog.
// Zero disables reclaiming.
func WithClaimEvery(n int) SubscriberOption {
	return func(s *Subscriber) {
		s.claimEvery = n
	}
}

// NewSubscriber creates a subscriber for topic as consumer consumerID in
// the given group
func NewSubscriber(client *redisclient.Client, topic, group, consumerID string, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		client:          client,
		logger:          slog.Default(),
		topic:           topic,
		group:           group,
		consumer:        consumerID,
		messagesPerRead: DefaultMessagesPerRead,
		blockTime:       DefaultBlockTime,
		minIdleTime:     DefaultMinIdleTime,
		claimEvery:      DefaultClaimEvery,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliveries starts the consume loop and returns its output channel. The
// channel closes when ctx is cancelled. Transport errors are logged and
// the loop continues; they never terminate the subscription.
func (s *Subscriber) Deliveries(ctx context.Context) <-chan Delivery {
	out := make(chan Delivery)

	go func() {
		defer close(out)

		iterations := s.claimEvery
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.initGroupAndStream(ctx); err != nil {
				s.logger.Error("consumer group init failed", "component", "bus",
					"topic", s.topic, "group", s.group, "error", err)
				if !sleepCtx(ctx, errorBackoff) {
					return
				}
				continue
			}

			if !s.emit(ctx, out, s.read(ctx)) {
				return
			}

			if s.claimEvery > 0 {
				iterations--
				if iterations <= 0 {
					if !s.emit(ctx, out, s.autoclaim(ctx)) {
						return
					}
					iterations = s.claimEvery
				}
			}
		}
	}()

	return out
}

// Commit acknowledges successful processing of a delivery. Only committed
// entries leave the group's pending list; everything else stays eligible
// for reclaim.
func (s *Subscriber) Commit(ctx context.Context, deliveryID string) error {
	err := s.client.Redis().XAck(ctx, s.topic, s.group, deliveryID).Err()
	if err != nil {
		return errors.WrapTransient(err, "Subscriber", "Commit", "ack")
	}
	return nil
}

// read fetches only new entries for this group/consumer pair
func (s *Subscriber) read(ctx context.Context) []redis.XMessage {
	streams, err := s.client.Redis().XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.topic, ">"},
		Count:    s.messagesPerRead,
		Block:    s.blockTime,
	}).Result()
	if err != nil {
		// redis.Nil just means the poll timed out with nothing new
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			s.logger.Error("stream read failed", "component", "bus",
				"topic", s.topic, "group", s.group, "error", err)
			sleepCtx(ctx, errorBackoff)
		}
		return nil
	}

	var messages []redis.XMessage
	for _, stream := range streams {
		messages = append(messages, stream.Messages...)
	}
	return messages
}

// autoclaim reclaims entries pending longer than minIdleTime from any
// consumer in the group
func (s *Subscriber) autoclaim(ctx context.Context) []redis.XMessage {
	messages, _, err := s.client.Redis().XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.topic,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.minIdleTime,
		Start:    "0-0",
		Count:    s.messagesPerRead,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("autoclaim failed", "component", "bus",
				"topic", s.topic, "group", s.group, "error", err)
			sleepCtx(ctx, errorBackoff)
		}
		return nil
	}
	if len(messages) > 0 {
		s.logger.Warn("reclaimed stalled deliveries", "component", "bus",
			"topic", s.topic, "group", s.group, "count", len(messages))
	}
	return messages
}

// emit forwards messages to the output channel; returns false on
// cancellation
func (s *Subscriber) emit(ctx context.Context, out chan<- Delivery, messages []redis.XMessage) bool {
	for _, msg := range messages {
		select {
		case out <- Delivery{ID: msg.ID, Fields: decodeValues(msg.Values)}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// initGroupAndStream lazily creates the topic and the consumer group. A
// group created on an existing topic starts at id "0" so the backlog is
// replayed, not skipped. Concurrent creation attempts are tolerated.
func (s *Subscriber) initGroupAndStream(ctx context.Context) error {
	if s.initialized {
		return nil
	}

	rdb := s.client.Redis()
	exists, err := rdb.Exists(ctx, s.topic).Result()
	if err != nil {
		return errors.WrapTransient(err, "Subscriber", "initGroupAndStream", "topic existence check")
	}

	if exists == 0 {
		s.logger.Info("creating topic and consumer group", "component", "bus",
			"topic", s.topic, "group", s.group)
		err = rdb.XGroupCreateMkStream(ctx, s.topic, s.group, "$").Err()
	} else {
		s.logger.Info("creating consumer group on existing topic", "component", "bus",
			"topic", s.topic, "group", s.group)
		// id "0" so the new group catches up on entries already in the
		// topic instead of starting at the tail
		err = rdb.XGroupCreate(ctx, s.topic, s.group, "0").Err()
	}

	if err != nil && !isBusyGroup(err) {
		return errors.WrapTransient(err, "Subscriber", "initGroupAndStream", "group creation")
	}

	s.initialized = true
	return nil
}

// isBusyGroup reports a lost group-creation race, which is success for us
func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func decodeValues(values map[string]any) map[string]string {
	fields := make(map[string]string, len(values))
	for key, value := range values {
		if str, ok := value.(string); ok {
			fields[key] = str
		}
	}
	return fields
}

// sleepCtx sleeps for d unless ctx is cancelled first; returns false on
// cancellation
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
