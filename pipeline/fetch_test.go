package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yakimka/feed-watchdog/bus"
	"github.com/yakimka/feed-watchdog/dedup"
	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/event"
	"github.com/yakimka/feed-watchdog/feed"
	"github.com/yakimka/feed-watchdog/handler"
	"github.com/yakimka/feed-watchdog/handler/fetcher"
	"github.com/yakimka/feed-watchdog/handler/modifier"
	"github.com/yakimka/feed-watchdog/handler/parser"
	"github.com/yakimka/feed-watchdog/lock"
	"github.com/yakimka/feed-watchdog/redisclient"
	"github.com/yakimka/feed-watchdog/testutil"
)

const messagesTopic = "fw:messages"

// makeRSS builds a feed whose items are given newest first, matching how
// real feeds order their entries
func makeRSS(titles ...string) string {
	var items strings.Builder
	for i, title := range titles {
		link := fmt.Sprintf("https://example.com/posts/%d", len(titles)-i)
		items.WriteString(fmt.Sprintf(
			"<item><title>%s</title><link>%s</link><guid>%s</guid></item>", title, link, link))
	}
	return `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>` +
		items.String() + `</channel></rss>`
}

func streamEvent(content string) event.ProcessStreamEvent {
	return event.ProcessStreamEvent{
		Slug:            "blog-to-news",
		MessageTemplate: "$title",
		Squash:          true,
		Source: event.SourceData{
			FetcherType:    "static",
			FetcherOptions: map[string]any{"content": content},
			ParserType:     "rss",
			Tags:           []string{"blog"},
		},
	}
}

func newFetchStack(t *testing.T) (*FetchWorker, *redisclient.Client, dedup.Store) {
	t.Helper()

	_, client := testutil.NewRedis(t)
	registry := handler.NewRegistry(nil)
	require.NoError(t, fetcher.Register(registry))
	require.NoError(t, parser.Register(registry))
	require.NoError(t, modifier.Register(registry))

	store := dedup.NewRedisStore(client)
	worker := NewFetchWorker(FetchDeps{
		Publisher: bus.NewPublisher(client),
		Store:     store,
		Registry:  registry,
		Locker:    lock.NewLocker(client),
	}, messagesTopic)
	return worker, client, store
}

func readBatches(t *testing.T, client *redisclient.Client) []event.MessageBatch {
	t.Helper()

	entries, err := client.Redis().XRange(context.Background(), messagesTopic, "-", "+").Result()
	require.NoError(t, err)

	batches := make([]event.MessageBatch, 0, len(entries))
	for _, entry := range entries {
		fields := make(map[string]string, len(entry.Values))
		for key, value := range entry.Values {
			fields[key] = value.(string)
		}
		batch, err := event.DecodeMessageBatch(fields)
		require.NoError(t, err)
		batches = append(batches, batch)
	}
	return batches
}

func TestFetchFirstRunAdoptsBacklogSilently(t *testing.T) {
	worker, client, store := newFetchStack(t)
	ctx := context.Background()

	err := worker.processStream(ctx, streamEvent(makeRSS("Item 3", "Item 2", "Item 1")))
	require.NoError(t, err)

	assert.Empty(t, readBatches(t, client), "first run must not emit messages")

	count, err := store.SeenCount(ctx, "blog-to-news")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestFetchIncrementalRunEmitsOnlyNewPosts(t *testing.T) {
	worker, client, store := newFetchStack(t)
	ctx := context.Background()

	require.NoError(t, worker.processStream(ctx, streamEvent(makeRSS("Item 3", "Item 2", "Item 1"))))

	// two new posts appear at the head of the feed
	err := worker.processStream(ctx, streamEvent(makeRSS("Item 5", "Item 4", "Item 3", "Item 2", "Item 1")))
	require.NoError(t, err)

	batches := readBatches(t, client)
	require.Len(t, batches, 1, "squash packs one run into one batch")
	require.Len(t, batches[0].Messages, 2)

	// oldest first so receivers post in chronological order
	assert.Equal(t, "Item 4", batches[0].Messages[0].Text)
	assert.Equal(t, "Item 5", batches[0].Messages[1].Text)
	assert.Equal(t, "example.com/posts/4", batches[0].Messages[0].PostID, "ids are scheme-normalized")

	count, err := store.SeenCount(ctx, "blog-to-news")
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

func TestFetchRunIsIdempotent(t *testing.T) {
	worker, client, _ := newFetchStack(t)
	ctx := context.Background()

	evt := streamEvent(makeRSS("Item 2", "Item 1"))
	require.NoError(t, worker.processStream(ctx, evt))

	evt2 := streamEvent(makeRSS("Item 3", "Item 2", "Item 1"))
	require.NoError(t, worker.processStream(ctx, evt2))
	require.NoError(t, worker.processStream(ctx, evt2))

	batches := readBatches(t, client)
	require.Len(t, batches, 1, "reprocessing the same feed emits nothing new")
}

func TestFetchWithoutSquashEmitsOneBatchPerPost(t *testing.T) {
	worker, client, _ := newFetchStack(t)
	ctx := context.Background()

	require.NoError(t, worker.processStream(ctx, streamEvent(makeRSS("Item 1"))))

	evt := streamEvent(makeRSS("Item 3", "Item 2", "Item 1"))
	evt.Squash = false
	require.NoError(t, worker.processStream(ctx, evt))

	batches := readBatches(t, client)
	require.Len(t, batches, 2)
	assert.Equal(t, "Item 2", batches[0].Messages[0].Text)
	assert.Equal(t, "Item 3", batches[1].Messages[0].Text)
}

func TestFetchAppliesModifiers(t *testing.T) {
	worker, client, _ := newFetchStack(t)
	ctx := context.Background()

	require.NoError(t, worker.processStream(ctx, streamEvent(makeRSS("Item 1"))))

	evt := streamEvent(makeRSS("Secret Item", "Item 1"))
	evt.Modifiers = []event.ModifierData{{
		Type:    "replace_text",
		Options: map[string]any{"field": "title", "old": "Secret", "new": "Public"},
	}}
	require.NoError(t, worker.processStream(ctx, evt))

	batches := readBatches(t, client)
	require.Len(t, batches, 1)
	assert.Equal(t, "Public Item", batches[0].Messages[0].Text)
}

// dropTitled removes every post with the given title
type dropTitled string

func (d dropTitled) Modify(_ context.Context, posts []feed.Post) ([]feed.Post, error) {
	kept := make([]feed.Post, 0, len(posts))
	for _, post := range posts {
		if title, _ := post.(feed.FieldEditor).Field("title"); title != string(d) {
			kept = append(kept, post)
		}
	}
	return kept, nil
}

func TestFetchModifierDroppedPostsAreMarkedSeen(t *testing.T) {
	worker, client, store := newFetchStack(t)
	ctx := context.Background()

	require.NoError(t, worker.deps.Registry.Register(handler.Registration{
		Kind: handler.KindModifier,
		Name: "drop_secret",
		Factory: func(string, map[string]any, map[string]any) (any, error) {
			return dropTitled("Secret Item"), nil
		},
	}))

	require.NoError(t, worker.processStream(ctx, streamEvent(makeRSS("Item 1"))))

	evt := streamEvent(makeRSS("Secret Item", "Item 1"))
	evt.Modifiers = []event.ModifierData{{Type: "drop_secret"}}
	require.NoError(t, worker.processStream(ctx, evt))

	assert.Empty(t, readBatches(t, client), "filtered post must not be published")

	seen, err := store.IsSeen(ctx, "example.com/posts/2", "blog-to-news")
	require.NoError(t, err)
	assert.True(t, seen, "a post removed by a modifier still counts as processed")

	// loosening the filter later must not resurface the suppressed post
	require.NoError(t, worker.processStream(ctx, streamEvent(makeRSS("Secret Item", "Item 1"))))
	assert.Empty(t, readBatches(t, client))
}

func TestFetchFirstRunMarksModifierDroppedPosts(t *testing.T) {
	worker, _, store := newFetchStack(t)
	ctx := context.Background()

	require.NoError(t, worker.deps.Registry.Register(handler.Registration{
		Kind: handler.KindModifier,
		Name: "drop_secret",
		Factory: func(string, map[string]any, map[string]any) (any, error) {
			return dropTitled("Secret Item"), nil
		},
	}))

	evt := streamEvent(makeRSS("Secret Item", "Item 1"))
	evt.Modifiers = []event.ModifierData{{Type: "drop_secret"}}
	require.NoError(t, worker.processStream(ctx, evt))

	count, err := store.SeenCount(ctx, "blog-to-news")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count, "first run adopts the full parsed backlog")
}

func TestFetchEscapesTemplateValues(t *testing.T) {
	worker, client, _ := newFetchStack(t)
	ctx := context.Background()

	require.NoError(t, worker.processStream(ctx, streamEvent(makeRSS("Item 1"))))
	require.NoError(t, worker.processStream(ctx, streamEvent(makeRSS("Cats &amp; Dogs", "Item 1"))))

	batches := readBatches(t, client)
	require.Len(t, batches, 1)
	assert.Equal(t, "Cats &amp; Dogs", batches[0].Messages[0].Text, "values are HTML-escaped for delivery")
}

func TestFetchEmptyContentSkipsTick(t *testing.T) {
	worker, client, store := newFetchStack(t)
	ctx := context.Background()

	evt := streamEvent("   ")
	require.NoError(t, worker.processStream(ctx, evt), "empty fetch is a skip, not a failure")

	assert.Empty(t, readBatches(t, client))
	count, err := store.SeenCount(ctx, "blog-to-news")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFetchUnknownHandlerDropsDelivery(t *testing.T) {
	worker, client, _ := newFetchStack(t)
	ctx := context.Background()

	evt := streamEvent(makeRSS("Item 1"))
	evt.Source.FetcherType = "no-such-fetcher"

	publishAndProcess(t, client, worker, evt)

	pending, err := client.Redis().XPending(ctx, "fw:streams", "fetchers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count, "misconfigured stream must not wedge the topic")
}

func TestFetchTransientFailureLeavesDeliveryPending(t *testing.T) {
	worker, client, _ := newFetchStack(t)
	worker.deps.Store = failingStore{}
	ctx := context.Background()

	publishAndProcess(t, client, worker, streamEvent(makeRSS("Item 1")))

	pending, err := client.Redis().XPending(ctx, "fw:streams", "fetchers").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending.Count, "transient failures are retried via redelivery")
}

// publishAndProcess pushes the event through a real subscriber and lets
// the worker handle the resulting delivery
func publishAndProcess(t *testing.T, client *redisclient.Client, worker *FetchWorker, evt event.ProcessStreamEvent) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, bus.NewPublisher(client).Publish(ctx, "fw:streams", evt))

	subscriber := bus.NewSubscriber(client, "fw:streams", "fetchers", "c1")
	worker.deps.Subscriber = subscriber

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	delivery := <-subscriber.Deliveries(subCtx)
	worker.processDelivery(ctx, delivery)
}

// failingStore simulates a Redis outage on the dedup store
type failingStore struct{}

func (failingStore) MarkSeen(context.Context, string, ...string) error {
	return errors.WrapTransient(errors.ErrNoConnection, "failingStore", "MarkSeen", "set add")
}

func (failingStore) SeenCount(context.Context, string) (int64, error) {
	return 0, errors.WrapTransient(errors.ErrNoConnection, "failingStore", "SeenCount", "set size")
}

func (failingStore) IsSeen(context.Context, string, string) (bool, error) {
	return false, errors.WrapTransient(errors.ErrNoConnection, "failingStore", "IsSeen", "set membership")
}

func (failingStore) MarkSent(context.Context, string, string, string) error {
	return errors.WrapTransient(errors.ErrNoConnection, "failingStore", "MarkSent", "set add")
}

func (failingStore) WasSent(context.Context, string, string, string) (bool, error) {
	return false, errors.WrapTransient(errors.ErrNoConnection, "failingStore", "WasSent", "set membership")
}
