// Package dedup tracks which posts have been observed and delivered.
//
// The store keeps two families of append-only Redis sets: a per-stream
// seen set used to compute "new" posts, and a per-stream/receiver sent set
// used to suppress duplicate external sends on reprocessing. Entries are
// never deleted; they accumulate for the lifetime of the stream.
package dedup

import (
	"context"
	"fmt"

	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/redisclient"
)

// Store is the membership interface the pipeline needs
type Store interface {
	// MarkSeen adds post ids to the stream's seen set
	MarkSeen(ctx context.Context, streamID string, postIDs ...string) error
	// SeenCount returns the size of the stream's seen set. Zero means the
	// stream has never been processed.
	SeenCount(ctx context.Context, streamID string) (int64, error)
	// IsSeen reports whether the post is in the stream's seen set
	IsSeen(ctx context.Context, postID, streamID string) (bool, error)

	// MarkSent records a successful delivery of a post to a receiver type
	MarkSent(ctx context.Context, postID, streamID, receiverType string) error
	// WasSent reports whether the post was already delivered to the
	// receiver type
	WasSent(ctx context.Context, postID, streamID, receiverType string) (bool, error)
}

// RedisStore implements Store on Redis sets
type RedisStore struct {
	client *redisclient.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on the given Redis connection
func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{client: client}
}

// MarkSeen adds post ids to the stream's seen set
func (s *RedisStore) MarkSeen(ctx context.Context, streamID string, postIDs ...string) error {
	if len(postIDs) == 0 {
		return nil
	}
	members := make([]any, len(postIDs))
	for i, id := range postIDs {
		members[i] = id
	}
	err := s.client.Redis().SAdd(ctx, seenKey(streamID), members...).Err()
	return errors.WrapTransient(err, "RedisStore", "MarkSeen", "set add")
}

// SeenCount returns the size of the stream's seen set
func (s *RedisStore) SeenCount(ctx context.Context, streamID string) (int64, error) {
	count, err := s.client.Redis().SCard(ctx, seenKey(streamID)).Result()
	if err != nil {
		return 0, errors.WrapTransient(err, "RedisStore", "SeenCount", "set size")
	}
	return count, nil
}

// IsSeen reports whether the post is in the stream's seen set
func (s *RedisStore) IsSeen(ctx context.Context, postID, streamID string) (bool, error) {
	seen, err := s.client.Redis().SIsMember(ctx, seenKey(streamID), postID).Result()
	if err != nil {
		return false, errors.WrapTransient(err, "RedisStore", "IsSeen", "set membership")
	}
	return seen, nil
}

// MarkSent records a successful delivery of a post to a receiver type
func (s *RedisStore) MarkSent(ctx context.Context, postID, streamID, receiverType string) error {
	err := s.client.Redis().SAdd(ctx, sentKey(streamID, receiverType), postID).Err()
	return errors.WrapTransient(err, "RedisStore", "MarkSent", "set add")
}

// WasSent reports whether the post was already delivered to the receiver
// type
func (s *RedisStore) WasSent(ctx context.Context, postID, streamID, receiverType string) (bool, error) {
	sent, err := s.client.Redis().SIsMember(ctx, sentKey(streamID, receiverType), postID).Result()
	if err != nil {
		return false, errors.WrapTransient(err, "RedisStore", "WasSent", "set membership")
	}
	return sent, nil
}

func seenKey(streamID string) string {
	return fmt.Sprintf("posts:marked:seen:%s", streamID)
}

func sentKey(streamID, receiverType string) string {
	return fmt.Sprintf("sent_posts:%s_%s", streamID, receiverType)
}
