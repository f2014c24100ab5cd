// Package testutil provides helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/yakimka/feed-watchdog/redisclient"
)

// NewRedis starts an in-process Redis and returns it together with a
// connected client. Both are cleaned up with the test.
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redisclient.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := redisclient.NewClientFromRedis(rdb)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, client
}
