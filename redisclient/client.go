// Package redisclient manages the Redis connection shared by the message
// bus, the distributed lock, and the dedup store.
package redisclient

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yakimka/feed-watchdog/errors"
)

// ConnectionStatus represents the state of the Redis connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client manages a Redis connection with sane dial/read timeouts.
// The zero value is not usable; create clients with NewClient.
type Client struct {
	url    string
	logger *slog.Logger
	status atomic.Value // stores ConnectionStatus

	dialTimeout  time.Duration
	readTimeout  time.Duration
	pingInterval time.Duration

	rdb *redis.Client
}

// ClientOption configures optional client behavior
type ClientOption func(*Client)

// WithLogger sets the structured logger used by the client
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDialTimeout overrides the default dial timeout
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// WithReadTimeout overrides the default read timeout. The bus relies on
// blocking stream reads, so this must stay above the subscriber block time.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.readTimeout = d
	}
}

// NewClient creates a Redis client for the given URL
// (redis://[user:pass@]host:port/db).
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "url validation")
	}

	c := &Client{
		url:         url,
		logger:      slog.Default(),
		dialTimeout: 5 * time.Second,
		readTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status.Store(StatusDisconnected)

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "NewClient", "url parsing")
	}
	redisOpts.DialTimeout = c.dialTimeout
	redisOpts.ReadTimeout = c.readTimeout

	c.rdb = redis.NewClient(redisOpts)
	return c, nil
}

// NewClientFromRedis wraps an existing go-redis client. Used by tests to
// point the system at an in-process Redis.
func NewClientFromRedis(rdb *redis.Client, opts ...ClientOption) *Client {
	c := &Client{
		logger: slog.Default(),
		rdb:    rdb,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status.Store(StatusConnected)
	return c
}

// Connect verifies the connection with a ping
func (c *Client) Connect(ctx context.Context) error {
	c.status.Store(StatusConnecting)

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "ping")
	}

	c.status.Store(StatusConnected)
	c.logger.Info("connected to redis", "component", "redisclient")
	return nil
}

// Redis returns the underlying go-redis client
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	status, ok := c.status.Load().(ConnectionStatus)
	if !ok {
		return StatusDisconnected
	}
	return status
}

// Close releases the connection
func (c *Client) Close() error {
	c.status.Store(StatusDisconnected)
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
