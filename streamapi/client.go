// Package streamapi is the client for the stream-definition API. The
// sending stage looks streams up by slug at delivery time so receiver
// configuration changes take effect without republishing events.
package streamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yakimka/feed-watchdog/errors"
)

// StreamDefinition is the delivery-side view of a stream
type StreamDefinition struct {
	Slug                    string             `json:"slug"`
	MessageTemplate         string             `json:"message_template"`
	Squash                  bool               `json:"squash"`
	Receiver                ReceiverDefinition `json:"receiver"`
	ReceiverOptionsOverride map[string]any     `json:"receiver_options_override"`
}

// ReceiverDefinition is the receiver half of a stream definition
type ReceiverDefinition struct {
	Type    string         `json:"type"`
	Options map[string]any `json:"options"`
}

// MergedReceiverOptions returns the receiver options with the per-stream
// override applied on top; override values win.
func (d StreamDefinition) MergedReceiverOptions() map[string]any {
	merged := make(map[string]any, len(d.Receiver.Options)+len(d.ReceiverOptionsOverride))
	for key, value := range d.Receiver.Options {
		merged[key] = value
	}
	for key, value := range d.ReceiverOptionsOverride {
		merged[key] = value
	}
	return merged
}

// Client talks to the stream-definition API
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default().With("component", "streamapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetStreamBySlug fetches one stream definition. A missing stream is
// ErrStreamNotFound; transport and server failures are transient so the
// caller can retry via redelivery.
func (c *Client) GetStreamBySlug(ctx context.Context, slug string) (StreamDefinition, error) {
	var definition StreamDefinition

	endpoint := c.baseURL + "/streams/" + url.PathEscape(slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return definition, errors.WrapInvalid(err, "Client", "GetStreamBySlug", "request build")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return definition, errors.WrapTransient(err, "Client", "GetStreamBySlug", "api request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		msg := fmt.Errorf("%w: %s", errors.ErrStreamNotFound, slug)
		return definition, errors.WrapInvalid(msg, "Client", "GetStreamBySlug", "stream lookup")
	case resp.StatusCode != http.StatusOK:
		msg := fmt.Errorf("unexpected status %d", resp.StatusCode)
		return definition, errors.WrapTransient(msg, "Client", "GetStreamBySlug", "api response")
	}

	if err := json.NewDecoder(resp.Body).Decode(&definition); err != nil {
		return definition, errors.WrapInvalid(err, "Client", "GetStreamBySlug", "response decode")
	}
	return definition, nil
}
