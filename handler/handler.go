// Package handler implements the pluggable handler registry.
//
// Handlers come in four kinds: fetchers turn a source location into raw
// text, parsers turn raw text into posts, modifiers transform post lists,
// and receivers deliver rendered messages to external sinks. Handler
// implementations register themselves on an explicit Registry built once
// at startup; the pipeline resolves handlers by (kind, name) with
// per-invocation options validated against the handler's declared schema.
package handler

import (
	"context"

	"github.com/yakimka/feed-watchdog/event"
	"github.com/yakimka/feed-watchdog/feed"
)

// Kind identifies a handler family
type Kind string

// The four handler kinds
const (
	KindFetcher  Kind = "fetchers"
	KindParser   Kind = "parsers"
	KindModifier Kind = "modifiers"
	KindReceiver Kind = "receivers"
)

// Kinds lists all handler kinds in dispatch order
func Kinds() []Kind {
	return []Kind{KindFetcher, KindParser, KindModifier, KindReceiver}
}

// Fetcher retrieves raw text from a source. An empty result with a nil
// error means the source had nothing to offer this tick.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// DomainKeyed is implemented by fetchers that hit a remote host. The
// pipeline serializes fetches per lock key so one host is never hammered
// by many concurrently scheduled streams.
type DomainKeyed interface {
	LockKey() string
}

// Parser turns raw text into posts, newest first
type Parser interface {
	Parse(ctx context.Context, text string) ([]feed.Post, error)
}

// Modifier transforms a post list. Modifiers may filter, mutate, or
// re-tag posts; they run in the order declared on the stream.
type Modifier interface {
	Modify(ctx context.Context, posts []feed.Post) ([]feed.Post, error)
}

// Receiver delivers rendered messages to an external sink
type Receiver interface {
	Send(ctx context.Context, messages []event.Message) error
}
