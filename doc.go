// Package feedwatchdog turns polled feeds into messages delivered to
// chat receivers. Delivery is effectively-once: the bus redelivers on
// failure, and dedup sets keep redelivery out of the chat.
//
// # Architecture
//
// The system is a two-stage pipeline connected by durable Redis Streams
// topics:
//
//	┌──────────────┐   streams topic   ┌──────────────┐   messages topic   ┌──────────────┐
//	│  Scheduler    │ ────────────────▶ │ Fetch worker │ ─────────────────▶ │ Send worker  │
//	│ (external)    │  stream events    │ fetch, parse │   message batches  │ deliver to   │
//	└──────────────┘                    │ dedup, render│                    │ receivers    │
//	                                    └──────────────┘                    └──────────────┘
//
// Stage A (pipeline.FetchWorker) consumes stream processing events, runs
// the stream's fetcher, parser, and modifiers from the handler registry,
// drops posts already recorded in the per-stream seen set, renders message
// text from the stream's template, and publishes message batches.
//
// Stage B (pipeline.SendWorker) consumes batches, resolves the current
// stream definition from the management API, filters messages through the
// per-receiver sent set, and hands the remainder to the receiver handler.
//
// Both topics use consumer groups with at-least-once delivery; the seen
// and sent sets (dedup package) make redelivery idempotent, so a crash
// between publish and acknowledge never produces a duplicate in a chat.
//
// # Packages
//
//   - bus: Redis Streams publisher and consumer-group subscriber
//   - lock: distributed lock doubling as a rate limiter
//   - dedup: seen and sent post sets
//   - handler: registry of fetchers, parsers, modifiers, and receivers
//   - pipeline: the two worker stages
//   - streamapi: client for the stream-definition API
//   - event, feed: the data model and text helpers
//
// The cmd/feed-watchdog binary wires everything together and can run
// either stage alone or both in one process.
package feedwatchdog
