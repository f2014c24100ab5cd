// Package event defines the payloads that travel over the message bus and
// their wire encoding. Every top-level field of an event is serialized to
// its own JSON document and stored as one field of a stream entry, so
// consumers can decode events field by field.
package event

import (
	"encoding/json"

	"github.com/yakimka/feed-watchdog/errors"
)

// SourceData describes how to fetch and parse one content source
type SourceData struct {
	FetcherType    string         `json:"fetcher_type"`
	FetcherOptions map[string]any `json:"fetcher_options"`
	ParserType     string         `json:"parser_type"`
	ParserOptions  map[string]any `json:"parser_options"`
	Tags           []string       `json:"tags"`
}

// ReceiverData describes a delivery target and its connection options
type ReceiverData struct {
	Type    string         `json:"type"`
	Options map[string]any `json:"options"`
}

// ModifierData describes one post transform applied between parsing and
// delivery
type ModifierData struct {
	Type    string         `json:"type"`
	Options map[string]any `json:"options"`
}

// ProcessStreamEvent is the unit of work published to the streams topic.
// One event is emitted each time a stream is due to run; the event is
// immutable for that run.
type ProcessStreamEvent struct {
	Slug            string         `json:"slug"`
	MessageTemplate string         `json:"message_template"`
	Squash          bool           `json:"squash"`
	Modifiers       []ModifierData `json:"modifiers"`
	Source          SourceData     `json:"source"`
}

// Fields returns the bus encoding of the event
func (e ProcessStreamEvent) Fields() (map[string]any, error) {
	return encodeFields(e)
}

// DecodeProcessStreamEvent decodes an event from raw bus fields
func DecodeProcessStreamEvent(fields map[string]string) (ProcessStreamEvent, error) {
	return decodeFields[ProcessStreamEvent](fields)
}

// Message is the fully rendered text for a single post
type Message struct {
	PostID string `json:"post_id"`
	Text   string `json:"text"`
}

// MessageBatch is the payload of the messages topic. With squash enabled a
// batch carries every new message of one pipeline run; otherwise exactly
// one.
type MessageBatch struct {
	StreamSlug string    `json:"stream_slug"`
	Messages   []Message `json:"messages"`
}

// Fields returns the bus encoding of the batch
func (b MessageBatch) Fields() (map[string]any, error) {
	return encodeFields(b)
}

// DecodeMessageBatch decodes a batch from raw bus fields
func DecodeMessageBatch(fields map[string]string) (MessageBatch, error) {
	return decodeFields[MessageBatch](fields)
}

// encodeFields flattens a struct into one JSON document per top-level field
func encodeFields(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(err, "event", "encodeFields", "event marshaling")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(err, "event", "encodeFields", "field splitting")
	}

	fields := make(map[string]any, len(raw))
	for key, value := range raw {
		fields[key] = string(value)
	}
	return fields, nil
}

// decodeFields reassembles a struct from per-field JSON documents
func decodeFields[T any](fields map[string]string) (T, error) {
	var result T

	raw := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		raw[key] = json.RawMessage(value)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return result, errors.WrapInvalid(err, "event", "decodeFields", "field joining")
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, errors.WrapInvalid(err, "event", "decodeFields", "event unmarshaling")
	}
	return result, nil
}
