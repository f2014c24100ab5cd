// Package pipeline implements the two worker stages of the feed engine.
//
// The fetch stage consumes stream events, pulls and parses the source,
// detects posts that were never seen before, renders them into messages,
// and publishes message batches. The send stage consumes those batches,
// resolves the stream's current receiver, and delivers everything that
// was not already sent.
//
// Both stages commit a delivery in every case except a transient failure:
// transient errors leave the entry pending so the consumer group redelivers
// it, anything else is logged and committed so a poison message cannot
// wedge the topic. Redis set membership makes redelivery idempotent on
// both stages.
package pipeline

import (
	"context"
	"html"
	"log/slog"

	"github.com/yakimka/feed-watchdog/bus"
	"github.com/yakimka/feed-watchdog/errors"
)

// finishDelivery applies the commit policy shared by both stages
func finishDelivery(ctx context.Context, subscriber *bus.Subscriber, logger *slog.Logger, delivery bus.Delivery, processErr error) {
	if processErr != nil {
		if errors.IsTransient(processErr) {
			logger.Error("processing failed, leaving delivery for redelivery",
				"delivery_id", delivery.ID, "error", processErr)
			return
		}
		logger.Error("processing failed, dropping delivery",
			"delivery_id", delivery.ID, "error", processErr)
	}

	if err := subscriber.Commit(ctx, delivery.ID); err != nil {
		logger.Error("commit failed", "delivery_id", delivery.ID, "error", err)
	}
}

// escapeKwargs HTML-escapes template values. Receivers deliver with HTML
// formatting enabled, so source-controlled text must never carry markup.
func escapeKwargs(kwargs map[string]string) map[string]string {
	escaped := make(map[string]string, len(kwargs))
	for key, value := range kwargs {
		escaped[key] = html.EscapeString(value)
	}
	return escaped
}
