package fetcher

import (
	"context"

	"github.com/yakimka/feed-watchdog/handler"
)

// Static returns configured content without touching the network. Useful
// for announcement-style streams whose content changes by editing the
// stream, and for wiring pipelines in tests.
type Static struct {
	content string
}

var _ handler.Fetcher = (*Static)(nil)

func staticRegistration() handler.Registration {
	return handler.Registration{
		Kind:        handler.KindFetcher,
		Name:        "static",
		Description: "Return configured content as-is",
		Schema: handler.Schema{
			Title: "Static content",
			Properties: map[string]handler.Property{
				"content": {Type: "string", Title: "Content"},
			},
			Required: []string{"content"},
		},
		Factory: func(_ string, _, options map[string]any) (any, error) {
			return NewStatic(handler.GetString(options, "content", "")), nil
		},
	}
}

// NewStatic creates a fetcher that always returns content
func NewStatic(content string) *Static {
	return &Static{content: content}
}

// Fetch returns the configured content
func (s *Static) Fetch(context.Context) (string, error) {
	return s.content, nil
}
