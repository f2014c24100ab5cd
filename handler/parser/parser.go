// Package parser provides the built-in parser handlers. Each parser
// defines its own post type carrying the fields its format exposes to
// message templates.
package parser

import (
	"github.com/yakimka/feed-watchdog/handler"
)

// Register adds the built-in parsers to the registry
func Register(registry *handler.Registry) error {
	if err := registry.Register(rssRegistration()); err != nil {
		return err
	}
	if err := registry.Register(redditRegistration()); err != nil {
		return err
	}
	return registry.Register(htmlRegistration())
}
