// Package fetcher provides the built-in fetcher handlers: text retrieves
// a URL over HTTP, static returns configured content as-is.
package fetcher

import (
	"github.com/yakimka/feed-watchdog/handler"
)

// Register adds the built-in fetchers to the registry
func Register(registry *handler.Registry) error {
	if err := registry.Register(textRegistration()); err != nil {
		return err
	}
	return registry.Register(staticRegistration())
}
