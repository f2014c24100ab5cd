// Package modifier provides the built-in modifier handlers
package modifier

import (
	"github.com/yakimka/feed-watchdog/handler"
)

// Register adds the built-in modifiers to the registry
func Register(registry *handler.Registry) error {
	return registry.Register(replaceTextRegistration())
}
