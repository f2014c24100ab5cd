// Package receiver provides the built-in receiver handlers: telegram_bot
// delivers messages through the Telegram bot API, console writes them to
// a local writer.
package receiver

import (
	"os"

	"github.com/yakimka/feed-watchdog/handler"
	"github.com/yakimka/feed-watchdog/lock"
)

// Register adds the built-in receivers to the registry. The locker paces
// outgoing Telegram calls; every instance of one bot shares its rate
// limit.
func Register(registry *handler.Registry, locker *lock.Locker) error {
	if err := registry.Register(telegramRegistration(locker)); err != nil {
		return err
	}
	return registry.Register(consoleRegistration(os.Stdout))
}
