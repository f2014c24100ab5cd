package receiver

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/event"
	"github.com/yakimka/feed-watchdog/handler"
)

// Console writes messages to a local writer. Used for dry runs and for
// piping a stream into other tooling.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	prefix string
}

var _ handler.Receiver = (*Console)(nil)

func consoleRegistration(out io.Writer) handler.Registration {
	return handler.Registration{
		Kind:        handler.KindReceiver,
		Name:        "console",
		Description: "Write messages to standard output",
		Schema: handler.Schema{
			Title: "Console",
			Properties: map[string]handler.Property{
				"prefix": {Type: "string", Title: "Line prefix", Default: ""},
			},
		},
		Factory: func(_ string, _, options map[string]any) (any, error) {
			return NewConsole(out, handler.GetString(options, "prefix", "")), nil
		},
	}
}

// NewConsole creates a receiver writing to out
func NewConsole(out io.Writer, prefix string) *Console {
	return &Console{out: out, prefix: prefix}
}

// Send writes each message on its own line
func (c *Console) Send(_ context.Context, messages []event.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, message := range messages {
		if _, err := fmt.Fprintf(c.out, "%s%s\n", c.prefix, message.Text); err != nil {
			return errors.Wrap(err, "Console", "Send", "write")
		}
	}
	return nil
}
