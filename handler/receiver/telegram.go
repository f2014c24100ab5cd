package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/event"
	"github.com/yakimka/feed-watchdog/handler"
	"github.com/yakimka/feed-watchdog/lock"
)

// Telegram limits
const (
	MaxMessageLength         = 4096
	maxMessagesPerMinuteChat = 20
)

// pauseBetweenSends keeps one bot under the per-chat rate limit
var pauseBetweenSends = time.Minute / maxMessagesPerMinuteChat

// botAPI is the slice of the Telegram client the receiver uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot clients are cached per token: connecting validates the token
// against the API, and every stream sharing a bot shares one client.
var (
	botsMu sync.Mutex
	bots   = map[string]botAPI{}

	connectBot = func(token string) (botAPI, error) {
		return tgbotapi.NewBotAPI(token)
	}
)

func botForToken(token string) (botAPI, error) {
	botsMu.Lock()
	defer botsMu.Unlock()

	if bot, ok := bots[token]; ok {
		return bot, nil
	}
	bot, err := connectBot(token)
	if err != nil {
		return nil, err
	}
	bots[token] = bot
	return bot, nil
}

// TelegramBot delivers squashed message batches to one chat. Sends
// through the same bot instance are spaced out with a lock held past each
// call, keeping the bot under Telegram's per-chat limit no matter how
// many worker processes run.
type TelegramBot struct {
	name               string
	token              string
	chatID             string
	disableLinkPreview bool
	locker             *lock.Locker
	logger             *slog.Logger
}

var _ handler.Receiver = (*TelegramBot)(nil)

func telegramRegistration(locker *lock.Locker) handler.Registration {
	return handler.Registration{
		Kind:        handler.KindReceiver,
		Name:        "telegram_bot",
		Description: "Send messages to a Telegram chat",
		Schema: handler.Schema{
			Title: "Telegram bot",
			Properties: map[string]handler.Property{
				"chat_id":              {Type: "string", Title: "Chat ID", Description: "Telegram chat id"},
				"disable_link_preview": {Type: "boolean", Title: "Disable link preview", Default: false},
			},
			Required: []string{"chat_id"},
		},
		Factory: func(instance string, kwargs, options map[string]any) (any, error) {
			token := handler.GetString(kwargs, "token", "")
			if token == "" {
				msg := fmt.Errorf("%w: telegram_bot instance %q has no token", errors.ErrInvalidConfig, instance)
				return nil, errors.WrapInvalid(msg, "TelegramBot", "factory", "token validation")
			}
			return NewTelegramBot(instance, token, locker,
				handler.GetString(options, "chat_id", ""),
				handler.GetBool(options, "disable_link_preview", false),
			), nil
		},
	}
}

// NewTelegramBot creates a receiver sending through the bot identified by
// token
func NewTelegramBot(name, token string, locker *lock.Locker, chatID string, disableLinkPreview bool) *TelegramBot {
	return &TelegramBot{
		name:               name,
		token:              token,
		chatID:             chatID,
		disableLinkPreview: disableLinkPreview,
		locker:             locker,
		logger:             slog.Default().With("component", "telegram_bot", "instance", name),
	}
}

// Send squashes the batch into one chat message and delivers it
func (t *TelegramBot) Send(ctx context.Context, messages []event.Message) error {
	if len(messages) == 0 {
		return nil
	}

	texts := make([]string, 0, len(messages))
	for _, message := range messages {
		texts = append(texts, strings.TrimSpace(message.Text))
	}
	text := BuildText(texts)

	err := t.locker.WithLock(ctx, t.name, func(ctx context.Context) error {
		return t.send(ctx, text)
	}, lock.Required(), lock.WithWaitAfterRelease(pauseBetweenSends))
	if err != nil {
		return errors.Wrap(err, "TelegramBot", "Send", "message delivery")
	}

	t.logger.Info("sent message", "chat_id", t.chatID, "messages", len(messages))
	return nil
}

func (t *TelegramBot) send(_ context.Context, text string) error {
	bot, err := botForToken(t.token)
	if err != nil {
		return errors.WrapTransient(err, "TelegramBot", "send", "bot connection")
	}

	msg := t.newMessage(text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = t.disableLinkPreview

	if _, err := bot.Send(msg); err != nil {
		return errors.WrapTransient(err, "TelegramBot", "send", "api call")
	}
	return nil
}

// newMessage targets a numeric chat id or an @channel username
func (t *TelegramBot) newMessage(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(t.chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	return tgbotapi.NewMessageToChannel(t.chatID, text)
}

// BuildText joins message texts with a delimiter and truncates the result
// to the Telegram message limit. When over the limit, parts are dropped
// from the tail and a single Truncated marker ends the message.
func BuildText(texts []string) string {
	const delimiter = "\n-----\n"

	var parts []string
	for _, text := range texts {
		parts = append(parts, text, delimiter)
	}
	if len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}

	truncated := false
	for totalLength(parts) > MaxMessageLength {
		if !truncated {
			parts = append(parts, "\nTruncated...")
			truncated = true
		}
		// drop the part just before the marker
		parts = append(parts[:len(parts)-2], parts[len(parts)-1])
	}

	return strings.Join(parts, "")
}

// totalLength counts runes: the Telegram limit is in characters, not
// bytes
func totalLength(parts []string) int {
	total := 0
	for _, part := range parts {
		total += utf8.RuneCountInString(part)
	}
	return total
}
