package receiver

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yakimka/feed-watchdog/event"
	"github.com/yakimka/feed-watchdog/handler"
	"github.com/yakimka/feed-watchdog/lock"
	"github.com/yakimka/feed-watchdog/testutil"
)

func TestBuildTextJoinsWithDelimiter(t *testing.T) {
	text := BuildText([]string{"first", "second", "third"})
	assert.Equal(t, "first\n-----\nsecond\n-----\nthird", text)
}

func TestBuildTextSingleMessage(t *testing.T) {
	assert.Equal(t, "only", BuildText([]string{"only"}))
}

func TestBuildTextEmpty(t *testing.T) {
	assert.Equal(t, "", BuildText(nil))
}

func TestBuildTextTruncatesOverLimit(t *testing.T) {
	long := strings.Repeat("a", 3000)
	text := BuildText([]string{long, long, "short"})

	assert.LessOrEqual(t, len(text), MaxMessageLength)
	assert.Contains(t, text, "\nTruncated...")
	assert.Equal(t, 1, strings.Count(text, "Truncated..."), "single marker regardless of dropped parts")
	assert.True(t, strings.HasPrefix(text, long), "oldest message survives truncation")
}

func TestBuildTextSingleOversizeMessage(t *testing.T) {
	text := BuildText([]string{strings.Repeat("a", MaxMessageLength+1)})
	assert.Equal(t, "\nTruncated...", text)
}

func TestBuildTextExactlyAtLimit(t *testing.T) {
	exact := strings.Repeat("a", MaxMessageLength)
	assert.Equal(t, exact, BuildText([]string{exact}))
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

// installFakeBot routes bot connections to a fake and resets the cache
func installFakeBot(t *testing.T, fake *fakeBot) {
	t.Helper()
	origConnect := connectBot
	connectBot = func(string) (botAPI, error) { return fake, nil }
	t.Cleanup(func() {
		connectBot = origConnect
		botsMu.Lock()
		bots = map[string]botAPI{}
		botsMu.Unlock()
	})
	botsMu.Lock()
	bots = map[string]botAPI{}
	botsMu.Unlock()
}

// disablePacing removes the pacing pause for the duration of a test
func disablePacing(t *testing.T) {
	t.Helper()
	orig := pauseBetweenSends
	pauseBetweenSends = 0
	t.Cleanup(func() { pauseBetweenSends = orig })
}

func TestTelegramBotSend(t *testing.T) {
	fake := &fakeBot{}
	installFakeBot(t, fake)
	disablePacing(t)

	_, client := testutil.NewRedis(t)
	bot := NewTelegramBot("news_bot", "token", lock.NewLocker(client), "-100500", true)

	err := bot.Send(context.Background(), []event.Message{
		{PostID: "a", Text: "first"},
		{PostID: "b", Text: "second"},
	})
	require.NoError(t, err)

	require.Len(t, fake.sent, 1)
	sent := fake.sent[0]
	assert.Equal(t, int64(-100500), sent.ChatID)
	assert.Equal(t, "first\n-----\nsecond", sent.Text)
	assert.Equal(t, tgbotapi.ModeHTML, sent.ParseMode)
	assert.True(t, sent.DisableWebPagePreview)
}

func TestTelegramBotSendEmptyBatch(t *testing.T) {
	fake := &fakeBot{}
	installFakeBot(t, fake)

	_, client := testutil.NewRedis(t)
	bot := NewTelegramBot("news_bot", "token", lock.NewLocker(client), "1", false)

	require.NoError(t, bot.Send(context.Background(), nil))
	assert.Empty(t, fake.sent)
}

func TestTelegramBotChannelUsername(t *testing.T) {
	_, client := testutil.NewRedis(t)
	bot := NewTelegramBot("news_bot", "token", lock.NewLocker(client), "@mychannel", false)

	msg := bot.newMessage("hi")
	assert.Equal(t, "@mychannel", msg.ChannelUsername)
	assert.Zero(t, msg.ChatID)
}

func TestConsoleSend(t *testing.T) {
	var out strings.Builder
	console := NewConsole(&out, "> ")

	err := console.Send(context.Background(), []event.Message{
		{PostID: "a", Text: "first"},
		{PostID: "b", Text: "second"},
	})

	require.NoError(t, err)
	assert.Equal(t, "> first\n> second\n", out.String())
}

func TestRegisterExpandsConfiguredBots(t *testing.T) {
	fake := &fakeBot{}
	installFakeBot(t, fake)

	config := handler.InstanceConfig{
		"receivers": {
			"telegram_bot": {
				"news_bot": {Kwargs: map[string]any{"token": "t1"}},
			},
		},
	}
	registry := handler.NewRegistry(config)

	_, client := testutil.NewRedis(t)
	require.NoError(t, Register(registry, lock.NewLocker(client)))

	receiver, err := registry.GetReceiver("news_bot", map[string]any{"chat_id": "42"})
	require.NoError(t, err)
	assert.IsType(t, &TelegramBot{}, receiver)

	console, err := registry.GetReceiver("console", nil)
	require.NoError(t, err)
	assert.IsType(t, &Console{}, console)
}
