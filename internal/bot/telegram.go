package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/julezz/julezz/internal/cache"
	"github.com/julezz/julezz/internal/log"
)

// longPollTimeout is the getUpdates timeout in seconds.
const longPollTimeout = 60

// Telegram is a Messenger backed by the Telegram Bot API.
type Telegram struct {
	api *tgbotapi.BotAPI
}

// NewTelegram connects to Telegram with token.
func NewTelegram(token string) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is not set (TELEGRAM_BOT_TOKEN)")
	}
	if err := tgbotapi.SetLogger(log.StdLogger(zerolog.WarnLevel)); err != nil {
		return nil, fmt.Errorf("setting telegram logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return &Telegram{api: api}, nil
}

// Send sends text to chatID, as MarkdownV2 if markdown is set.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string, markdown bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdownV2
	}
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

var commandMenu = []tgbotapi.BotCommand{
	{Command: "help", Description: "display the help text"},
	{Command: "auth", Description: "authenticate with your Jules API key"},
	{Command: "list", Description: "list available sessions"},
	{Command: "send", Description: "send a message to a session"},
	{Command: "use", Description: "set the current session"},
	{Command: "approve", Description: "approve the pending plan of a session"},
	{Command: "activities", Description: "show the latest activities of a session"},
}

// registerCommands publishes the command menu. Failure only affects the
// client-side menu.
func (t *Telegram) registerCommands() {
	if _, err := t.api.Request(tgbotapi.NewSetMyCommands(commandMenu...)); err != nil {
		log.Warn().Err(err).Msg("failed to register bot commands")
	}
}

// errUpdatesClosed is returned when the update stream ends while the bot is
// still meant to be running.
var errUpdatesClosed = errors.New("telegram update channel closed")

// Serve feeds updates to app until ctx is done. Updates are handled one at a
// time.
func (t *Telegram) Serve(ctx context.Context, app *App) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = longPollTimeout
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()
	return serveUpdates(ctx, updates, app)
}

func serveUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel, app *App) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return errUpdatesClosed
			}
			in, ok := toIncoming(update)
			if !ok {
				continue
			}
			if err := app.Handle(ctx, in); err != nil {
				log.Error().Err(err).Int64("chat_id", in.ChatID).Msg("failed to handle message")
			}
		}
	}
}

func toIncoming(update tgbotapi.Update) (Incoming, bool) {
	m := update.Message
	if m == nil || m.Chat == nil {
		return Incoming{}, false
	}
	if m.IsCommand() {
		return Incoming{ChatID: m.Chat.ID, Command: m.Command(), Args: m.CommandArguments()}, true
	}
	return Incoming{ChatID: m.Chat.ID, Args: m.Text}, true
}

// RunConfig configures Run.
type RunConfig struct {
	Token        string
	ServerKey    string
	APIURL       string
	PollInterval time.Duration
}

// Run starts the bot and its watcher and blocks until ctx is done.
func Run(ctx context.Context, store *cache.Store, cfg RunConfig) error {
	if cfg.ServerKey == "" {
		return errors.New("the bot needs JULES_API_KEY set so /auth can verify keys")
	}
	tg, err := NewTelegram(cfg.Token)
	if err != nil {
		return err
	}
	log.Info().Str("bot", tg.api.Self.UserName).Dur("poll_interval", cfg.PollInterval).Msg("starting bot")
	tg.registerCommands()

	app := NewApp(store, tg, Options{ServerKey: cfg.ServerKey, APIURL: cfg.APIURL})
	w := app.NewWatcher(cfg.PollInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return tg.Serve(gctx, app)
	})
	err = g.Wait()
	log.Info().Msg("bot stopped")
	return err
}
