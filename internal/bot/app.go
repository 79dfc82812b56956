// Package bot implements the julezz chat bot: command handling, the shared
// authentication state, and delivery of watcher notifications.
package bot

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/julezz/julezz/internal/cache"
	"github.com/julezz/julezz/internal/client"
	"github.com/julezz/julezz/internal/log"
	"github.com/julezz/julezz/internal/resolve"
	actsync "github.com/julezz/julezz/internal/sync"
	"github.com/julezz/julezz/internal/watcher"
)

// Messenger sends chat messages.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, markdown bool) error
}

// Incoming is a chat message addressed to the bot.
type Incoming struct {
	ChatID int64
	// Command is the command name without the leading slash, or "" for plain
	// text.
	Command string
	// Args is the text after the command, or the whole message for plain text.
	Args string
}

// ClientFactory builds an API client for a key.
type ClientFactory func(baseURL, apiKey string) (API, error)

func defaultClientFactory(baseURL, apiKey string) (API, error) {
	c, err := client.New(baseURL, apiKey)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options configures an App.
type Options struct {
	// ServerKey is the API key /auth must present.
	ServerKey string
	APIURL    string
	NewClient ClientFactory
}

// App is the bot's application context, threaded through every handler.
type App struct {
	Auth      *AuthState
	Store     *cache.Store
	Engine    *actsync.Engine
	Messenger Messenger

	serverKey string
	apiURL    string
	newClient ClientFactory
}

// NewApp wires an App. The sync engine pages through the AuthState, so it
// fails with client.ErrAPIKeyMissing until /auth succeeds.
func NewApp(store *cache.Store, messenger Messenger, opts Options) *App {
	auth := &AuthState{}
	newClient := opts.NewClient
	if newClient == nil {
		newClient = defaultClientFactory
	}
	return &App{
		Auth:      auth,
		Store:     store,
		Engine:    actsync.New(auth, store),
		Messenger: messenger,
		serverKey: opts.ServerKey,
		apiURL:    opts.APIURL,
		newClient: newClient,
	}
}

const helpText = `These commands are supported:
/help - display this text.
/auth <key> - authenticate with your Jules API key.
/list - list available sessions.
/send <session> <message> - send a message to a session.
/use <session> - make a session current; plain messages go to it.
/approve <session> - approve the pending plan of a session.
/activities <session> [n] - show the latest activities of a session.

<session> is an index from /list, an @alias or a session ID.`

const notAuthenticated = "You are not authenticated. Please use the `/auth` command to provide your API key."

// Handle processes one incoming message and replies to its chat.
func (a *App) Handle(ctx context.Context, in Incoming) error {
	logger := log.Debug().Int64("chat_id", in.ChatID)
	if in.Command != "" {
		logger = logger.Str("command", in.Command)
	}
	logger.Msg("handling message")

	switch in.Command {
	case "help", "start":
		return a.reply(ctx, in.ChatID, helpText)
	case "auth":
		return a.handleAuth(ctx, in)
	case "list":
		return a.handleList(ctx, in)
	case "send":
		ident, message := splitIdent(in.Args)
		if ident == "" || message == "" {
			return a.reply(ctx, in.ChatID, "Invalid format. Use: /send <session> <message>")
		}
		return a.handleSend(ctx, in.ChatID, ident, message)
	case "use":
		return a.handleUse(ctx, in)
	case "approve":
		return a.handleApprove(ctx, in)
	case "activities":
		return a.handleActivities(ctx, in)
	case "":
		return a.handlePlainText(ctx, in)
	default:
		return a.reply(ctx, in.ChatID, "Unknown command. Use /help to see what I can do.")
	}
}

func (a *App) handleAuth(ctx context.Context, in Incoming) error {
	key := strings.TrimSpace(in.Args)
	if key == "" || a.serverKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.serverKey)) != 1 {
		log.Warn().Int64("chat_id", in.ChatID).Msg("rejected /auth attempt")
		return a.reply(ctx, in.ChatID, "Authentication failed: Invalid API key.")
	}

	api, err := a.newClient(a.apiURL, key)
	if err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	a.Auth.Set(api)
	log.Info().Int64("chat_id", in.ChatID).Msg("bot authenticated")
	if err := a.reply(ctx, in.ChatID, "Authentication successful!"); err != nil {
		return err
	}

	wrote, err := a.Store.SetOwnerTargetIfAbsent(in.ChatID)
	if err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	if wrote {
		return a.reply(ctx, in.ChatID, "Your chat ID has been saved as the owner.")
	}
	return nil
}

func (a *App) handleList(ctx context.Context, in Incoming) error {
	api, ok := a.Auth.Client()
	if !ok {
		return a.reply(ctx, in.ChatID, notAuthenticated)
	}
	sessions, err := api.ListSessions(ctx)
	if err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	roster, err := a.Store.ReconcileRoster(sessions)
	if err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	aliases, err := a.Store.LoadAliases()
	if err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	states := make(map[string]string, len(sessions))
	for _, s := range sessions {
		states[s.ID] = s.StateOrUnknown()
	}
	return a.replyMarkdown(ctx, in.ChatID, formatSessionList(roster, states, aliases))
}

func (a *App) handleSend(ctx context.Context, chatID int64, ident, message string) error {
	api, ok := a.Auth.Client()
	if !ok {
		return a.reply(ctx, chatID, notAuthenticated)
	}
	res, err := a.resolve(ident)
	if err != nil {
		return a.replyError(ctx, chatID, err)
	}
	if err := api.SendMessage(ctx, res.SessionID, message); err != nil {
		return a.replyError(ctx, chatID, err)
	}
	return a.reply(ctx, chatID, "Message sent successfully!")
}

func (a *App) handleUse(ctx context.Context, in Incoming) error {
	ident := strings.TrimSpace(in.Args)
	if ident == "" {
		return a.reply(ctx, in.ChatID, "Invalid format. Use: /use <session>")
	}
	res, err := a.resolve(ident)
	if err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	if err := a.Store.SetCurrentSession(res.SessionID); err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	return a.reply(ctx, in.ChatID, fmt.Sprintf("Current session is now %d (%s).", res.Index, res.SessionID))
}

func (a *App) handleApprove(ctx context.Context, in Incoming) error {
	api, ok := a.Auth.Client()
	if !ok {
		return a.reply(ctx, in.ChatID, notAuthenticated)
	}
	ident := strings.TrimSpace(in.Args)
	if ident == "" {
		return a.reply(ctx, in.ChatID, "Invalid format. Use: /approve <session>")
	}
	res, err := a.resolve(ident)
	if err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	if err := api.ApprovePlan(ctx, res.SessionID); err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	return a.reply(ctx, in.ChatID, "Plan approved.")
}

const defaultActivityCount = 5

func (a *App) handleActivities(ctx context.Context, in Incoming) error {
	if !a.Auth.Ready() {
		return a.reply(ctx, in.ChatID, notAuthenticated)
	}
	fields := strings.Fields(in.Args)
	if len(fields) == 0 || len(fields) > 2 {
		return a.reply(ctx, in.ChatID, "Invalid format. Use: /activities <session> [n]")
	}
	n := defaultActivityCount
	if len(fields) == 2 {
		parsed, err := strconv.Atoi(fields[1])
		if err != nil || parsed < 1 {
			return a.reply(ctx, in.ChatID, "The activity count must be a positive number.")
		}
		n = parsed
	}

	res, err := a.resolve(fields[0])
	if err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	activities, stale, err := a.Engine.SyncOrCached(ctx, res.SessionID)
	if err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	if len(activities) > n {
		activities = activities[len(activities)-n:]
	}

	title := res.SessionID
	if roster, err := a.Store.LoadRoster(); err == nil {
		if e, ok := roster.At(res.Index); ok && e.Title != "" {
			title = e.Title
		}
	}
	text := formatActivities(title, activities)
	if stale != nil {
		text += formatStaleNote(describeError(stale))
	}
	return a.replyMarkdown(ctx, in.ChatID, text)
}

func (a *App) handlePlainText(ctx context.Context, in Incoming) error {
	text := strings.TrimSpace(in.Args)
	if text == "" {
		return nil
	}
	current, err := a.Store.CurrentSession()
	if err != nil {
		return a.replyError(ctx, in.ChatID, err)
	}
	if current == "" {
		return a.reply(ctx, in.ChatID, "No current session. Pick one with /use <session>, or use /send.")
	}
	return a.handleSend(ctx, in.ChatID, current, text)
}

// splitIdent splits args into the first word and the trimmed remainder.
func splitIdent(args string) (ident, rest string) {
	args = strings.TrimSpace(args)
	i := strings.IndexFunc(args, unicode.IsSpace)
	if i < 0 {
		return args, ""
	}
	return args[:i], strings.TrimSpace(args[i:])
}

func (a *App) resolve(ident string) (resolve.Result, error) {
	roster, err := a.Store.LoadRoster()
	if err != nil {
		return resolve.Result{}, err
	}
	aliases, err := a.Store.LoadAliases()
	if err != nil {
		return resolve.Result{}, err
	}
	return resolve.Resolve(ident, roster, aliases)
}

// Ready reports whether the watcher may run: a client is installed and an
// owner chat is known.
func (a *App) Ready() bool {
	if !a.Auth.Ready() {
		return false
	}
	_, ok, err := a.Store.OwnerTarget()
	if err != nil {
		log.Error().Err(err).Msg("reading owner target")
		return false
	}
	return ok
}

// Notify delivers a watcher notification to the owner chat.
func (a *App) Notify(ctx context.Context, n watcher.Notification) error {
	owner, ok, err := a.Store.OwnerTarget()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no owner chat to notify")
	}
	return a.Messenger.Send(ctx, owner, FormatNotification(n), true)
}

// NewWatcher returns a watcher that uses this App for listing, syncing,
// delivery and readiness.
func (a *App) NewWatcher(interval time.Duration) *watcher.Watcher {
	w := watcher.New(a.Auth, a.Engine, a, interval)
	w.Ready = a.Ready
	return w
}

func (a *App) reply(ctx context.Context, chatID int64, text string) error {
	return a.Messenger.Send(ctx, chatID, text, false)
}

func (a *App) replyMarkdown(ctx context.Context, chatID int64, text string) error {
	return a.Messenger.Send(ctx, chatID, text, true)
}

// replyError reports err to the chat. Auth failures are worded distinctly
// from other API failures.
func (a *App) replyError(ctx context.Context, chatID int64, err error) error {
	log.Warn().Err(err).Int64("chat_id", chatID).Msg("command failed")
	return a.reply(ctx, chatID, "Error: "+describeError(err))
}

func describeError(err error) string {
	var apiErr *client.Error
	var transportErr *client.TransportError
	switch {
	case errors.Is(err, client.ErrAPIKeyMissing):
		return "not authenticated; use /auth first"
	case errors.Is(err, cache.ErrAliasFormat):
		return "Your aliases file is in an old format. Please delete it and re-create your aliases."
	case errors.As(err, &apiErr) && apiErr.IsAuthError():
		return fmt.Sprintf("the API rejected the key (status %d)", apiErr.StatusCode)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("API error (%d): %s", apiErr.StatusCode, strings.TrimSpace(apiErr.Body))
	case errors.As(err, &transportErr):
		return "could not reach the Jules API"
	default:
		return err.Error()
	}
}
