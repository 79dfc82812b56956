package commands

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/julezz/julezz/internal/bot"
	"github.com/julezz/julezz/internal/config"
	"github.com/julezz/julezz/internal/log"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
}

var botStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Telegram bot and the session watcher",
	Long: `Start the Telegram bot and the session watcher.

The bot needs TELEGRAM_BOT_TOKEN (or telegram_token in the config file) and
JULES_API_KEY. Users authenticate with /auth <key>; the first chat to
authenticate receives watcher notifications. The watcher polls every
JULEZZ_POLL_INTERVAL_SECONDS seconds (default 30).`,
	Args: cobra.NoArgs,
	RunE: runBotStart,
}

func init() {
	botCmd.AddCommand(botStartCmd)
}

func runBotStart(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	if rt.cfg.TelegramToken == "" {
		return errors.New("bot token is missing: set " + config.EnvTelegramToken + " or telegram_token in the config file")
	}
	if rt.cfg.LogLevel == "" {
		log.SetLevel("info")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return bot.Run(ctx, rt.store, bot.RunConfig{
		Token:        rt.cfg.TelegramToken,
		ServerKey:    rt.cfg.APIKey,
		APIURL:       rt.cfg.APIURL,
		PollInterval: rt.cfg.PollInterval(),
	})
}
