// Package commands implements the julezz CLI commands.
package commands

import (
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/julezz/julezz/internal/config"
)

var versionInfo struct {
	version string
	commit  string
	date    string
}

// SetVersionInfo sets version information from main (populated by goreleaser).
func SetVersionInfo(version, commit, date string) {
	versionInfo.version = version
	versionInfo.commit = commit
	versionInfo.date = date
}

func versionString() string {
	v := versionInfo.version
	if v == "" {
		v = "dev"
	}
	if versionInfo.commit != "" && versionInfo.commit != "none" {
		v += fmt.Sprintf(" (commit %s", versionInfo.commit)
		if versionInfo.date != "" && versionInfo.date != "unknown" {
			v += ", built " + versionInfo.date
		}
		v += ")"
	}
	return v
}

var (
	apiKeyFlag     string
	configPathFlag string
	logLevelFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "julezz",
	Short: "Command-line client and chat bot for Jules sessions",
	Long: `julezz talks to the Jules API: list sources, create and steer sessions,
and read each session's activity log from a local incremental cache.

Sessions are addressed by their index from 'julezz sessions list', by an
@alias, or by their full ID.

Configuration (highest precedence first):
  --api-key / --config / --log-level flags
  Environment: JULES_API_KEY, JULES_API_URL, JULEZZ_LOG_LEVEL,
               JULEZZ_POLL_INTERVAL_SECONDS, JULEZZ_STATE_DIR, JULEZZ_CACHE_DIR,
               TELEGRAM_BOT_TOKEN
  .env in the current directory or next to the config file
  Config file: <user config dir>/julezz/config.yaml`,
	// Don't show usage/errors on errors from subcommands (main.go handles errors)
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.SetPath(configPathFlag)
		loadDotenvBestEffort()
	},
}

func init() {
	// Disable cobra's auto-generated completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "Jules API key (overrides JULES_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "Path to an alternate config file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(activitiesCmd)
	rootCmd.AddCommand(botCmd)
}

func loadDotenvBestEffort() {
	// godotenv never overrides variables that are already set, so the
	// current directory wins over the config directory.
	_ = godotenv.Load()
	if path, err := config.FindPath(); err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	}
}

// Execute runs the root command. Returned errors are already phrased for
// the user.
func Execute() error {
	rootCmd.Version = versionString()
	return describeError(rootCmd.Execute())
}
