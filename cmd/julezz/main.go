// julezz - command-line client and Telegram bot for Jules sessions
//
// Talks to the Jules API to create and steer coding sessions:
// 1. Keeps a local roster so sessions can be addressed by index or @alias
// 2. Caches each session's activity log and extends it incrementally
// 3. Runs a Telegram bot that relays new agent activity to its owner
package main

import (
	"os"

	"github.com/julezz/julezz/internal/commands"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	if err := commands.Execute(); err != nil {
		commands.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
