package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/julezz/julezz/internal/cache"
)

var aliasDelete bool

var sessionsAliasCmd = &cobra.Command{
	Use:   "alias [@alias [session]]",
	Short: "List, set or delete session aliases",
	Long: `List, set or delete session aliases.

With no arguments, lists all aliases. With an alias and a session, points the
alias at that session. With --delete, removes the alias.

Examples:
  julezz sessions alias
  julezz sessions alias @api 3
  julezz sessions alias --delete @api`,
	Args: cobra.MaximumNArgs(2),
	RunE: runSessionsAlias,
}

func init() {
	sessionsAliasCmd.Flags().BoolVarP(&aliasDelete, "delete", "d", false, "Delete the alias")
}

func runSessionsAlias(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch {
	case aliasDelete:
		if len(args) != 1 {
			return fmt.Errorf("--delete takes exactly one alias")
		}
		existed, err := rt.store.DeleteAlias(args[0])
		if err != nil {
			return err
		}
		if !existed {
			return fmt.Errorf("alias %s does not exist", args[0])
		}
		fmt.Fprintf(out, "Alias %s deleted.\n", args[0])
		return nil

	case len(args) == 2:
		if !cache.ValidAliasName(args[0]) {
			return fmt.Errorf("invalid alias %q: must start with %s and contain no spaces", args[0], cache.AliasSigil)
		}
		if strings.HasPrefix(args[1], cache.AliasSigil) {
			return fmt.Errorf("an alias must point at a session index or ID, not another alias")
		}
		res, err := rt.resolve(args[1])
		if err != nil {
			return err
		}
		if err := rt.store.SetAlias(args[0], res.SessionID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Alias %s now points to session %d (%s).\n", args[0], res.Index, res.SessionID)
		return nil

	case len(args) == 1:
		return fmt.Errorf("missing session for alias %s", args[0])
	}

	aliases, err := rt.store.LoadAliases()
	if err != nil {
		return err
	}
	roster, err := rt.store.LoadRoster()
	if err != nil {
		return err
	}
	printOutput(out, aliases, sessionsJSON, func() string {
		return formatAliasesOutput(aliases, roster)
	})
	return nil
}

func formatAliasesOutput(aliases cache.Aliases, roster *cache.Roster) string {
	if len(aliases) == 0 {
		return "No aliases.\n"
	}
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(paint(headerStyle, "Aliases") + "\n")
	for _, name := range names {
		id := aliases[name]
		fmt.Fprintf(&sb, "%s -> ", paint(aliasStyle, name))
		if index, ok := roster.IndexOf(id); ok {
			e, _ := roster.At(index)
			fmt.Fprintf(&sb, "%d. %s: %s\n", index, id, e.Title)
		} else {
			fmt.Fprintf(&sb, "%s %s\n", id, paint(dimStyle, "(not in roster)"))
		}
	}
	return sb.String()
}
