package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/julezz/julezz/internal/client"
)

var sourcesJSON bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List and inspect sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the sources Jules can work on",
	Args:  cobra.NoArgs,
	RunE:  runSourcesList,
}

var sourcesGetCmd = &cobra.Command{
	Use:   "get <source-id>",
	Short: "Show one source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesGet,
}

func init() {
	sourcesCmd.PersistentFlags().BoolVar(&sourcesJSON, "json", false, "Output as JSON")
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesGetCmd)
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	c, err := rt.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
	defer cancel()

	sources, err := c.ListSources(ctx)
	if err != nil {
		return err
	}
	printOutput(cmd.OutOrStdout(), sources, sourcesJSON, func() string {
		return formatSourcesOutput(sources)
	})
	return nil
}

func runSourcesGet(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	c, err := rt.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
	defer cancel()

	source, err := c.GetSource(ctx, strings.TrimPrefix(args[0], "sources/"))
	if err != nil {
		return err
	}
	printOutput(cmd.OutOrStdout(), source, sourcesJSON, func() string {
		return fmt.Sprintf("%s\n  name: %s\n", paint(headerStyle, source.ID), source.Name)
	})
	return nil
}

func formatSourcesOutput(sources []client.Source) string {
	if len(sources) == 0 {
		return "No sources.\n"
	}
	var sb strings.Builder
	sb.WriteString(paint(headerStyle, "Sources") + "\n")
	for _, s := range sources {
		fmt.Fprintf(&sb, "- %s %s\n", s.ID, paint(dimStyle, "("+s.Name+")"))
	}
	return sb.String()
}

// sourceName returns the resource name for a source ID such as
// "github/owner/repo". Full names pass through unchanged.
func sourceName(id string) string {
	if strings.HasPrefix(id, "sources/") {
		return id
	}
	return "sources/" + id
}
