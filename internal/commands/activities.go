package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/julezz/julezz/internal/client"
)

var (
	activitiesJSON bool

	fetchReset bool

	listCount   int
	listRefresh bool
	listRaw     bool
)

var activitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Read a session's activity log",
	Long: `Read a session's activity log.

Activities are kept in a local cache that is extended incrementally: only
pages the server has not yet paginated past are fetched again.`,
}

var activitiesFetchCmd = &cobra.Command{
	Use:   "fetch <session>",
	Short: "Sync and print all activities of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivitiesFetch,
}

var activitiesListCmd = &cobra.Command{
	Use:   "list <session>",
	Short: "Print the latest cached activities of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivitiesList,
}

var activitiesGetCmd = &cobra.Command{
	Use:   "get <session> <activity-id>",
	Short: "Show one activity",
	Args:  cobra.ExactArgs(2),
	RunE:  runActivitiesGet,
}

func init() {
	activitiesCmd.PersistentFlags().BoolVar(&activitiesJSON, "json", false, "Output as JSON")

	activitiesFetchCmd.Flags().BoolVar(&fetchReset, "reset", false, "Discard the local cache and fetch from the first page")

	activitiesListCmd.Flags().IntVarP(&listCount, "count", "n", 5, "Number of activities to show (0 for all)")
	activitiesListCmd.Flags().BoolVarP(&listRefresh, "refresh", "r", false, "Sync with the server before listing")
	activitiesListCmd.Flags().BoolVar(&listRaw, "raw", false, "Print all activities as raw JSON")

	activitiesCmd.AddCommand(activitiesFetchCmd)
	activitiesCmd.AddCommand(activitiesListCmd)
	activitiesCmd.AddCommand(activitiesGetCmd)
}

func runActivitiesFetch(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	res, err := rt.resolve(args[0])
	if err != nil {
		return err
	}
	c, err := rt.client()
	if err != nil {
		return err
	}
	engine := rt.engine(c)
	if fetchReset {
		if err := engine.Reset(res.SessionID); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
	defer cancel()
	activities, err := engine.Sync(ctx, res.SessionID)
	if err != nil {
		return err
	}
	sortByCreateTime(activities)

	title := rt.cachedTitle(res.SessionID)
	printOutput(cmd.OutOrStdout(), activities, activitiesJSON, func() string {
		return formatActivitiesOutput(title, activities, len(activities), time.Now())
	})
	return nil
}

func runActivitiesList(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	res, err := rt.resolve(args[0])
	if err != nil {
		return err
	}

	var activities []client.Activity
	if listRefresh {
		c, err := rt.client()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
		defer cancel()
		var stale error
		activities, stale, err = rt.engine(c).SyncOrCached(ctx, res.SessionID)
		if err != nil {
			return err
		}
		if stale != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s showing cached activities, refresh failed: %v\n",
				paint(errorStyle, "Warning:"), describeError(stale))
		}
	} else {
		activities, err = rt.engine(nil).ReadCached(res.SessionID)
		if err != nil {
			return err
		}
	}
	sortByCreateTime(activities)

	out := cmd.OutOrStdout()
	if listRaw {
		fmt.Fprint(out, marshalJSONOrFallback(activities))
		return nil
	}
	if len(activities) == 0 && !listRefresh {
		fmt.Fprintf(out, "No cached activities. Run 'julezz activities fetch %s' or pass --refresh.\n", args[0])
		return nil
	}

	shown := lastN(activities, listCount)
	title := rt.cachedTitle(res.SessionID)
	printOutput(out, shown, activitiesJSON, func() string {
		return formatActivitiesOutput(title, shown, len(activities), time.Now())
	})
	return nil
}

func runActivitiesGet(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	res, err := rt.resolve(args[0])
	if err != nil {
		return err
	}
	c, err := rt.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
	defer cancel()

	activity, err := c.GetActivity(ctx, res.SessionID, args[1])
	if err != nil {
		return err
	}
	printOutput(cmd.OutOrStdout(), activity, activitiesJSON, func() string {
		return formatActivityOutput(activity)
	})
	return nil
}

// summaryWidth caps a single summary line in list output.
const summaryWidth = 200

func formatActivitiesOutput(title string, activities []client.Activity, total int, now time.Time) string {
	var sb strings.Builder
	header := fmt.Sprintf("Activities for %s", title)
	if len(activities) < total {
		header += fmt.Sprintf(" (latest %d of %d)", len(activities), total)
	}
	sb.WriteString(paint(headerStyle, header) + "\n")
	if len(activities) == 0 {
		sb.WriteString("No activities.\n")
		return sb.String()
	}
	for _, a := range activities {
		fmt.Fprintf(&sb, "- %s %s %s %s: %s\n",
			paint(dimStyle, formatTimeAgo(a.CreateTime, now)),
			paintOriginator(a.Originator),
			a.ID,
			paint(dimStyle, string(a.Kind())),
			firstLine(a.Summary(), summaryWidth),
		)
	}
	return sb.String()
}

func formatActivityOutput(a *client.Activity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", paint(headerStyle, "Activity "+a.ID+":"))
	fmt.Fprintf(&sb, "- %s: %s\n", a.ID, a.Name)
	fmt.Fprintf(&sb, "  created:    %s\n", a.CreateTime)
	fmt.Fprintf(&sb, "  originator: %s\n", paintOriginator(a.Originator))
	fmt.Fprintf(&sb, "  kind:       %s\n", a.Kind())
	fmt.Fprintf(&sb, "\n%s\n", a.Summary())

	if a.PlanGenerated != nil {
		for i, step := range a.PlanGenerated.Plan.Steps {
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, step.Title)
			if step.Description != "" {
				fmt.Fprintf(&sb, "     %s\n", paint(dimStyle, step.Description))
			}
		}
	}
	for _, art := range a.Artifacts {
		if art.BashOutput != nil {
			fmt.Fprintf(&sb, "\n$ %s\n%s\n", art.BashOutput.Command, strings.TrimRight(art.BashOutput.Output, "\n"))
		}
		if art.ChangeSet != nil {
			cs := art.ChangeSet
			fmt.Fprintf(&sb, "\nChange set against %s", cs.GitPatch.BaseCommitID)
			if cs.SuggestedCommitMessage != "" {
				fmt.Fprintf(&sb, " (%s)", firstLine(cs.SuggestedCommitMessage, summaryWidth))
			}
			sb.WriteString("\n")
			if cs.GitPatch.UnidiffPatch != "" {
				sb.WriteString(strings.TrimRight(cs.GitPatch.UnidiffPatch, "\n") + "\n")
			}
		}
	}
	return sb.String()
}

func paintOriginator(originator string) string {
	switch originator {
	case client.OriginatorAgent:
		return paint(agentStyle, originator)
	case client.OriginatorUser:
		return paint(userStyle, originator)
	default:
		return paint(dimStyle, originator)
	}
}

// firstLine returns the first line of s, cut to width runes.
func firstLine(s string, width int) string {
	line, _, more := strings.Cut(strings.TrimSpace(s), "\n")
	r := []rune(line)
	if len(r) > width {
		return string(r[:width-1]) + "…"
	}
	if more {
		return line + " …"
	}
	return line
}
