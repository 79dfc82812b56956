package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/julezz/julezz/internal/cache"
	"github.com/julezz/julezz/internal/client"
	"github.com/julezz/julezz/internal/log"
)

var (
	sessionsJSON bool

	createSource   string
	createBranch   string
	createNoAutoPR bool
	createAlias    string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Create, list and steer sessions",
	Long: `Create, list and steer sessions.

'sessions list' refreshes the local roster. Other commands address sessions
by their index in that list, by @alias, or by full ID.

Session IDs are numeric, so a number is read as an index first. A number
beyond the end of the list that equals a listed session's ID addresses that
session.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions and refresh the local roster",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create [flags] <title...>",
	Short: "Create a session",
	Long: `Create a session against a source. The title is also sent as the
initial prompt.

Example:
  julezz sessions create --source github/acme/api --alias @fix "Fix the flaky login test"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSessionsCreate,
}

var sessionsGetCmd = &cobra.Command{
	Use:   "get <session>",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsGet,
}

var sessionsApproveCmd = &cobra.Command{
	Use:   "approve-plan <session>",
	Short: "Approve the pending plan of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsApprove,
}

var sessionsSendCmd = &cobra.Command{
	Use:   "send-message <session> <message...>",
	Short: "Send a message to a session",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSessionsSend,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsUseCmd = &cobra.Command{
	Use:   "use <session>",
	Short: "Set the current session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsUse,
}

var sessionsCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE:  runSessionsCurrent,
}

func init() {
	sessionsCmd.PersistentFlags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")

	sessionsCreateCmd.Flags().StringVarP(&createSource, "source", "s", "", "Source ID, e.g. github/owner/repo (required)")
	sessionsCreateCmd.Flags().StringVarP(&createBranch, "branch", "b", "main", "Starting branch")
	sessionsCreateCmd.Flags().BoolVar(&createNoAutoPR, "no-auto-pr", false, "Do not open a pull request automatically")
	sessionsCreateCmd.Flags().StringVarP(&createAlias, "alias", "a", "", "Alias for the new session, e.g. @fix")
	_ = sessionsCreateCmd.MarkFlagRequired("source")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsGetCmd)
	sessionsCmd.AddCommand(sessionsApproveCmd)
	sessionsCmd.AddCommand(sessionsSendCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsAliasCmd)
	sessionsCmd.AddCommand(sessionsUseCmd)
	sessionsCmd.AddCommand(sessionsCurrentCmd)
}

// sessionListing is the JSON form of 'sessions list'.
type sessionListing struct {
	Index   int      `json:"index"`
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	State   string   `json:"state"`
	Aliases []string `json:"aliases,omitempty"`
}

func runSessionsList(cmd *cobra.Command, args []string) error {
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

	live, err := c.ListSessions(ctx)
	if err != nil {
		return err
	}
	roster, err := rt.store.ReconcileRoster(live)
	if err != nil {
		return err
	}
	aliases, err := rt.store.LoadAliases()
	if err != nil {
		return err
	}
	current, err := rt.store.CurrentSession()
	if err != nil {
		log.Warn().Err(err).Msg("reading current session")
	}

	states := make(map[string]string, len(live))
	for _, s := range live {
		states[s.ID] = s.StateOrUnknown()
	}
	listing := buildSessionListing(roster, states, aliases)
	printOutput(cmd.OutOrStdout(), listing, sessionsJSON, func() string {
		return formatSessionsListOutput(listing, current)
	})
	return nil
}

func buildSessionListing(roster *cache.Roster, states map[string]string, aliases cache.Aliases) []sessionListing {
	listing := make([]sessionListing, 0, roster.Len())
	for i, e := range roster.Entries() {
		listing = append(listing, sessionListing{
			Index:   i + 1,
			ID:      e.ID,
			Title:   e.Title,
			State:   states[e.ID],
			Aliases: aliasesFor(aliases, e.ID),
		})
	}
	return listing
}

func formatSessionsListOutput(listing []sessionListing, current string) string {
	var sb strings.Builder
	sb.WriteString(paint(headerStyle, "Jules Sessions") + "\n")
	if len(listing) == 0 {
		sb.WriteString("No sessions.\n")
		return sb.String()
	}
	width := len(fmt.Sprint(len(listing)))
	for _, s := range listing {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s%*d. %s", marker, width, s.Index, s.ID)
		if len(s.Aliases) > 0 {
			sb.WriteString(" " + paint(aliasStyle, strings.Join(s.Aliases, ", ")))
		}
		title := s.Title
		if title == "" {
			title = paint(dimStyle, "(untitled)")
		}
		sb.WriteString(": " + title)
		if s.State != "" {
			sb.WriteString(" [" + paintState(s.State) + "]")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// aliasesFor returns the aliases pointing at sessionID, sorted.
func aliasesFor(aliases cache.Aliases, sessionID string) []string {
	var names []string
	for name, target := range aliases {
		if target == sessionID {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func runSessionsCreate(cmd *cobra.Command, args []string) error {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		return fmt.Errorf("a title is required")
	}
	if createAlias != "" && !cache.ValidAliasName(createAlias) {
		return fmt.Errorf("invalid alias %q: must start with %s and contain no spaces", createAlias, cache.AliasSigil)
	}

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

	req := newCreateSessionRequest(title, createSource, createBranch, !createNoAutoPR)
	session, err := c.CreateSession(ctx, req)
	if err != nil {
		return err
	}

	index, err := rt.store.AddSession(*session)
	if err != nil {
		return fmt.Errorf("session %s created but the local roster could not be updated: %w", session.ID, err)
	}
	if createAlias != "" {
		if err := rt.store.SetAlias(createAlias, session.ID); err != nil {
			return fmt.Errorf("session %s created but the alias could not be saved: %w", session.ID, err)
		}
	}

	printOutput(cmd.OutOrStdout(), session, sessionsJSON, func() string {
		return formatCreatedOutput(session, index, createAlias)
	})
	return nil
}

func newCreateSessionRequest(title, source, branch string, autoPR bool) *client.CreateSessionRequest {
	req := &client.CreateSessionRequest{
		Prompt: title,
		Title:  title,
		SourceContext: client.SourceContext{
			Source:            sourceName(source),
			GithubRepoContext: &client.GithubRepoContext{StartingBranch: branch},
		},
	}
	if autoPR {
		req.AutomationMode = client.AutomationAutoCreatePR
	}
	return req
}

func formatCreatedOutput(s *client.Session, index int, alias string) string {
	var sb strings.Builder
	sb.WriteString("Session created:\n")
	fmt.Fprintf(&sb, "%d. %s: %s (%s)\n", index, s.ID, s.Title, paintState(s.StateOrUnknown()))
	if alias != "" {
		fmt.Fprintf(&sb, "Alias %s now points to it.\n", paint(aliasStyle, alias))
	}
	return sb.String()
}

func runSessionsGet(cmd *cobra.Command, args []string) error {
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

	session, err := c.GetSession(ctx, res.SessionID)
	if err != nil {
		return err
	}
	printOutput(cmd.OutOrStdout(), session, sessionsJSON, func() string {
		return formatSessionOutput(session, res.Index)
	})
	return nil
}

func formatSessionOutput(s *client.Session, index int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", paint(headerStyle, fmt.Sprintf("%d.", index)), s.ID)
	fmt.Fprintf(&sb, "  title:  %s\n", s.Title)
	fmt.Fprintf(&sb, "  state:  %s\n", paintState(s.StateOrUnknown()))
	if sc := s.SourceContext; sc != nil {
		fmt.Fprintf(&sb, "  source: %s\n", strings.TrimPrefix(sc.Source, "sources/"))
		if sc.GithubRepoContext != nil && sc.GithubRepoContext.StartingBranch != "" {
			fmt.Fprintf(&sb, "  branch: %s\n", sc.GithubRepoContext.StartingBranch)
		}
	}
	if s.PullRequestURL != "" {
		fmt.Fprintf(&sb, "  pull request: %s\n", s.PullRequestURL)
	}
	return sb.String()
}

func runSessionsApprove(cmd *cobra.Command, args []string) error {
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

	if err := c.ApprovePlan(ctx, res.SessionID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Plan approved for session %d (%s).\n", res.Index, res.SessionID)
	return nil
}

func runSessionsSend(cmd *cobra.Command, args []string) error {
	message := strings.TrimSpace(strings.Join(args[1:], " "))
	if message == "" {
		return fmt.Errorf("message must not be empty")
	}
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

	if err := c.SendMessage(ctx, res.SessionID, message); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Message sent to session %d (%s).\n", res.Index, res.SessionID)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
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

	if err := c.DeleteSession(ctx, res.SessionID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s deleted.\n", res.SessionID)

	if err := rt.store.RemoveSession(res.SessionID); err != nil {
		return fmt.Errorf("session deleted but the local cache could not be updated: %w", err)
	}
	return nil
}

func runSessionsUse(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	res, err := rt.resolve(args[0])
	if err != nil {
		return err
	}
	if err := rt.store.SetCurrentSession(res.SessionID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Current session is now %d (%s).\n", res.Index, res.SessionID)
	return nil
}

func runSessionsCurrent(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	current, err := rt.store.CurrentSession()
	if err != nil {
		return err
	}
	if current == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No current session. Use 'julezz sessions use <session>' to set one.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", current, rt.cachedTitle(current))
	return nil
}
