package bot

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/julezz/julezz/internal/cache"
	"github.com/julezz/julezz/internal/client"
	"github.com/julezz/julezz/internal/watcher"
)

// escape quotes text for MarkdownV2.
func escape(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, text)
}

// FormatNotification renders a watcher notification as MarkdownV2.
func FormatNotification(n watcher.Notification) string {
	title := escape(n.SessionTitle)
	switch n.Kind {
	case client.KindAgentMessage:
		return fmt.Sprintf("New message in session *%s*:\n%s", title, escape(n.Detail))
	case client.KindPlanGenerated:
		return fmt.Sprintf("Plan generated for session *%s* \\(%d steps\\)\\.", title, n.PlanSteps)
	case client.KindProgressUpdated:
		return fmt.Sprintf("Progress update for session *%s*:\n%s", title, escape(n.Detail))
	case client.KindArtifacts:
		return fmt.Sprintf("New artifacts generated for session *%s*\\.", title)
	case client.KindSessionCompleted:
		return fmt.Sprintf("Session *%s* completed\\.", title)
	default:
		return fmt.Sprintf("New activity in session *%s*\\.", title)
	}
}

// formatSessionList renders the roster with aliases as MarkdownV2.
func formatSessionList(roster *cache.Roster, states map[string]string, aliases cache.Aliases) string {
	if roster.Len() == 0 {
		return "No sessions found\\."
	}

	byID := make(map[string][]string)
	for name, id := range aliases {
		byID[id] = append(byID[id], name)
	}

	var sb strings.Builder
	sb.WriteString("*Sessions*\n")
	for i, s := range roster.Entries() {
		fmt.Fprintf(&sb, "%d\\. `%s`", i+1, escape(s.ID))
		if names := byID[s.ID]; len(names) > 0 {
			sort.Strings(names)
			fmt.Fprintf(&sb, " \\(%s\\)", escape(strings.Join(names, ", ")))
		}
		fmt.Fprintf(&sb, ": %s", escape(s.Title))
		if state := states[s.ID]; state != "" {
			fmt.Fprintf(&sb, " \\[%s\\]", escape(state))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatActivities renders the last activities of a session as MarkdownV2.
func formatActivities(title string, activities []client.Activity) string {
	if len(activities) == 0 {
		return fmt.Sprintf("No activities in session *%s*\\.", escape(title))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Latest activities in session *%s*:\n", escape(title))
	for _, a := range activities {
		fmt.Fprintf(&sb, "• _%s_ %s\n", escape(string(a.Kind())), escape(truncate(a.Summary(), 300)))
	}
	return sb.String()
}

// formatStaleNote marks a reply built from the cache after a failed refresh.
func formatStaleNote(reason string) string {
	return fmt.Sprintf("\n_Showing cached activities; refresh failed: %s_", escape(reason))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
