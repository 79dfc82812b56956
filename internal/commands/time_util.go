package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/julezz/julezz/internal/client"
)

func parseTimeBestEffort(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, true
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

// formatTimeAgo formats a timestamp relative to now, falling back to the raw
// value when it does not parse.
func formatTimeAgo(timestamp string, now time.Time) string {
	ts, ok := parseTimeBestEffort(timestamp)
	if !ok {
		return timestamp
	}
	d := now.Sub(ts)
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds ago", secs)
	}
	mins := secs / 60
	if mins < 60 {
		return fmt.Sprintf("%dm ago", mins)
	}
	hours := mins / 60
	if hours < 48 {
		return fmt.Sprintf("%dh ago", hours)
	}
	return fmt.Sprintf("%dd ago", hours/24)
}

// sortByCreateTime orders activities oldest first. Unparseable timestamps
// keep their log position relative to each other and sort first.
func sortByCreateTime(activities []client.Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		ti, _ := parseTimeBestEffort(activities[i].CreateTime)
		tj, _ := parseTimeBestEffort(activities[j].CreateTime)
		return ti.Before(tj)
	})
}

// lastN returns the newest n activities, or all of them when n <= 0.
func lastN(activities []client.Activity, n int) []client.Activity {
	if n <= 0 || n >= len(activities) {
		return activities
	}
	return activities[len(activities)-n:]
}
