package commands

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/julezz/julezz/internal/cache"
	"github.com/julezz/julezz/internal/client"
	"github.com/julezz/julezz/internal/resolve"
	actsync "github.com/julezz/julezz/internal/sync"
)

func init() {
	useColor = false
}

func TestFormatSessionsListOutput(t *testing.T) {
	roster := cache.NewRoster([]cache.CachedSession{
		{ID: "111", Title: "Fix login"},
		{ID: "222", Title: ""},
	})
	aliases := cache.Aliases{"@z": "111", "@a": "111"}
	states := map[string]string{"111": "COMPLETED", "222": "IN_PROGRESS"}

	listing := buildSessionListing(roster, states, aliases)
	if got := listing[0].Aliases; len(got) != 2 || got[0] != "@a" || got[1] != "@z" {
		t.Fatalf("aliases = %v, want [@a @z]", got)
	}

	out := formatSessionsListOutput(listing, "222")
	want := "Jules Sessions\n" +
		" 1. 111 @a, @z: Fix login [COMPLETED]\n" +
		"*2. 222: (untitled) [IN_PROGRESS]\n"
	if out != want {
		t.Errorf("output mismatch\ngot:\n%s\nwant:\n%s", out, want)
	}
}

func TestFormatSessionsListOutput_Empty(t *testing.T) {
	out := formatSessionsListOutput(nil, "")
	if !strings.Contains(out, "No sessions.") {
		t.Errorf("expected empty message, got %q", out)
	}
}

func TestNewCreateSessionRequest(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		autoPR     bool
		wantSource string
		wantMode   string
	}{
		{"short source with auto PR", "github/acme/api", true, "sources/github/acme/api", client.AutomationAutoCreatePR},
		{"full source without auto PR", "sources/github/acme/api", false, "sources/github/acme/api", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newCreateSessionRequest("Fix it", tt.source, "dev", tt.autoPR)
			if req.SourceContext.Source != tt.wantSource {
				t.Errorf("source = %q, want %q", req.SourceContext.Source, tt.wantSource)
			}
			if req.AutomationMode != tt.wantMode {
				t.Errorf("automation mode = %q, want %q", req.AutomationMode, tt.wantMode)
			}
			if req.Prompt != "Fix it" || req.Title != "Fix it" {
				t.Errorf("prompt/title = %q/%q", req.Prompt, req.Title)
			}
			if req.SourceContext.GithubRepoContext.StartingBranch != "dev" {
				t.Errorf("branch = %q", req.SourceContext.GithubRepoContext.StartingBranch)
			}
		})
	}
}

func TestFormatCreatedOutput(t *testing.T) {
	s := &client.Session{ID: "333", Title: "New", State: "QUEUED"}
	out := formatCreatedOutput(s, 3, "@new")
	want := "Session created:\n3. 333: New (QUEUED)\nAlias @new now points to it.\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestFormatSessionOutput(t *testing.T) {
	s := &client.Session{
		ID:    "42",
		Title: "Docs",
		SourceContext: &client.SourceContext{
			Source:            "sources/github/acme/api",
			GithubRepoContext: &client.GithubRepoContext{StartingBranch: "main"},
		},
		PullRequestURL: "https://github.com/acme/api/pull/7",
	}
	out := formatSessionOutput(s, 2)
	for _, want := range []string{"2. 42", "title:  Docs", "state:  UNKNOWN", "source: github/acme/api", "branch: main", "pull/7"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatAliasesOutput(t *testing.T) {
	roster := cache.NewRoster([]cache.CachedSession{{ID: "s1", Title: "One"}})
	aliases := cache.Aliases{"@one": "s1", "@gone": "s9"}

	out := formatAliasesOutput(aliases, roster)
	want := "Aliases\n@gone -> s9 (not in roster)\n@one -> 1. s1: One\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
	if got := formatAliasesOutput(cache.Aliases{}, roster); got != "No aliases.\n" {
		t.Errorf("empty aliases = %q", got)
	}
}

func TestFormatSourcesOutput(t *testing.T) {
	out := formatSourcesOutput([]client.Source{{ID: "github/acme/api", Name: "sources/github/acme/api"}})
	if !strings.Contains(out, "- github/acme/api (sources/github/acme/api)") {
		t.Errorf("unexpected output %q", out)
	}
	if got := formatSourcesOutput(nil); got != "No sources.\n" {
		t.Errorf("empty = %q", got)
	}
}

func TestSortByCreateTimeAndLastN(t *testing.T) {
	acts := []client.Activity{
		{ID: "c", CreateTime: "2025-01-01T10:00:03Z"},
		{ID: "a", CreateTime: "2025-01-01T10:00:01Z"},
		{ID: "b", CreateTime: "2025-01-01T10:00:02.5Z"},
	}
	sortByCreateTime(acts)
	if acts[0].ID != "a" || acts[1].ID != "b" || acts[2].ID != "c" {
		t.Fatalf("order = %s%s%s, want abc", acts[0].ID, acts[1].ID, acts[2].ID)
	}

	tests := []struct {
		n    int
		want string
	}{
		{0, "abc"},
		{2, "bc"},
		{5, "abc"},
		{-1, "abc"},
	}
	for _, tt := range tests {
		var got string
		for _, a := range lastN(acts, tt.n) {
			got += a.ID
		}
		if got != tt.want {
			t.Errorf("lastN(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ts   string
		want string
	}{
		{"2025-01-10T11:59:30Z", "30s ago"},
		{"2025-01-10T11:15:00Z", "45m ago"},
		{"2025-01-09T12:00:00Z", "24h ago"},
		{"2025-01-05T12:00:00Z", "5d ago"},
		{"2025-01-10T12:05:00Z", "0s ago"},
		{"yesterday", "yesterday"},
	}
	for _, tt := range tests {
		if got := formatTimeAgo(tt.ts, now); got != tt.want {
			t.Errorf("formatTimeAgo(%q) = %q, want %q", tt.ts, got, tt.want)
		}
	}
}

func TestFormatActivitiesOutput(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	acts := []client.Activity{
		{
			ID: "a1", CreateTime: "2025-01-10T11:00:00Z", Originator: client.OriginatorAgent,
			AgentMessaged: &client.AgentMessaged{AgentMessage: "Done\nmore detail"},
		},
		{
			ID: "a2", CreateTime: "2025-01-10T11:30:00Z", Originator: client.OriginatorUser,
			UserMessaged: &client.UserMessaged{UserMessage: "thanks"},
		},
	}
	out := formatActivitiesOutput("Build", acts, 4, now)
	want := "Activities for Build (latest 2 of 4)\n" +
		"- 1h ago agent a1 agent_message: Done …\n" +
		"- 30m ago user a2 user_message: thanks\n"
	if out != want {
		t.Errorf("output mismatch\ngot:\n%s\nwant:\n%s", out, want)
	}
}

func TestFormatActivityOutput(t *testing.T) {
	a := &client.Activity{
		ID: "p1", Name: "sessions/1/activities/p1", Originator: client.OriginatorAgent,
		PlanGenerated: &client.PlanGenerated{Plan: client.Plan{Steps: []client.Step{
			{Title: "Read code", Description: "look around"},
			{Title: "Write fix"},
		}}},
		Artifacts: []client.Artifact{{BashOutput: &client.BashOutput{Command: "go test ./...", Output: "ok\n"}}},
	}
	out := formatActivityOutput(a)
	for _, want := range []string{
		"Activity p1:",
		"- p1: sessions/1/activities/p1",
		"Plan generated (2 steps)",
		"1. Read code",
		"look around",
		"2. Write fix",
		"$ go test ./...\nok\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("  one line  ", 20); got != "one line" {
		t.Errorf("got %q", got)
	}
	if got := firstLine("first\nsecond", 20); got != "first …" {
		t.Errorf("got %q", got)
	}
	if got := firstLine("abcdefghij", 5); got != "abcd…" {
		t.Errorf("got %q", got)
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"missing key", fmt.Errorf("listing: %w", client.ErrAPIKeyMissing), "API key is missing"},
		{"auth", &client.Error{StatusCode: 401, Body: "nope"}, "authentication failed (401)"},
		{"api", &client.Error{StatusCode: 500, Body: " boom \n"}, "API error (500): boom"},
		{"transport", &client.TransportError{Err: errors.New("dial tcp: refused")}, "cannot reach the Jules API: dial tcp: refused"},
		{"alias format", &cache.Error{Op: "parse", Path: "aliases.json", Err: cache.ErrAliasFormat}, "old format"},
		{"empty roster", &resolve.Error{Kind: resolve.EmptyRoster, Identifier: "1"}, "run 'julezz sessions list' first"},
		{"anomaly", &actsync.AnomalyError{SessionID: "s1", Position: -1}, "activities fetch s1 --reset"},
		{"pagination loop", actsync.ErrPaginationLoop, "inconsistent page token"},
		{"expired resume token", &actsync.ResumeError{SessionID: "s7", Err: &client.Error{StatusCode: 400, Body: "token expired"}}, "API error (400): token expired; the saved page token may have expired, run 'julezz activities fetch s7 --reset'"},
		{"rejected key on resume", &actsync.ResumeError{SessionID: "s7", Err: &client.Error{StatusCode: 403}}, "authentication failed (403)"},
		{"unreachable on resume", &actsync.ResumeError{SessionID: "s7", Err: &client.TransportError{Err: errors.New("timeout")}}, "cannot reach the Jules API: timeout"},
		{"other", errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeError(tt.err)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if got == nil || !strings.Contains(got.Error(), tt.want) {
				t.Errorf("describeError() = %v, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestMarshalJSONOrFallback(t *testing.T) {
	if got := marshalJSONOrFallback(map[string]int{"a": 1}); got != "{\n  \"a\": 1\n}\n" {
		t.Errorf("got %q", got)
	}
	if got := marshalJSONOrFallback(make(chan int)); !strings.Contains(got, "failed to marshal JSON output") {
		t.Errorf("fallback = %q", got)
	}
}

func TestVersionString(t *testing.T) {
	defer SetVersionInfo("", "", "")

	SetVersionInfo("1.2.0", "abc123", "2025-01-01")
	if got := versionString(); got != "1.2.0 (commit abc123, built 2025-01-01)" {
		t.Errorf("got %q", got)
	}
	SetVersionInfo("", "none", "unknown")
	if got := versionString(); got != "dev" {
		t.Errorf("got %q", got)
	}
}
