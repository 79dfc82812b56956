// Package resolve turns a user-supplied session identifier into a session ID.
//
// One token space covers three addressing modes:
//
//	@name   - alias
//	3       - 1-based roster index
//	<other> - literal session ID
package resolve

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/julezz/julezz/internal/cache"
)

// Kind classifies a resolution failure.
type Kind int

const (
	EmptyRoster Kind = iota + 1
	NonPositiveIndex
	IndexOutOfBounds
	SessionNotFound
	AliasNotFound
	StaleAlias
)

func (k Kind) String() string {
	switch k {
	case EmptyRoster:
		return "empty roster"
	case NonPositiveIndex:
		return "non-positive index"
	case IndexOutOfBounds:
		return "index out of bounds"
	case SessionNotFound:
		return "session not found"
	case AliasNotFound:
		return "alias not found"
	case StaleAlias:
		return "stale alias"
	default:
		return "unknown"
	}
}

// Error is a failed resolution.
type Error struct {
	Kind       Kind
	Identifier string
	// RosterLen is set for IndexOutOfBounds.
	RosterLen int
	// SessionID is the alias target for StaleAlias.
	SessionID string
	// Suggestions are near matches for AliasNotFound and SessionNotFound.
	Suggestions []string
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case EmptyRoster:
		msg = "no sessions cached; list sessions first"
	case NonPositiveIndex:
		msg = fmt.Sprintf("invalid index %s: indices start at 1", e.Identifier)
	case IndexOutOfBounds:
		msg = fmt.Sprintf("session index %s out of range (1-%d)", e.Identifier, e.RosterLen)
	case SessionNotFound:
		msg = fmt.Sprintf("session %q not found", e.Identifier)
	case AliasNotFound:
		msg = fmt.Sprintf("alias %q not found", e.Identifier)
	case StaleAlias:
		msg = fmt.Sprintf("alias %q points to session %s, which is no longer listed", e.Identifier, e.SessionID)
	default:
		msg = fmt.Sprintf("cannot resolve %q", e.Identifier)
	}
	if len(e.Suggestions) > 0 {
		msg += " (did you mean " + strings.Join(e.Suggestions, ", ") + "?)"
	}
	return msg
}

// Result is a resolved session.
type Result struct {
	SessionID string
	// Index is the 1-based roster position at resolution time. It is only
	// valid until the roster next changes.
	Index int
}

// Resolve maps identifier to a session in roster.
//
// A numeric identifier that is out of range but equals a cached session ID
// resolves as that ID.
func Resolve(identifier string, roster *cache.Roster, aliases cache.Aliases) (Result, error) {
	identifier = strings.TrimSpace(identifier)
	if roster == nil || roster.Len() == 0 {
		return Result{}, &Error{Kind: EmptyRoster, Identifier: identifier}
	}

	if strings.HasPrefix(identifier, cache.AliasSigil) {
		return resolveAlias(identifier, roster, aliases)
	}

	if n, err := strconv.ParseUint(identifier, 10, 64); err == nil {
		if n == 0 {
			return Result{}, &Error{Kind: NonPositiveIndex, Identifier: identifier}
		}
		if n <= uint64(roster.Len()) {
			entry, _ := roster.At(int(n))
			return Result{SessionID: entry.ID, Index: int(n)}, nil
		}
		if index, ok := roster.IndexOf(identifier); ok {
			return Result{SessionID: identifier, Index: index}, nil
		}
		return Result{}, &Error{Kind: IndexOutOfBounds, Identifier: identifier, RosterLen: roster.Len()}
	}

	index, ok := roster.IndexOf(identifier)
	if !ok {
		return Result{}, &Error{
			Kind:        SessionNotFound,
			Identifier:  identifier,
			Suggestions: findSuggestions(identifier, roster.IDs()),
		}
	}
	return Result{SessionID: identifier, Index: index}, nil
}

func resolveAlias(alias string, roster *cache.Roster, aliases cache.Aliases) (Result, error) {
	sessionID, ok := aliases[alias]
	if !ok {
		names := make([]string, 0, len(aliases))
		for name := range aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		return Result{}, &Error{
			Kind:        AliasNotFound,
			Identifier:  alias,
			Suggestions: findSuggestions(alias, names),
		}
	}

	index, ok := roster.IndexOf(sessionID)
	if !ok {
		return Result{}, &Error{Kind: StaleAlias, Identifier: alias, SessionID: sessionID}
	}
	return Result{SessionID: sessionID, Index: index}, nil
}

const maxSuggestions = 3

// findSuggestions returns up to three candidates close to target by edit
// distance, closest first.
func findSuggestions(target string, candidates []string) []string {
	type scored struct {
		name  string
		score int
	}

	targetLower := strings.ToLower(target)
	var matches []scored
	for _, c := range candidates {
		dist := levenshteinDistance(targetLower, strings.ToLower(c))
		threshold := max(len(target), len(c))/2 + 3
		if dist <= threshold {
			matches = append(matches, scored{name: c, score: dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score < matches[j].score
	})

	var out []string
	for i := 0; i < len(matches) && i < maxSuggestions; i++ {
		out = append(out, matches[i].name)
	}
	return out
}

// levenshteinDistance computes the edit distance between a and b using two
// rolling rows.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
