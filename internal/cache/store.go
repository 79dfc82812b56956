// Package cache is the on-disk store shared by every julezz invocation.
//
// Global records live in the state directory:
//
//	sessions.json        - roster (ordered array of sessions)
//	aliases.json         - alias name to session ID
//	owner_target.txt     - chat that receives notifications
//	current_session.txt  - default session for un-addressed messages
//
// Per-session activity records live in <cache dir>/<session id>/activities.json.
//
// Every write replaces the whole file via write-temp-then-rename. Missing
// files read as empty values.
//
// IMPORTANT: Concurrent access from several processes is not supported. The
// last writer wins.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/julezz/julezz/internal/client"
)

const (
	rosterFile         = "sessions.json"
	aliasesFile        = "aliases.json"
	ownerTargetFile    = "owner_target.txt"
	currentSessionFile = "current_session.txt"
	activitiesFile     = "activities.json"
)

// AliasSigil prefixes every alias name.
const AliasSigil = "@"

// ActivityStateVersion is the current activities.json record version.
const ActivityStateVersion = 1

// ErrAliasFormat means aliases.json was written by an older release with an
// incompatible shape.
var ErrAliasFormat = errors.New("your aliases file is in an old format; please delete it and re-create your aliases")

// ErrInvalidSessionID means a session ID cannot be used as a cache
// directory name.
var ErrInvalidSessionID = errors.New("invalid session ID")

// Error is a local file read, write or parse failure.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Aliases maps alias names (with the @ sigil) to session IDs.
type Aliases map[string]string

// ActivityState is the persisted sync state of one session.
//
// Stable holds activities from pages the server has paginated past; it only
// grows. Tail holds the last page seen without a next-page token and is
// replaced on every sync. ContinuationToken is the token that produced Tail,
// empty when Tail is the first page.
type ActivityState struct {
	Version           int               `json:"version"`
	Stable            []client.Activity `json:"stable"`
	Tail              []client.Activity `json:"tail"`
	ContinuationToken string            `json:"continuation_token,omitempty"`
	SyncedAt          time.Time         `json:"synced_at,omitempty"`
}

// All returns stable followed by tail.
func (s *ActivityState) All() []client.Activity {
	out := make([]client.Activity, 0, len(s.Stable)+len(s.Tail))
	out = append(out, s.Stable...)
	return append(out, s.Tail...)
}

// Store reads and writes cache files.
type Store struct {
	stateDir string
	cacheDir string
}

// New returns a store rooted at the given directories. Directories are
// created on first write.
func New(stateDir, cacheDir string) *Store {
	return &Store{stateDir: stateDir, cacheDir: cacheDir}
}

func (s *Store) statePath(name string) string {
	return filepath.Join(s.stateDir, name)
}

// sessionDir returns the per-session cache directory. The ID must be a
// single path element so it cannot name the cache root or escape it.
func (s *Store) sessionDir(sessionID string) (string, error) {
	if sessionID == "" || sessionID == "." || sessionID == ".." ||
		sessionID != filepath.Base(sessionID) || strings.ContainsAny(sessionID, `/\`) {
		return "", &Error{Op: "path", Path: s.cacheDir, Err: fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)}
	}
	return filepath.Join(s.cacheDir, sessionID), nil
}

// ActivityStatePath returns the activities record path for a session.
func (s *Store) ActivityStatePath(sessionID string) (string, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, activitiesFile), nil
}

// LoadRoster returns the cached roster.
func (s *Store) LoadRoster() (*Roster, error) {
	r := NewRoster(nil)
	if err := readJSON(s.statePath(rosterFile), r); err != nil {
		return nil, err
	}
	return r, nil
}

// SaveRoster replaces the cached roster.
func (s *Store) SaveRoster(r *Roster) error {
	return writeJSON(s.statePath(rosterFile), r)
}

// LoadAliases returns the alias map.
func (s *Store) LoadAliases() (Aliases, error) {
	path := s.statePath(aliasesFile)
	aliases := Aliases{}
	if err := readJSON(path, &aliases); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &Error{Op: "parse", Path: path, Err: ErrAliasFormat}
		}
		return nil, err
	}
	return aliases, nil
}

// SaveAliases replaces the alias map.
func (s *Store) SaveAliases(a Aliases) error {
	if a == nil {
		a = Aliases{}
	}
	return writeJSON(s.statePath(aliasesFile), a)
}

// ReconcileRoster diffs the cached roster against the live session list.
// Sessions no longer live are removed along with aliases pointing at them,
// their activity records and the current-session pointer if it named one.
// Survivors keep their positions and pick up new titles. New sessions are
// appended in the order given.
func (s *Store) ReconcileRoster(live []client.Session) (*Roster, error) {
	roster, err := s.LoadRoster()
	if err != nil {
		return nil, err
	}
	aliases, err := s.LoadAliases()
	if err != nil {
		return nil, err
	}

	liveIDs := make(map[string]bool, len(live))
	for _, sess := range live {
		liveIDs[sess.ID] = true
	}

	var vanished []string
	for _, id := range roster.IDs() {
		if !liveIDs[id] {
			vanished = append(vanished, id)
		}
	}
	for _, id := range vanished {
		roster.Remove(id)
	}
	aliasesChanged := removeAliasesFor(aliases, vanished)

	for _, sess := range live {
		entry := FromSession(sess)
		if !roster.Append(entry) {
			roster.Update(entry)
		}
	}

	if err := s.SaveRoster(roster); err != nil {
		return nil, err
	}
	if aliasesChanged {
		if err := s.SaveAliases(aliases); err != nil {
			return nil, err
		}
	}
	if len(vanished) > 0 {
		if err := s.clearCurrentIfIn(vanished); err != nil {
			return nil, err
		}
	}
	for _, id := range vanished {
		// An ID that is not a valid directory name never had a record.
		if err := s.ClearActivityState(id); err != nil && !errors.Is(err, ErrInvalidSessionID) {
			return nil, err
		}
	}
	return roster, nil
}

// AddSession appends a session to the roster if it is not already present
// and returns its 1-based index.
func (s *Store) AddSession(sess client.Session) (int, error) {
	roster, err := s.LoadRoster()
	if err != nil {
		return 0, err
	}
	if roster.Append(FromSession(sess)) {
		if err := s.SaveRoster(roster); err != nil {
			return 0, err
		}
	}
	index, _ := roster.IndexOf(sess.ID)
	return index, nil
}

// RemoveSession drops a session from the roster together with its aliases,
// the current-session pointer if it named it, and its activity record.
func (s *Store) RemoveSession(id string) error {
	roster, err := s.LoadRoster()
	if err != nil {
		return err
	}
	aliases, err := s.LoadAliases()
	if err != nil {
		return err
	}

	if roster.Remove(id) {
		if err := s.SaveRoster(roster); err != nil {
			return err
		}
	}
	if removeAliasesFor(aliases, []string{id}) {
		if err := s.SaveAliases(aliases); err != nil {
			return err
		}
	}
	if err := s.clearCurrentIfIn([]string{id}); err != nil {
		return err
	}
	return s.ClearActivityState(id)
}

func removeAliasesFor(aliases Aliases, ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	changed := false
	for name, target := range aliases {
		if gone[target] {
			delete(aliases, name)
			changed = true
		}
	}
	return changed
}

// ValidAliasName reports whether name is @ followed by at least one
// non-space character.
func ValidAliasName(name string) bool {
	rest, ok := strings.CutPrefix(name, AliasSigil)
	return ok && rest != "" && !strings.ContainsAny(rest, " \t\n@")
}

// SetAlias points alias at sessionID, replacing any previous target.
func (s *Store) SetAlias(alias, sessionID string) error {
	if !ValidAliasName(alias) {
		return fmt.Errorf("invalid alias %q: must start with %s and contain no spaces", alias, AliasSigil)
	}
	aliases, err := s.LoadAliases()
	if err != nil {
		return err
	}
	aliases[alias] = sessionID
	return s.SaveAliases(aliases)
}

// DeleteAlias removes alias. It reports whether the alias existed.
func (s *Store) DeleteAlias(alias string) (bool, error) {
	aliases, err := s.LoadAliases()
	if err != nil {
		return false, err
	}
	if _, ok := aliases[alias]; !ok {
		return false, nil
	}
	delete(aliases, alias)
	return true, s.SaveAliases(aliases)
}

// OwnerTarget returns the chat that receives notifications.
func (s *Store) OwnerTarget() (int64, bool, error) {
	path := s.statePath(ownerTargetFile)
	raw, err := readText(path)
	if err != nil || raw == "" {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, &Error{Op: "parse", Path: path, Err: err}
	}
	return id, true, nil
}

// SetOwnerTargetIfAbsent records chatID as the owner unless one is already
// set. It reports whether chatID was written.
func (s *Store) SetOwnerTargetIfAbsent(chatID int64) (bool, error) {
	if _, ok, err := s.OwnerTarget(); err != nil || ok {
		return false, err
	}
	if err := writeFileAtomic(s.statePath(ownerTargetFile), []byte(strconv.FormatInt(chatID, 10))); err != nil {
		return false, err
	}
	return true, nil
}

// CurrentSession returns the current session ID, or "" if none is set.
func (s *Store) CurrentSession() (string, error) {
	return readText(s.statePath(currentSessionFile))
}

// SetCurrentSession sets the current session.
func (s *Store) SetCurrentSession(sessionID string) error {
	return writeFileAtomic(s.statePath(currentSessionFile), []byte(sessionID))
}

func (s *Store) clearCurrentIfIn(ids []string) error {
	current, err := s.CurrentSession()
	if err != nil || current == "" {
		return err
	}
	for _, id := range ids {
		if id == current {
			return removeFile(s.statePath(currentSessionFile))
		}
	}
	return nil
}

// LoadActivityState returns the persisted sync state for a session, or an
// empty state if none exists.
func (s *Store) LoadActivityState(sessionID string) (*ActivityState, error) {
	path, err := s.ActivityStatePath(sessionID)
	if err != nil {
		return nil, err
	}
	state := &ActivityState{Version: ActivityStateVersion}
	if err := readJSON(path, state); err != nil {
		return nil, err
	}
	if state.Version != ActivityStateVersion {
		return nil, &Error{Op: "parse", Path: path, Err: fmt.Errorf("unsupported record version %d", state.Version)}
	}
	return state, nil
}

// SaveActivityState replaces the persisted sync state for a session.
func (s *Store) SaveActivityState(sessionID string, state *ActivityState) error {
	path, err := s.ActivityStatePath(sessionID)
	if err != nil {
		return err
	}
	state.Version = ActivityStateVersion
	return writeJSON(path, state)
}

// ClearActivityState deletes the persisted sync state for a session.
func (s *Store) ClearActivityState(sessionID string) error {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return &Error{Op: "remove", Path: dir, Err: err}
	}
	return nil
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &Error{Op: "read", Path: path, Err: err}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Error{Op: "parse", Path: path, Err: err}
	}
	return nil
}

func writeJSON(path string, v any) error {
	// Marshal with indentation for human readability
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &Error{Op: "encode", Path: path, Err: err}
	}
	return writeFileAtomic(path, data)
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &Error{Op: "read", Path: path, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

// writeFileAtomic writes to a temp file first, then renames it over path.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return &Error{Op: "write", Path: path, Err: err}
	}
	return nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &Error{Op: "remove", Path: path, Err: err}
	}
	return nil
}
