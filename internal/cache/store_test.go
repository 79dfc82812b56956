package cache

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/julezz/julezz/internal/client"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "state"), filepath.Join(dir, "cache"))
}

func mustStatePath(t *testing.T, s *Store, sessionID string) string {
	t.Helper()
	path, err := s.ActivityStatePath(sessionID)
	if err != nil {
		t.Fatalf("ActivityStatePath(%q) error: %v", sessionID, err)
	}
	return path
}

func sessions(ids ...string) []client.Session {
	out := make([]client.Session, len(ids))
	for i, id := range ids {
		out[i] = client.Session{ID: id, Title: "title " + id}
	}
	return out
}

func TestStore_EmptyReads(t *testing.T) {
	s := newTestStore(t)

	roster, err := s.LoadRoster()
	if err != nil || roster.Len() != 0 {
		t.Errorf("LoadRoster() = %v, %v; want empty", roster.IDs(), err)
	}
	aliases, err := s.LoadAliases()
	if err != nil || len(aliases) != 0 {
		t.Errorf("LoadAliases() = %v, %v; want empty", aliases, err)
	}
	if _, ok, err := s.OwnerTarget(); ok || err != nil {
		t.Errorf("OwnerTarget() = %v, %v; want unset", ok, err)
	}
	if cur, err := s.CurrentSession(); cur != "" || err != nil {
		t.Errorf("CurrentSession() = %q, %v; want empty", cur, err)
	}
	state, err := s.LoadActivityState("s1")
	if err != nil {
		t.Fatalf("LoadActivityState() error: %v", err)
	}
	if len(state.Stable) != 0 || len(state.Tail) != 0 || state.ContinuationToken != "" {
		t.Errorf("LoadActivityState() = %+v; want empty", state)
	}
}

func TestStore_ReconcileRoster(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.ReconcileRoster(sessions("A", "B", "C")); err != nil {
		t.Fatalf("ReconcileRoster() error: %v", err)
	}
	if err := s.SetAlias("@b", "B"); err != nil {
		t.Fatalf("SetAlias() error: %v", err)
	}
	if err := s.SetAlias("@c", "C"); err != nil {
		t.Fatalf("SetAlias() error: %v", err)
	}
	if err := s.SetCurrentSession("B"); err != nil {
		t.Fatalf("SetCurrentSession() error: %v", err)
	}

	// B vanished, D is new and listed before survivors.
	roster, err := s.ReconcileRoster(sessions("D", "C", "A"))
	if err != nil {
		t.Fatalf("ReconcileRoster() error: %v", err)
	}
	if got := roster.IDs(); !reflect.DeepEqual(got, []string{"A", "C", "D"}) {
		t.Errorf("roster = %v, want [A C D]", got)
	}

	aliases, _ := s.LoadAliases()
	if _, ok := aliases["@b"]; ok {
		t.Error("alias to vanished session should be removed")
	}
	if aliases["@c"] != "C" {
		t.Errorf("alias @c = %q, want C", aliases["@c"])
	}
	if cur, _ := s.CurrentSession(); cur != "" {
		t.Errorf("current session = %q, want cleared", cur)
	}

	persisted, _ := s.LoadRoster()
	if !reflect.DeepEqual(persisted.IDs(), roster.IDs()) {
		t.Errorf("persisted roster %v differs from returned %v", persisted.IDs(), roster.IDs())
	}
}

func TestStore_ReconcileClearsVanishedActivityRecords(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ReconcileRoster(sessions("A", "B")); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"A", "B"} {
		if err := s.SaveActivityState(id, &ActivityState{Tail: []client.Activity{{ID: "x"}}}); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.ReconcileRoster(sessions("B")); err != nil {
		t.Fatalf("ReconcileRoster() error: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(mustStatePath(t, s, "A"))); !os.IsNotExist(err) {
		t.Errorf("record of vanished session should be deleted, stat err = %v", err)
	}
	if _, err := os.Stat(mustStatePath(t, s, "B")); err != nil {
		t.Errorf("record of surviving session should remain: %v", err)
	}
}

func TestStore_ReconcileToleratesUnusableVanishedID(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveRoster(NewRoster([]CachedSession{{ID: ".."}, {ID: "A"}})); err != nil {
		t.Fatal(err)
	}
	roster, err := s.ReconcileRoster(sessions("A"))
	if err != nil {
		t.Fatalf("ReconcileRoster() error: %v", err)
	}
	if got := roster.IDs(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("roster = %v, want [A]", got)
	}
}

func TestStore_ActivityStateRejectsUnsafeSessionIDs(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveActivityState("other", &ActivityState{Tail: []client.Activity{{ID: "x"}}}); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"", ".", "..", "a/../..", "../escape", `a\b`, "a/b"} {
		t.Run(id, func(t *testing.T) {
			checkPathErr := func(op string, err error) {
				t.Helper()
				var cacheErr *Error
				if !errors.As(err, &cacheErr) || cacheErr.Op != "path" {
					t.Errorf("%s(%q) error = %v, want *Error with op path", op, id, err)
				}
				if !errors.Is(err, ErrInvalidSessionID) {
					t.Errorf("%s(%q) error = %v, want ErrInvalidSessionID", op, id, err)
				}
			}
			_, err := s.ActivityStatePath(id)
			checkPathErr("ActivityStatePath", err)
			_, err = s.LoadActivityState(id)
			checkPathErr("LoadActivityState", err)
			checkPathErr("SaveActivityState", s.SaveActivityState(id, &ActivityState{}))
			checkPathErr("ClearActivityState", s.ClearActivityState(id))
		})
	}

	if _, err := os.Stat(mustStatePath(t, s, "other")); err != nil {
		t.Errorf("unrelated record must survive: %v", err)
	}
}

func TestStore_ReconcileUpdatesTitles(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ReconcileRoster([]client.Session{{ID: "A", Title: "old"}}); err != nil {
		t.Fatal(err)
	}
	roster, err := s.ReconcileRoster([]client.Session{{ID: "A", Title: "new"}})
	if err != nil {
		t.Fatal(err)
	}
	if e, _ := roster.At(1); e.Title != "new" {
		t.Errorf("title = %q, want new", e.Title)
	}
}

func TestStore_AddAndRemoveSession(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ReconcileRoster(sessions("A", "B")); err != nil {
		t.Fatal(err)
	}

	index, err := s.AddSession(client.Session{ID: "C"})
	if err != nil || index != 3 {
		t.Fatalf("AddSession() = %d, %v; want 3", index, err)
	}
	if index, _ := s.AddSession(client.Session{ID: "A"}); index != 1 {
		t.Errorf("AddSession(existing) = %d, want 1", index)
	}

	if err := s.SetAlias("@a", "A"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAlias("@first", "A"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveActivityState("A", &ActivityState{Tail: []client.Activity{{ID: "x"}}}); err != nil {
		t.Fatal(err)
	}

	if err := s.RemoveSession("A"); err != nil {
		t.Fatalf("RemoveSession() error: %v", err)
	}
	roster, _ := s.LoadRoster()
	if got := roster.IDs(); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Errorf("roster = %v, want [B C]", got)
	}
	aliases, _ := s.LoadAliases()
	if len(aliases) != 0 {
		t.Errorf("aliases = %v, want none", aliases)
	}
	if _, err := os.Stat(filepath.Dir(mustStatePath(t, s, "A"))); !os.IsNotExist(err) {
		t.Errorf("activity record should be deleted, stat err = %v", err)
	}
}

func TestStore_Aliases(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetAlias("noSigil", "A"); err == nil {
		t.Error("SetAlias without @ should fail")
	}
	if err := s.SetAlias("@", "A"); err == nil {
		t.Error("SetAlias with bare @ should fail")
	}
	if err := s.SetAlias("@a", "A"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAlias("@a", "B"); err != nil {
		t.Fatal(err)
	}
	aliases, _ := s.LoadAliases()
	if aliases["@a"] != "B" {
		t.Errorf("@a = %q, want B", aliases["@a"])
	}

	existed, err := s.DeleteAlias("@a")
	if err != nil || !existed {
		t.Errorf("DeleteAlias(@a) = %v, %v", existed, err)
	}
	existed, err = s.DeleteAlias("@a")
	if err != nil || existed {
		t.Errorf("second DeleteAlias(@a) = %v, %v", existed, err)
	}
}

func TestStore_AliasOldFormat(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.stateDir, aliasesFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	// Older releases stored alias -> roster index.
	if err := os.WriteFile(path, []byte(`{"@a": 1}`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := s.LoadAliases()
	if !errors.Is(err, ErrAliasFormat) {
		t.Fatalf("LoadAliases() error = %v, want ErrAliasFormat", err)
	}
	var cacheErr *Error
	if !errors.As(err, &cacheErr) || cacheErr.Path != path {
		t.Errorf("expected *Error with path %s, got %v", path, err)
	}
}

func TestStore_CorruptRosterIsCacheError(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.stateDir, rosterFile)
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, []byte(`{not json`), 0644)

	_, err := s.LoadRoster()
	var cacheErr *Error
	if !errors.As(err, &cacheErr) || cacheErr.Op != "parse" {
		t.Errorf("LoadRoster() error = %v, want parse *Error", err)
	}
}

func TestStore_OwnerTargetWrittenOnce(t *testing.T) {
	s := newTestStore(t)

	wrote, err := s.SetOwnerTargetIfAbsent(42)
	if err != nil || !wrote {
		t.Fatalf("first SetOwnerTargetIfAbsent() = %v, %v", wrote, err)
	}
	wrote, err = s.SetOwnerTargetIfAbsent(99)
	if err != nil || wrote {
		t.Fatalf("second SetOwnerTargetIfAbsent() = %v, %v", wrote, err)
	}
	id, ok, err := s.OwnerTarget()
	if err != nil || !ok || id != 42 {
		t.Errorf("OwnerTarget() = %d, %v, %v; want 42", id, ok, err)
	}
}

func TestStore_ActivityStateRoundTripIsAtomic(t *testing.T) {
	s := newTestStore(t)
	state := &ActivityState{
		Stable:            []client.Activity{{ID: "1"}, {ID: "2"}},
		Tail:              []client.Activity{{ID: "3"}},
		ContinuationToken: "tok",
	}
	if err := s.SaveActivityState("s1", state); err != nil {
		t.Fatalf("SaveActivityState() error: %v", err)
	}

	path := mustStatePath(t, s, "s1")
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not exist after save")
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"version": 1`) {
		t.Errorf("record should carry version, got %s", data)
	}

	loaded, err := s.LoadActivityState("s1")
	if err != nil {
		t.Fatalf("LoadActivityState() error: %v", err)
	}
	if loaded.ContinuationToken != "tok" {
		t.Errorf("ContinuationToken = %q", loaded.ContinuationToken)
	}
	var ids []string
	for _, a := range loaded.All() {
		ids = append(ids, a.ID)
	}
	if !reflect.DeepEqual(ids, []string{"1", "2", "3"}) {
		t.Errorf("All() = %v", ids)
	}

	if err := s.ClearActivityState("s1"); err != nil {
		t.Fatal(err)
	}
	loaded, _ = s.LoadActivityState("s1")
	if len(loaded.All()) != 0 {
		t.Error("state should be empty after clear")
	}
}

func TestStore_ActivityStateUnknownVersion(t *testing.T) {
	s := newTestStore(t)
	path := mustStatePath(t, s, "s1")
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, []byte(`{"version": 7, "stable": [], "tail": []}`), 0644)

	_, err := s.LoadActivityState("s1")
	var cacheErr *Error
	if !errors.As(err, &cacheErr) {
		t.Errorf("expected *Error, got %v", err)
	}
}
