package cache

import (
	"encoding/json"

	"github.com/julezz/julezz/internal/client"
)

// CachedSession is a roster entry.
type CachedSession struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	SourceContext *client.SourceContext `json:"sourceContext,omitempty"`
}

// FromSession converts a remote session into a roster entry.
func FromSession(s client.Session) CachedSession {
	return CachedSession{ID: s.ID, Title: s.Title, SourceContext: s.SourceContext}
}

// Roster is the ordered list of known sessions. A session's index is its
// 1-based position. Entries are only appended or removed, never reordered,
// so indices of surviving sessions shift only when an earlier entry is
// removed.
type Roster struct {
	entries []CachedSession
	pos     map[string]int
}

// NewRoster builds a roster from entries in order. Duplicate IDs keep the
// first occurrence.
func NewRoster(entries []CachedSession) *Roster {
	r := &Roster{pos: make(map[string]int, len(entries))}
	for _, e := range entries {
		r.Append(e)
	}
	return r
}

// Len returns the number of sessions.
func (r *Roster) Len() int {
	return len(r.entries)
}

// Entries returns a copy of the entries in roster order.
func (r *Roster) Entries() []CachedSession {
	out := make([]CachedSession, len(r.entries))
	copy(out, r.entries)
	return out
}

// At returns the entry at the 1-based index.
func (r *Roster) At(index int) (CachedSession, bool) {
	if index < 1 || index > len(r.entries) {
		return CachedSession{}, false
	}
	return r.entries[index-1], true
}

// IndexOf returns the 1-based index of id.
func (r *Roster) IndexOf(id string) (int, bool) {
	i, ok := r.pos[id]
	if !ok {
		return 0, false
	}
	return i + 1, true
}

// Contains reports whether id is in the roster.
func (r *Roster) Contains(id string) bool {
	_, ok := r.pos[id]
	return ok
}

// Append adds e at the end. It returns false if the ID is already present.
func (r *Roster) Append(e CachedSession) bool {
	if r.pos == nil {
		r.pos = make(map[string]int)
	}
	if _, ok := r.pos[e.ID]; ok {
		return false
	}
	r.pos[e.ID] = len(r.entries)
	r.entries = append(r.entries, e)
	return true
}

// Update replaces the entry with the same ID in place.
func (r *Roster) Update(e CachedSession) bool {
	i, ok := r.pos[e.ID]
	if !ok {
		return false
	}
	r.entries[i] = e
	return true
}

// Remove deletes id, shifting later entries down by one.
func (r *Roster) Remove(id string) bool {
	i, ok := r.pos[id]
	if !ok {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	delete(r.pos, id)
	for j := i; j < len(r.entries); j++ {
		r.pos[r.entries[j].ID] = j
	}
	return true
}

// IDs returns the session IDs in roster order.
func (r *Roster) IDs() []string {
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID
	}
	return ids
}

// MarshalJSON encodes the roster as an array of entries.
func (r *Roster) MarshalJSON() ([]byte, error) {
	if r.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.entries)
}

// UnmarshalJSON decodes an array of entries.
func (r *Roster) UnmarshalJSON(data []byte) error {
	var entries []CachedSession
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*r = *NewRoster(entries)
	return nil
}
