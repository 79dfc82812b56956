// Package sync keeps a local copy of each session's activity log and brings
// it up to date with as few remote page reads as possible.
//
// The remote log is append-only but paginated "as of now": every page the
// server has advanced past (it returned a next-page token) can never change,
// while the last page may still grow. Sealed pages are appended to the
// record's stable list once and never fetched again. The last page is kept as
// the tail together with the token that produced it, and is re-fetched on
// every sync.
//
// IMPORTANT: Concurrent syncs of one session are collapsed within a process,
// but not across processes. Two processes syncing the same session race on
// the record file and the last writer wins.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/julezz/julezz/internal/cache"
	"github.com/julezz/julezz/internal/client"
	"github.com/julezz/julezz/internal/log"
)

// ErrPaginationLoop is returned when the server hands back the token that
// was just requested as the next-page token.
var ErrPaginationLoop = errors.New("activity pagination returned the requested page token as next token")

// Pager fetches one page of a session's activity log. An empty pageToken
// requests the first page.
type Pager interface {
	ListActivities(ctx context.Context, sessionID, pageToken string) (*client.ListActivitiesResponse, error)
}

// StateStore persists per-session sync records.
type StateStore interface {
	LoadActivityState(sessionID string) (*cache.ActivityState, error)
	SaveActivityState(sessionID string, state *cache.ActivityState) error
	ClearActivityState(sessionID string) error
}

// AnomalyError means the remote log no longer extends the cached tail, so it
// is not append-only from this client's point of view. The cache is left
// untouched; resetting the session's record recovers.
type AnomalyError struct {
	SessionID string
	// CachedTail is the number of activities in the cached tail.
	CachedTail int
	// Fetched is the number of activities read from the resume point.
	Fetched int
	// Position is the first tail position that did not match, or -1 when
	// the fetched log was simply shorter.
	Position int
}

func (e *AnomalyError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("activity log of session %s shrank: cached tail has %d entries, server returned %d", e.SessionID, e.CachedTail, e.Fetched)
	}
	return fmt.Sprintf("activity log of session %s was rewritten at tail position %d", e.SessionID, e.Position)
}

// ResumeError is a remote failure on the first request of a resumed sync,
// the one that presents the persisted continuation token. An expired token
// surfaces this way; resetting the record recovers.
type ResumeError struct {
	SessionID string
	Err       error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("fetching activities of session %s from the saved page token: %v", e.SessionID, e.Err)
}

func (e *ResumeError) Unwrap() error {
	return e.Err
}

// Engine syncs activity logs through a Pager into a StateStore.
type Engine struct {
	pager Pager
	store StateStore
	group singleflight.Group
	now   func() time.Time
}

// New returns an engine. An engine with a nil pager can only read the cache;
// Sync fails with client.ErrAPIKeyMissing.
func New(pager Pager, store StateStore) *Engine {
	return &Engine{
		pager: pager,
		store: store,
		now:   time.Now,
	}
}

// Sync brings the session's record up to date and returns the full log in
// server order. On any error the record is left as it was.
//
// Concurrent calls for the same session share one fetch.
func (e *Engine) Sync(ctx context.Context, sessionID string) ([]client.Activity, error) {
	v, err, shared := e.group.Do(sessionID, func() (any, error) {
		return e.sync(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("session_id", sessionID).Msg("activity sync shared with concurrent caller")
	}
	activities := v.([]client.Activity)
	return append([]client.Activity(nil), activities...), nil
}

func (e *Engine) sync(ctx context.Context, sessionID string) ([]client.Activity, error) {
	state, err := e.store.LoadActivityState(sessionID)
	if err != nil {
		return nil, err
	}

	var (
		token       = state.ContinuationToken
		newlyStable []client.Activity
		tail        []client.Activity
		tailToken   string
		pages       int
	)
	if e.pager == nil {
		return nil, client.ErrAPIKeyMissing
	}
	for {
		page, err := e.pager.ListActivities(ctx, sessionID, token)
		if err != nil {
			if pages == 0 && token != "" {
				return nil, &ResumeError{SessionID: sessionID, Err: err}
			}
			return nil, fmt.Errorf("fetching activities of session %s: %w", sessionID, err)
		}
		pages++

		if page.NextPageToken == "" {
			tail = page.Activities
			tailToken = token
			break
		}
		if page.NextPageToken == token {
			return nil, ErrPaginationLoop
		}
		newlyStable = append(newlyStable, page.Activities...)
		token = page.NextPageToken
	}

	if err := checkExtendsTail(sessionID, state.Tail, newlyStable, tail); err != nil {
		return nil, err
	}

	next := &cache.ActivityState{
		Stable:            append(state.Stable, newlyStable...),
		Tail:              tail,
		ContinuationToken: tailToken,
		SyncedAt:          e.now().UTC(),
	}
	if err := e.store.SaveActivityState(sessionID, next); err != nil {
		return nil, err
	}

	log.Debug().
		Str("session_id", sessionID).
		Int("pages", pages).
		Int("sealed", len(newlyStable)).
		Int("stable", len(next.Stable)).
		Int("tail", len(tail)).
		Bool("resumed", state.ContinuationToken != "").
		Msg("activities synced")

	return next.All(), nil
}

// checkExtendsTail verifies that the activities read from the resume point
// start with the previously cached tail.
func checkExtendsTail(sessionID string, cachedTail, sealed, tail []client.Activity) error {
	fetched := len(sealed) + len(tail)
	if fetched < len(cachedTail) {
		return &AnomalyError{SessionID: sessionID, CachedTail: len(cachedTail), Fetched: fetched, Position: -1}
	}
	for i, want := range cachedTail {
		var got client.Activity
		if i < len(sealed) {
			got = sealed[i]
		} else {
			got = tail[i-len(sealed)]
		}
		if got.ID != want.ID {
			return &AnomalyError{SessionID: sessionID, CachedTail: len(cachedTail), Fetched: fetched, Position: i}
		}
	}
	return nil
}

// SyncOrCached syncs the session like Sync. When the server fails with an
// API or transport error it serves the cached log instead and reports the
// remote failure as stale. Any other error is returned as err.
func (e *Engine) SyncOrCached(ctx context.Context, sessionID string) (activities []client.Activity, stale error, err error) {
	activities, err = e.Sync(ctx, sessionID)
	if err == nil {
		return activities, nil, nil
	}
	var (
		apiErr       *client.Error
		transportErr *client.TransportError
	)
	if !errors.As(err, &apiErr) && !errors.As(err, &transportErr) {
		return nil, nil, err
	}
	cached, cacheErr := e.ReadCached(sessionID)
	if cacheErr != nil {
		return nil, nil, err
	}
	log.Warn().Err(err).Str("session_id", sessionID).Int("cached", len(cached)).Msg("activity sync failed, serving cached log")
	return cached, err, nil
}

// ReadCached returns the cached log without contacting the server.
func (e *Engine) ReadCached(sessionID string) ([]client.Activity, error) {
	state, err := e.store.LoadActivityState(sessionID)
	if err != nil {
		return nil, err
	}
	return state.All(), nil
}

// Reset forgets the session's record so the next Sync starts from page one.
func (e *Engine) Reset(sessionID string) error {
	return e.store.ClearActivityState(sessionID)
}
