// Package watcher polls every session's activity log and announces the
// newest agent activity once.
package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/julezz/julezz/internal/client"
	"github.com/julezz/julezz/internal/log"
)

// SessionLister lists live sessions.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]client.Session, error)
}

// Syncer returns a session's full activity log.
type Syncer interface {
	Sync(ctx context.Context, sessionID string) ([]client.Activity, error)
}

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notification announces one agent activity.
type Notification struct {
	SessionID    string
	SessionTitle string
	ActivityID   string
	Kind         client.Kind
	// Detail is the message text for agent messages and the progress title
	// for progress updates.
	Detail string
	// PlanSteps is the step count for generated plans.
	PlanSteps int
}

// NotificationFor describes a, or reports false if its kind is not
// announced.
func NotificationFor(s client.Session, a client.Activity) (Notification, bool) {
	n := Notification{
		SessionID:    s.ID,
		SessionTitle: s.Title,
		ActivityID:   a.ID,
		Kind:         a.Kind(),
	}
	// A completion that carries the final artifacts is announced as artifacts.
	if n.Kind == client.KindSessionCompleted && len(a.Artifacts) > 0 {
		n.Kind = client.KindArtifacts
	}
	switch n.Kind {
	case client.KindAgentMessage:
		n.Detail = a.AgentMessaged.AgentMessage
	case client.KindPlanGenerated:
		n.PlanSteps = len(a.PlanGenerated.Plan.Steps)
	case client.KindProgressUpdated:
		n.Detail = a.ProgressUpdated.Title
		if n.Detail == "" {
			n.Detail = "No title"
		}
	case client.KindArtifacts, client.KindSessionCompleted:
	default:
		return Notification{}, false
	}
	return n, true
}

// Watcher runs the polling loop. The cursor map is owned by the goroutine
// calling Run or Tick and must not be shared.
type Watcher struct {
	lister   SessionLister
	syncer   Syncer
	notifier Notifier
	interval time.Duration

	// Ready gates each tick. A nil Ready is always ready.
	Ready func() bool

	// cursors maps session ID to the last announced agent activity ID.
	cursors map[string]string
}

// New returns a watcher that sweeps every interval.
func New(lister SessionLister, syncer Syncer, notifier Notifier, interval time.Duration) *Watcher {
	return &Watcher{
		lister:   lister,
		syncer:   syncer,
		notifier: notifier,
		interval: interval,
		cursors:  make(map[string]string),
	}
}

// Run sweeps immediately and then every interval until ctx is done. A slow
// sweep delays the next one; sweeps never overlap.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick performs one sweep and returns the number of notifications emitted.
func (w *Watcher) Tick(ctx context.Context) int {
	if w.Ready != nil && !w.Ready() {
		log.Debug().Msg("watcher not ready, skipping tick")
		return 0
	}

	sessions, err := w.lister.ListSessions(ctx)
	if err != nil {
		if errors.Is(err, client.ErrAPIKeyMissing) {
			log.Debug().Msg("watcher has no client, skipping tick")
		} else {
			log.Error().Err(err).Msg("watcher failed to list sessions")
		}
		return 0
	}

	emitted := 0
	for _, s := range sessions {
		if ctx.Err() != nil {
			return emitted
		}
		if w.checkSession(ctx, s) {
			emitted++
		}
	}
	return emitted
}

func (w *Watcher) checkSession(ctx context.Context, s client.Session) bool {
	activities, err := w.syncer.Sync(ctx, s.ID)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("watcher failed to sync activities")
		return false
	}

	last, ok := lastAgentActivity(activities)
	if !ok {
		return false
	}
	if seen, ok := w.cursors[s.ID]; ok && seen == last.ID {
		return false
	}
	w.cursors[s.ID] = last.ID

	n, ok := NotificationFor(s, last)
	if !ok {
		log.Debug().Str("session_id", s.ID).Str("kind", string(last.Kind())).Msg("activity kind not announced")
		return false
	}
	if err := w.notifier.Notify(ctx, n); err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Str("activity_id", last.ID).Msg("failed to deliver notification")
	}
	return true
}

func lastAgentActivity(activities []client.Activity) (client.Activity, bool) {
	for i := len(activities) - 1; i >= 0; i-- {
		if activities[i].Originator == client.OriginatorAgent {
			return activities[i], true
		}
	}
	return client.Activity{}, false
}
