package bot

import (
	"context"
	"sync"

	"github.com/julezz/julezz/internal/client"
)

// API is the subset of the Jules client the bot uses.
type API interface {
	ListSessions(ctx context.Context) ([]client.Session, error)
	SendMessage(ctx context.Context, sessionID, prompt string) error
	ApprovePlan(ctx context.Context, sessionID string) error
	ListActivities(ctx context.Context, sessionID, pageToken string) (*client.ListActivitiesResponse, error)
}

// AuthState is either unauthenticated or ready with a client. The lock only
// covers reading or replacing the handle; remote calls run outside it.
type AuthState struct {
	mu  sync.Mutex
	api API
}

// Client returns the installed client, if any.
func (a *AuthState) Client() (API, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.api, a.api != nil
}

// Set installs api, replacing any previous client.
func (a *AuthState) Set(api API) {
	a.mu.Lock()
	a.api = api
	a.mu.Unlock()
}

// Ready reports whether a client is installed.
func (a *AuthState) Ready() bool {
	_, ok := a.Client()
	return ok
}

func (a *AuthState) require() (API, error) {
	api, ok := a.Client()
	if !ok {
		return nil, client.ErrAPIKeyMissing
	}
	return api, nil
}

// ListSessions calls the installed client or fails with
// client.ErrAPIKeyMissing.
func (a *AuthState) ListSessions(ctx context.Context) ([]client.Session, error) {
	api, err := a.require()
	if err != nil {
		return nil, err
	}
	return api.ListSessions(ctx)
}

// ListActivities calls the installed client or fails with
// client.ErrAPIKeyMissing.
func (a *AuthState) ListActivities(ctx context.Context, sessionID, pageToken string) (*client.ListActivitiesResponse, error) {
	api, err := a.require()
	if err != nil {
		return nil, err
	}
	return api.ListActivities(ctx, sessionID, pageToken)
}
