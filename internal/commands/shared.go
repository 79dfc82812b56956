package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/julezz/julezz/internal/cache"
	"github.com/julezz/julezz/internal/client"
	"github.com/julezz/julezz/internal/config"
	"github.com/julezz/julezz/internal/log"
	"github.com/julezz/julezz/internal/resolve"
	actsync "github.com/julezz/julezz/internal/sync"
)

// apiTimeout is the default timeout for single API calls.
const apiTimeout = 30 * time.Second

// syncTimeout bounds a full activity sync, which may read many pages.
const syncTimeout = 5 * time.Minute

// cliEnv is everything a command needs after configuration is resolved.
type cliEnv struct {
	cfg   *config.Config
	store *cache.Store
}

func loadRuntime() (*cliEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if apiKeyFlag != "" {
		cfg.APIKey = apiKeyFlag
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if cfg.LogLevel != "" {
		log.SetLevel(cfg.LogLevel)
	}

	stateDir, err := cfg.ResolvedStateDir()
	if err != nil {
		return nil, err
	}
	cacheDir, err := cfg.ResolvedCacheDir()
	if err != nil {
		return nil, err
	}
	log.Debug().Str("state_dir", stateDir).Str("cache_dir", cacheDir).Msg("runtime loaded")

	return &cliEnv{cfg: cfg, store: cache.New(stateDir, cacheDir)}, nil
}

func (r *cliEnv) client() (*client.Client, error) {
	return client.New(r.cfg.APIURL, r.cfg.APIKey)
}

// engine returns a sync engine. With a nil client it can only read the cache.
func (r *cliEnv) engine(c *client.Client) *actsync.Engine {
	var pager actsync.Pager
	if c != nil {
		pager = c
	}
	return actsync.New(pager, r.store)
}

// resolve maps a session identifier against the cached roster.
func (r *cliEnv) resolve(ident string) (resolve.Result, error) {
	roster, err := r.store.LoadRoster()
	if err != nil {
		return resolve.Result{}, err
	}
	aliases, err := r.store.LoadAliases()
	if err != nil {
		return resolve.Result{}, err
	}
	return resolve.Resolve(ident, roster, aliases)
}

// cachedTitle returns the roster title for a session ID, or the ID itself.
func (r *cliEnv) cachedTitle(sessionID string) string {
	roster, err := r.store.LoadRoster()
	if err != nil {
		return sessionID
	}
	if index, ok := roster.IndexOf(sessionID); ok {
		if e, _ := roster.At(index); e.Title != "" {
			return e.Title
		}
	}
	return sessionID
}

// describeError rewrites err into the message shown to the user.
// Authentication problems are reported distinctly from other API failures.
func describeError(err error) error {
	if err == nil {
		return nil
	}

	var (
		apiErr       *client.Error
		transportErr *client.TransportError
		resErr       *resolve.Error
		anomalyErr   *actsync.AnomalyError
		resumeErr    *actsync.ResumeError
	)
	switch {
	case errors.Is(err, client.ErrAPIKeyMissing):
		return errors.New("API key is missing: set JULES_API_KEY, add api_key to the config file, or pass --api-key")
	case errors.Is(err, cache.ErrAliasFormat):
		return cache.ErrAliasFormat
	case errors.As(err, &apiErr) && apiErr.IsAuthError():
		return fmt.Errorf("authentication failed (%d): the Jules API rejected the API key", apiErr.StatusCode)
	case errors.As(err, &apiErr) && errors.As(err, &resumeErr):
		return fmt.Errorf("API error (%d): %s; the saved page token may have expired, run 'julezz activities fetch %s --reset'",
			apiErr.StatusCode, strings.TrimSpace(apiErr.Body), resumeErr.SessionID)
	case errors.As(err, &apiErr):
		return fmt.Errorf("API error (%d): %s", apiErr.StatusCode, strings.TrimSpace(apiErr.Body))
	case errors.As(err, &transportErr):
		return fmt.Errorf("cannot reach the Jules API: %v", transportErr.Err)
	case errors.As(err, &resErr) && resErr.Kind == resolve.EmptyRoster:
		return errors.New("no sessions cached; run 'julezz sessions list' first")
	case errors.As(err, &anomalyErr):
		return fmt.Errorf("%v; run 'julezz activities fetch %s --reset' to rebuild the cache", err, anomalyErr.SessionID)
	case errors.Is(err, actsync.ErrPaginationLoop):
		return fmt.Errorf("the Jules API returned an inconsistent page token: %w", err)
	default:
		return err
	}
}

// PrintError writes a user-facing error line.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, paint(errorStyle, "Error:"), err)
}
