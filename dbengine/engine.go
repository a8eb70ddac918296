// Package dbengine runs SQL against the database described by a db.env file and returns the
// results as frames.
package dbengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"dbconnect.dev/frame"
	"dbconnect.dev/internal/logging"
)

// Engine owns a lazily created connection pool and a cache of query file results. It is safe for
// concurrent use.
type Engine struct {
	mu           sync.Mutex
	envPath      string
	projectRoot  string
	settings     Settings
	queryFolder  string
	loginTimeout time.Duration
	timeout      time.Duration

	pool           *pool
	poolGeneration uint64
	connectGroup   singleflight.Group

	cache      map[string]*frame.Frame
	generation uint64
	group      singleflight.Group

	logger *slog.Logger
}

// New locates and reads the env file (unless WithSettings is given) and checks the query folder.
// No connection is made until the database is first used.
func New(opts ...Option) (*Engine, error) {
	cfg := applyOptions(opts)
	logger := cfg.logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	e := &Engine{
		loginTimeout: cfg.loginTimeout,
		timeout:      cfg.timeout,
		cache:        make(map[string]*frame.Frame),
		logger:       logger.With(slog.String("component", "database_engine")),
	}

	if cfg.settings != nil {
		root, err := filepath.Abs(cfg.projectRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve project root: %w", err)
		}
		e.projectRoot = root
		e.settings = *cfg.settings
	} else {
		envPath, err := cfg.resolveEnvPath()
		if err != nil {
			return nil, err
		}
		settings, err := LoadSettings(envPath)
		if err != nil {
			return nil, err
		}
		e.envPath = envPath
		e.projectRoot = filepath.Dir(envPath)
		e.settings = settings
	}

	folder, err := e.settings.ResolveQueryFolder(e.projectRoot)
	if err != nil {
		logging.LogError(e.logger, "invalid query folder", err)
		return nil, err
	}
	e.queryFolder = folder

	e.logger.Debug("database engine configured",
		slog.String("project_root", e.projectRoot),
		slog.Any("settings", e.settings))

	return e, nil
}

func (e *Engine) LoginTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loginTimeout
}

// SetLoginTimeout changes the login timeout and drops the current pool.
func (e *Engine) SetLoginTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loginTimeout = d
	e.dropPoolLocked()
}

func (e *Engine) Timeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeout
}

// SetTimeout changes the query timeout and drops the current pool.
func (e *Engine) SetTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = d
	e.dropPoolLocked()
}

func (e *Engine) QueryFolder() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queryFolder
}

func (e *Engine) ProjectRoot() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.projectRoot
}

func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// DB returns the connection pool, opening and pinging it on first use. A later ClearCache, Close
// or timeout change closes the returned pool once no query is using it.
func (e *Engine) DB(ctx context.Context) (*sql.DB, error) {
	p, _, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	e.release(p)
	return p.db, nil
}

// ClearCache drops cached results, closes the pool and re-reads the env file when one was used.
func (e *Engine) ClearCache() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache = make(map[string]*frame.Frame)
	e.generation++
	closeErr := e.retirePoolLocked()

	if e.envPath == "" {
		return closeErr
	}

	settings, err := LoadSettings(e.envPath)
	if err != nil {
		return errors.Join(closeErr, err)
	}
	folder, err := settings.ResolveQueryFolder(e.projectRoot)
	if err != nil {
		logging.LogError(e.logger, "invalid query folder", err)
		return errors.Join(closeErr, err)
	}
	e.settings = settings
	e.queryFolder = folder

	e.logger.Debug("cache cleared", slog.String("env_file", e.envPath))
	return closeErr
}

// Close releases the connection pool. Queries already running finish on it first. The engine
// reconnects if it is used again.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retirePoolLocked()
}

func (e *Engine) dropPoolLocked() {
	if err := e.retirePoolLocked(); err != nil {
		logging.LogError(e.logger, "failed to drop connection pool", err)
	}
}
