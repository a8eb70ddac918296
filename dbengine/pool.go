package dbengine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"dbconnect.dev/internal/logging"
)

// pool is a connection pool shared by in-flight queries. A retired pool is closed by its last
// user, so dropping the pool never pulls a connection out from under a running query.
type pool struct {
	db      *sql.DB
	refs    int
	retired bool
}

// acquire returns the current pool with its reference count raised, connecting on first use. The
// query timeout in effect is returned with it. Callers must release the pool.
func (e *Engine) acquire(ctx context.Context) (*pool, time.Duration, error) {
	for {
		e.mu.Lock()
		if p := e.pool; p != nil {
			p.refs++
			timeout := e.timeout
			e.mu.Unlock()
			return p, timeout, nil
		}
		generation := e.poolGeneration
		e.mu.Unlock()

		p, err := e.connect(ctx, generation)
		if err != nil {
			return nil, 0, err
		}

		e.mu.Lock()
		if p != nil && e.pool == p {
			p.refs++
			timeout := e.timeout
			e.mu.Unlock()
			return p, timeout, nil
		}
		e.mu.Unlock()

		// The pool was dropped while connecting; try again with the current settings.
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
	}
}

func (e *Engine) release(p *pool) {
	e.mu.Lock()
	p.refs--
	idle := p.retired && p.refs == 0
	e.mu.Unlock()

	if idle {
		logging.SafeCloseWithLogging(p.db, e.logger, "database pool")
	}
}

// connect opens and pings a pool for generation without holding the engine lock. Concurrent
// callers share one attempt; each stops waiting when its own ctx is done. A nil pool means the
// settings changed before the attempt finished.
func (e *Engine) connect(ctx context.Context, generation uint64) (*pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	settings, projectRoot, loginTimeout := e.settings, e.projectRoot, e.loginTimeout
	e.mu.Unlock()

	attempt := context.WithoutCancel(ctx)
	ch := e.connectGroup.DoChan(strconv.FormatUint(generation, 10), func() (any, error) {
		driver, dsn, err := settings.DSN(projectRoot, loginTimeout)
		if err != nil {
			logging.LogError(e.logger, "invalid connection settings", err)
			return nil, err
		}

		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("error opening database: %w", err)
		}

		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
		db.SetConnMaxLifetime(connMaxLifetime)

		pingCtx, cancel := context.WithTimeout(attempt, loginTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logging.SafeCloseWithLogging(db, e.logger, "database pool")
			logging.LogError(e.logger, "failed to connect to database", err,
				slog.String("driver", driver), slog.Any("settings", settings))
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.pool != nil || e.poolGeneration != generation {
			logging.SafeCloseWithLogging(db, e.logger, "stale database pool")
			return (*pool)(nil), nil
		}
		e.pool = &pool{db: db}

		logging.LogOperation(e.logger, "database_connected",
			slog.String("driver", driver),
			slog.String("host", settings.Host),
			slog.String("database", settings.Name))
		return e.pool, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		p, _ := res.Val.(*pool)
		return p, nil
	}
}

// retirePoolLocked detaches the current pool. An idle pool is closed right away; a busy one is
// closed by its last user.
func (e *Engine) retirePoolLocked() error {
	e.poolGeneration++
	p := e.pool
	if p == nil {
		return nil
	}
	e.pool = nil
	p.retired = true
	if p.refs > 0 {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
