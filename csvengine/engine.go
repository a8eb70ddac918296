// Package csvengine loads every CSV file of a directory into a single cached frame.
package csvengine

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dbconnect.dev/frame"
	"dbconnect.dev/internal/logging"
	"dbconnect.dev/internal/metrics"
)

var (
	ErrPathNotFound = errors.New("csv path does not exist")
	ErrNotDirectory = errors.New("csv path is not a directory")
	ErrNoCSVFiles   = errors.New("no csv files found")
)

// Engine loads the CSV files found in one directory. The resulting frame is cached until
// ClearCache or SetPath is called. It is safe for concurrent use.
type Engine struct {
	mu          sync.RWMutex
	path        string
	mappings    map[string]frame.DataType
	cached      *frame.Frame
	generation  uint64
	lastLoad    time.Time
	loads       int64
	hits        int64
	group       singleflight.Group
	logger      *slog.Logger
	concurrency int
}

// Stats summarizes cache behaviour
type Stats struct {
	Loads    int64
	Hits     int64
	LastLoad time.Time
}

// NewEngine creates an Engine reading from path. Nothing is read until DataFrame is called.
func NewEngine(path string, opts ...Option) *Engine {
	cfg := applyOptions(opts)
	logger := cfg.logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	return &Engine{
		path:        path,
		mappings:    cfg.mappings,
		logger:      logger.With(slog.String("component", "csv_engine")),
		concurrency: cfg.concurrency,
	}
}

func (e *Engine) Path() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.path
}

// SetPath points the engine at another directory and drops the cached frame.
func (e *Engine) SetPath(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.path = path
	e.invalidateLocked()
}

// ColumnMappings returns a copy of the configured casts
func (e *Engine) ColumnMappings() map[string]frame.DataType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.mappings)
}

// DataFrame returns the frame for the current path, loading it on first use. Repeated calls
// return the same *frame.Frame until the cache is cleared. Concurrent callers share one load, which
// keeps running when one of them gives up.
func (e *Engine) DataFrame(ctx context.Context) (*frame.Frame, error) {
	e.mu.Lock()
	if e.cached != nil {
		cached := e.cached
		e.hits++
		e.mu.Unlock()
		metrics.RecordCacheLookup(metrics.EngineCSV, true)
		return cached, nil
	}
	path, mappings, generation := e.path, e.mappings, e.generation
	e.mu.Unlock()
	metrics.RecordCacheLookup(metrics.EngineCSV, false)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(strconv.FormatUint(generation, 10), func() (any, error) {
		df, err := e.load(loadCtx, path, mappings)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		e.loads++
		e.lastLoad = time.Now()
		// A ClearCache that raced with the load wins; the stale frame is still returned to
		// the waiting callers but never cached.
		if e.generation == generation {
			e.cached = df
		}
		return df, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*frame.Frame), nil
	}
}

// ClearCache drops the cached frame so the next DataFrame call reads the files again.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidateLocked()
	e.logger.Debug("cache cleared", slog.String("path", e.path))
}

func (e *Engine) invalidateLocked() {
	e.cached = nil
	e.generation++
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Loads: e.loads, Hits: e.hits, LastLoad: e.lastLoad}
}
