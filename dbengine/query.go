package dbengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"dbconnect.dev/frame"
	"dbconnect.dev/internal/logging"
	"dbconnect.dev/internal/metrics"
)

const queryExtension = ".sql"

var (
	ErrQueryTimeout     = errors.New("query execution exceeded")
	ErrQueryNotFound    = errors.New("SQL query file not found")
	ErrInvalidQueryName = errors.New("invalid query file name")
)

// LoadQuery reads name from the query folder.
func (e *Engine) LoadQuery(name string) (string, error) {
	folder := e.QueryFolder()

	if name == "" || !filepath.IsLocal(name) {
		err := fmt.Errorf("%w: %q", ErrInvalidQueryName, name)
		logging.LogError(e.logger, "rejected query file name", err)
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(folder, name))
	if errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("%w: '%s' not found in directory %s", ErrQueryNotFound, name, folder)
		logging.LogError(e.logger, "failed to load query", err)
		return "", err
	}
	if err != nil {
		err = fmt.Errorf("error loading query file %s: %w", name, err)
		logging.LogError(e.logger, "failed to load query", err)
		return "", err
	}

	return string(data), nil
}

// ListQueries returns the sorted names of the .sql files in the query folder
func (e *Engine) ListQueries() ([]string, error) {
	folder := e.QueryFolder()

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), queryExtension) {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)
	return names, nil
}

// Query runs query under the engine timeout and returns the result set as a frame.
func (e *Engine) Query(ctx context.Context, query string, args ...any) (*frame.Frame, error) {
	return e.query(ctx, metrics.SourceSQL, query, args)
}

// QueryFile runs the named query file. Results are cached per name and arguments until ClearCache
// is called. Concurrent calls for the same key share one execution, which runs under the engine
// timeout and is not cancelled when one of the waiting callers gives up.
func (e *Engine) QueryFile(ctx context.Context, name string, args ...any) (*frame.Frame, error) {
	key := cacheKey(name, args)

	e.mu.Lock()
	if df, ok := e.cache[key]; ok {
		e.mu.Unlock()
		metrics.RecordCacheLookup(metrics.EngineDatabase, true)
		return df, nil
	}
	generation := e.generation
	e.mu.Unlock()
	metrics.RecordCacheLookup(metrics.EngineDatabase, false)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fillCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(strconv.FormatUint(generation, 10)+"|"+key, func() (any, error) {
		query, err := e.LoadQuery(name)
		if err != nil {
			return nil, err
		}

		df, err := e.query(fillCtx, metrics.SourceFile, query, args)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.generation == generation {
			e.cache[key] = df
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

func (e *Engine) query(ctx context.Context, source, query string, args []any) (*frame.Frame, error) {
	p, timeout, err := e.acquire(ctx)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(source, metrics.OutcomeError).Inc()
		return nil, err
	}
	defer e.release(p)

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()
	df, err := readFrame(queryCtx, p.db, query, args)
	duration := time.Since(startTime)
	metrics.QueryDuration.WithLabelValues(source).Observe(duration.Seconds())

	if err != nil {
		// Only our own deadline is a timeout; a caller deadline is reported as is.
		if errors.Is(queryCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			metrics.QueriesTotal.WithLabelValues(source, metrics.OutcomeTimeout).Inc()
			err = fmt.Errorf("%w %ss: %w", ErrQueryTimeout, formatSeconds(timeout), context.DeadlineExceeded)
		} else {
			metrics.QueriesTotal.WithLabelValues(source, metrics.OutcomeError).Inc()
		}
		logging.LogError(e.logger, "query failed", err,
			slog.String("source", source),
			slog.Duration("duration", duration))
		return nil, err
	}

	metrics.QueriesTotal.WithLabelValues(source, metrics.OutcomeSuccess).Inc()
	metrics.RowsLoadedTotal.WithLabelValues(metrics.EngineDatabase).Add(float64(df.Height()))
	logging.LogOperation(e.logger, "query_executed",
		slog.String("source", source),
		slog.Int("rows", df.Height()),
		slog.Int("columns", df.Width()),
		slog.Duration("duration", duration))

	return df, nil
}

// readFrame scans every row of the result set into memory
func readFrame(ctx context.Context, db *sql.DB, query string, args []any) (df *frame.Frame, err error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer logging.HandleDeferredError(&err, rows.Close, nil, "close rows")

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	values := make([][]any, len(names))
	cells := make([]any, len(names))
	dest := make([]any, len(names))
	for i := range cells {
		dest[i] = &cells[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, cell := range cells {
			values[i] = append(values[i], normalize(cell))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	columns := make([]frame.Column, len(names))
	for i, name := range names {
		if name == "" {
			// Unaliased expressions come back unnamed on some drivers
			name = fmt.Sprintf("column_%d", i)
		}
		columns[i] = inferColumn(name, values[i])
	}

	df, err = frame.New(columns...)
	if err != nil {
		return nil, fmt.Errorf("invalid result set: %w", err)
	}
	return df, nil
}

// normalize maps driver values onto the Go types frames hold
func normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

// inferColumn picks the narrowest data type that fits every non-null value. Integers mixed with
// floats widen to Float64; any other mix falls back to String.
func inferColumn(name string, values []any) frame.Column {
	var ints, floats, bools, times, others int
	for _, v := range values {
		switch v.(type) {
		case nil:
		case int64:
			ints++
		case float64:
			floats++
		case bool:
			bools++
		case time.Time:
			times++
		default:
			others++
		}
	}

	nonNull := ints + floats + bools + times + others
	dtype := frame.String
	switch {
	case nonNull == 0:
	case ints == nonNull:
		dtype = frame.Int64
	case ints+floats == nonNull:
		dtype = frame.Float64
	case bools == nonNull:
		dtype = frame.Boolean
	case times == nonNull:
		dtype = frame.Datetime
	}

	out := make([]any, len(values))
	for i, v := range values {
		out[i] = coerce(v, dtype)
	}
	return frame.Column{Name: name, Type: dtype, Values: out}
}

func coerce(v any, dtype frame.DataType) any {
	if v == nil {
		return nil
	}
	switch dtype {
	case frame.Float64:
		if n, ok := v.(int64); ok {
			return float64(n)
		}
	case frame.String:
		switch val := v.(type) {
		case string:
			return val
		case int64:
			return strconv.FormatInt(val, 10)
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(val)
		case time.Time:
			return val.Format(time.RFC3339Nano)
		default:
			return fmt.Sprint(val)
		}
	}
	return v
}

func cacheKey(name string, args []any) string {
	if len(args) == 0 {
		return name
	}
	return fmt.Sprintf("%s%#v", name, args)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
