package csvengine

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dbconnect.dev/frame"
	"dbconnect.dev/internal/logging"
	"dbconnect.dev/internal/metrics"
)

const (
	csvExtension = ".csv"
	utf8BOM      = "\ufeff"
	// ctxCheckInterval is how many rows are parsed between context checks
	ctxCheckInterval = 4096
)

func (e *Engine) load(ctx context.Context, path string, mappings map[string]frame.DataType) (*frame.Frame, error) {
	if path == "" {
		return frame.Empty(), nil
	}

	startTime := time.Now()

	files, err := e.listFiles(path)
	if err != nil {
		return nil, err
	}

	frames := make([]*frame.Frame, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, file := range files {
		g.Go(func() error {
			df, err := readFile(gctx, file)
			if err != nil {
				return err
			}
			frames[i] = df
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.LogError(e.logger, "failed to read csv files", err, slog.String("path", path))
		return nil, err
	}
	metrics.CSVFilesLoadedTotal.Add(float64(len(files)))

	if err := checkHeaders(files, frames); err != nil {
		return nil, err
	}

	df, err := frame.Empty().VStack(frames...)
	if err != nil {
		return nil, err
	}

	df, err = df.CastAll(mappings)
	if err != nil {
		logging.LogError(e.logger, "failed to apply column mappings", err, slog.String("path", path))
		return nil, fmt.Errorf("failed to apply column mappings: %w", err)
	}

	if df.IsEmpty() {
		df = frame.Empty()
	}

	metrics.RowsLoadedTotal.WithLabelValues(metrics.EngineCSV).Add(float64(df.Height()))
	logging.LogOperation(e.logger, "csv_loaded",
		slog.String("path", path),
		slog.Int("files", len(files)),
		slog.Int("rows", df.Height()),
		slog.Int("columns", df.Width()),
		slog.Duration("duration", time.Since(startTime)))

	return df, nil
}

// listFiles returns the *.csv files directly inside dir, sorted by name
func (e *Engine) listFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		e.logger.Warn("current path does not exist", slog.String("path", dir))
		return nil, fmt.Errorf("%w: current path %s does not exist: %w", ErrPathNotFound, dir, fs.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != csvExtension {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCSVFiles, dir)
	}
	slices.Sort(files)

	return files, nil
}

// checkHeaders verifies that every file with a header shares the first file's header
func checkHeaders(files []string, frames []*frame.Frame) error {
	var (
		want     []string
		wantFile string
	)
	for i, df := range frames {
		if df.Width() == 0 {
			continue
		}
		if want == nil {
			want, wantFile = df.Columns(), files[i]
			continue
		}
		if !slices.Equal(want, df.Columns()) {
			return fmt.Errorf("%w: %s has columns [%s], %s has [%s]", frame.ErrSchemaMismatch,
				filepath.Base(files[i]), strings.Join(df.Columns(), ","),
				filepath.Base(wantFile), strings.Join(want, ","))
		}
	}
	return nil
}

// readFile parses one CSV file without schema inference. Every column is a String and empty
// fields are null. A file with no header yields an empty frame.
func readFile(ctx context.Context, path string) (df *frame.Frame, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer logging.HandleDeferredError(&err, f.Close, nil, "close "+filepath.Base(path))

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return frame.Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	values := make([][]any, len(header))
	for rowNum := 0; ; rowNum++ {
		if rowNum%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		for c, field := range record {
			if field == "" {
				values[c] = append(values[c], nil)
				continue
			}
			values[c] = append(values[c], field)
		}
	}

	columns := make([]frame.Column, len(header))
	for c, name := range header {
		columns[c] = frame.Column{Name: name, Type: frame.String, Values: values[c]}
	}

	df, err = frame.New(columns...)
	if err != nil {
		return nil, fmt.Errorf("invalid header in %s: %w", path, err)
	}
	return df, nil
}
