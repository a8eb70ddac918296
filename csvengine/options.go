package csvengine

import (
	"log/slog"
	"maps"
	"runtime"

	"dbconnect.dev/frame"
)

// Option configures an Engine
type Option func(*config)

type config struct {
	mappings    map[string]frame.DataType
	logger      *slog.Logger
	concurrency int
}

// WithColumnMappings casts the named columns after loading. Columns absent from the data are
// ignored.
func WithColumnMappings(mappings map[string]frame.DataType) Option {
	return func(c *config) {
		c.mappings = maps.Clone(mappings)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithConcurrency bounds the number of files parsed at the same time.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func applyOptions(opts []Option) *config {
	cfg := &config{
		concurrency: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
