package dbengine

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

const (
	DefaultLoginTimeout = 30 * time.Second
	DefaultTimeout      = 300 * time.Second
)

// Pool settings
const (
	maxOpenConns    = 25 // pool of 5 plus an overflow of 20
	maxIdleConns    = 5
	connMaxLifetime = time.Hour
)

// Option configures an Engine
type Option func(*config)

type config struct {
	envPath      string
	envFile      string
	searchDir    string
	settings     *Settings
	projectRoot  string
	loginTimeout time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

// WithEnvFile sets the name of the environment file searched for. Defaults to db.env.
func WithEnvFile(name string) Option {
	return func(c *config) {
		c.envFile = name
	}
}

// WithEnvPath reads exactly the file at path. The name search is skipped, so a missing file is an
// error even when another file of that name exists further up.
func WithEnvPath(path string) Option {
	return func(c *config) {
		c.envPath = path
	}
}

// WithSearchDir sets the directory the env file search starts from. Defaults to the working
// directory.
func WithSearchDir(dir string) Option {
	return func(c *config) {
		c.searchDir = dir
	}
}

// WithSettings uses s instead of reading an env file. Relative paths are resolved against
// projectRoot.
func WithSettings(s Settings, projectRoot string) Option {
	return func(c *config) {
		c.settings = &s
		c.projectRoot = projectRoot
	}
}

func WithLoginTimeout(d time.Duration) Option {
	return func(c *config) {
		c.loginTimeout = d
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func (c *config) resolveEnvPath() (string, error) {
	if c.envPath == "" {
		return FindEnvFile(c.envFile, c.searchDir)
	}

	path, err := filepath.Abs(c.envPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", c.envPath, err)
	}
	if !isFile(path) {
		return "", fmt.Errorf("%w: '%s'", ErrEnvFileNotFound, path)
	}
	return path, nil
}

func applyOptions(opts []Option) *config {
	cfg := &config{
		envFile:      DefaultEnvFile,
		searchDir:    ".",
		loginTimeout: DefaultLoginTimeout,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
