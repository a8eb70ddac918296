package dbengine

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
)

// Keys read from db.env
const (
	KeyUser        = "DBUSER"
	KeyPassword    = "DBPASSWORD"
	KeyHost        = "DBHOST"
	KeyPort        = "DBPORT"
	KeyName        = "DBNAME"
	KeyQueryFolder = "QUERYFOLDER"
	KeyDriver      = "DBDRIVER"
	KeySSLMode     = "DBSSLMODE"
	KeyODBCDriver  = "DBODBCDRIVER"
)

// Supported DBDRIVER values
const (
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
)

const DefaultEnvFile = "db.env"

var (
	ErrEnvFileNotFound    = errors.New("environment file not found")
	ErrQueryFolderUnset   = errors.New("environment variable 'QUERYFOLDER' is not set in db.env")
	ErrQueryFolderMissing = errors.New("the directory specified by QUERYFOLDER does not exist")
	ErrMissingVariables   = errors.New("missing required environment variables from db.env")
	ErrInvalidSettings    = errors.New("invalid database settings")
)

// Settings is the parsed content of db.env
type Settings struct {
	Driver      string
	User        string
	Password    string
	Host        string
	Port        string
	Name        string
	QueryFolder string
	SSLMode     string
	// ODBCDriver is read for compatibility with existing files and otherwise unused.
	ODBCDriver string
}

// FindEnvFile looks for name in startDir and each of its parents. When that fails the current
// working directory is tried. The returned path is absolute.
func FindEnvFile(name, startDir string) (string, error) {
	if name == "" {
		name = DefaultEnvFile
	}

	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", startDir, err)
	}

	for {
		candidate := filepath.Join(dir, name)
		if isFile(candidate) {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, name)
		if isFile(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: '%s' searched from %s", ErrEnvFileNotFound, name, startDir)
}

// LoadSettings parses envPath. Variables already present in the process environment win over the
// file, the same way a dotenv load never overrides existing variables.
func LoadSettings(envPath string) (Settings, error) {
	values, err := godotenv.Read(envPath)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read %s: %w", envPath, err)
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return values[key]
	}

	return settingsFromLookup(lookup), nil
}

// SettingsFromEnv builds Settings from the process environment only
func SettingsFromEnv() Settings {
	return settingsFromLookup(os.Getenv)
}

func settingsFromLookup(lookup func(string) string) Settings {
	s := Settings{
		Driver:      strings.ToLower(strings.TrimSpace(lookup(KeyDriver))),
		User:        lookup(KeyUser),
		Password:    lookup(KeyPassword),
		Host:        lookup(KeyHost),
		Port:        strings.TrimSpace(lookup(KeyPort)),
		Name:        lookup(KeyName),
		QueryFolder: lookup(KeyQueryFolder),
		SSLMode:     lookup(KeySSLMode),
		ODBCDriver:  lookup(KeyODBCDriver),
	}
	if s.Driver == "" {
		s.Driver = DriverSQLServer
	}
	return s
}

// ResolveQueryFolder returns the absolute query folder. A relative QUERYFOLDER is joined to
// projectRoot.
func (s Settings) ResolveQueryFolder(projectRoot string) (string, error) {
	if strings.TrimSpace(s.QueryFolder) == "" {
		return "", ErrQueryFolderUnset
	}

	folder := s.QueryFolder
	if !filepath.IsAbs(folder) {
		folder = filepath.Join(projectRoot, folder)
	}

	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrQueryFolderMissing, folder)
	}
	return folder, nil
}

// requiredKeys lists the connection keys the driver needs
func (s Settings) requiredKeys() []string {
	if s.Driver == DriverSQLite {
		return []string{KeyName}
	}
	return []string{KeyUser, KeyPassword, KeyHost, KeyPort, KeyName}
}

func (s Settings) value(key string) string {
	switch key {
	case KeyUser:
		return s.User
	case KeyPassword:
		return s.Password
	case KeyHost:
		return s.Host
	case KeyPort:
		return s.Port
	case KeyName:
		return s.Name
	}
	return ""
}

// Validate checks the connection settings. Every missing key is reported in a single
// ErrMissingVariables error.
func (s Settings) Validate() error {
	var missing []string
	for _, key := range s.requiredKeys() {
		if s.value(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingVariables, strings.Join(missing, ","))
	}

	err := validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In(DriverSQLServer, DriverPostgres, DriverSQLite)),
		validation.Field(&s.Port, validation.When(s.Driver != DriverSQLite, validation.Required, is.Port)),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// DSN returns the database/sql driver name and data source name. The login timeout is passed to
// the driver as its dial or busy timeout.
func (s Settings) DSN(projectRoot string, loginTimeout time.Duration) (string, string, error) {
	if err := s.Validate(); err != nil {
		return "", "", err
	}

	seconds := strconv.Itoa(int(loginTimeout.Round(time.Second) / time.Second))

	switch s.Driver {
	case DriverSQLServer:
		query := url.Values{}
		query.Set("database", s.Name)
		query.Set("dial timeout", seconds)
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(s.User, s.Password),
			Host:     net.JoinHostPort(s.Host, s.Port),
			RawQuery: query.Encode(),
		}
		return "sqlserver", u.String(), nil

	case DriverPostgres:
		query := url.Values{}
		query.Set("connect_timeout", seconds)
		if s.SSLMode != "" {
			query.Set("sslmode", s.SSLMode)
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(s.User, s.Password),
			Host:     net.JoinHostPort(s.Host, s.Port),
			Path:     "/" + s.Name,
			RawQuery: query.Encode(),
		}
		return "postgres", u.String(), nil

	case DriverSQLite:
		path := s.Name
		if path != ":memory:" && !filepath.IsAbs(path) {
			path = filepath.Join(projectRoot, path)
		}
		return "sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, loginTimeout.Milliseconds()), nil
	}

	return "", "", fmt.Errorf("%w: unsupported driver %q", ErrInvalidSettings, s.Driver)
}

// Redacted returns a copy safe for logging
func (s Settings) Redacted() Settings {
	if s.Password != "" {
		s.Password = "xxxxx"
	}
	return s
}

func (s Settings) LogValue() slog.Value {
	r := s.Redacted()
	return slog.GroupValue(
		slog.String("driver", r.Driver),
		slog.String("user", r.User),
		slog.String("password", r.Password),
		slog.String("host", r.Host),
		slog.String("port", r.Port),
		slog.String("name", r.Name),
		slog.String("query_folder", r.QueryFolder),
	)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
