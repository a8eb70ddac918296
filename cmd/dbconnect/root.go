package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"dbconnect.dev/dbengine"
	"dbconnect.dev/internal/logging"
)

const envPrefix = "DBCONNECT_"

// cli holds the persistent flags shared by every command
type cli struct {
	envFile      string
	loginTimeout time.Duration
	timeout      time.Duration
	logLevel     string
	format       string
	limit        int

	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "dbconnect",
		Short: "Load SQL query results and CSV directories as data frames",
		Long: `dbconnect runs SQL query files against the database described by db.env and loads
directories of CSV files into a single frame.

Every flag can also be set through an environment variable named after it, for example
DBCONNECT_LOG_LEVEL=debug or DBCONNECT_ENV_FILE=/srv/project/db.env.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyEnvOverrides(cmd.Flags(), os.LookupEnv); err != nil {
				return err
			}
			return c.setup()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", "", "Path to the db.env file (default: db.env searched upwards from the working directory)")
	flags.DurationVar(&c.loginTimeout, "login-timeout", dbengine.DefaultLoginTimeout, "Database login timeout")
	flags.DurationVar(&c.timeout, "timeout", dbengine.DefaultTimeout, "Query execution timeout")
	flags.StringVar(&c.logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
	flags.StringVar(&c.format, "format", formatCSV, "Output format (csv|json|yaml)")
	flags.IntVar(&c.limit, "limit", 0, "Maximum number of rows to print, 0 for all")

	rootCmd.AddCommand(
		newQueryCmd(c),
		newExecCmd(c),
		newQueriesCmd(c),
		newCSVCmd(c),
		newServeCmd(c),
	)

	return rootCmd
}

// setup validates the shared flags and builds the logger
func (c *cli) setup() error {
	level, err := logging.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	if err := validateFormat(c.format); err != nil {
		return err
	}
	if c.limit < 0 {
		return fmt.Errorf("invalid --limit %d: must not be negative", c.limit)
	}

	c.logger = logging.NewStructuredLogger(c.stderr, level)
	return nil
}

// applyEnvOverrides sets every flag the user did not pass from its DBCONNECT_* variable
func applyEnvOverrides(flags *pflag.FlagSet, lookup func(string) (string, bool)) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "help" {
			return
		}
		name := envVarName(f.Name)
		value, ok := lookup(name)
		if !ok {
			return
		}
		if err := flags.Set(f.Name, value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
		}
	})
	return errors.Join(errs...)
}

func envVarName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

func (c *cli) newDBEngine() (*dbengine.Engine, error) {
	opts := []dbengine.Option{
		dbengine.WithLoginTimeout(c.loginTimeout),
		dbengine.WithTimeout(c.timeout),
		dbengine.WithLogger(c.logger),
	}
	if c.envFile != "" {
		opts = append(opts, dbengine.WithEnvPath(c.envFile))
	}
	return dbengine.New(opts...)
}
