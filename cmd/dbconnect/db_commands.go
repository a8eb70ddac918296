package main

import (
	"github.com/spf13/cobra"

	"dbconnect.dev/internal/logging"
)

func newQueryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "query <file.sql> [args...]",
		Short: "Run a SQL file from the query folder",
		Long: `Run a SQL file from QUERYFOLDER and print the result. Extra arguments are bound to the
query's placeholders in order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.newDBEngine()
			if err != nil {
				return err
			}
			defer logging.SafeCloseWithLogging(engine, c.logger, "database_engine")

			df, err := engine.QueryFile(cmd.Context(), args[0], queryArgs(args[1:])...)
			if err != nil {
				return err
			}
			return writeFrame(c.stdout, df, c.format, c.limit)
		},
	}
}

func newExecCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql> [args...]",
		Short: "Run a SQL statement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.newDBEngine()
			if err != nil {
				return err
			}
			defer logging.SafeCloseWithLogging(engine, c.logger, "database_engine")

			df, err := engine.Query(cmd.Context(), args[0], queryArgs(args[1:])...)
			if err != nil {
				return err
			}
			return writeFrame(c.stdout, df, c.format, c.limit)
		},
	}
}

func newQueriesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "queries",
		Short: "List the SQL files in the query folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.newDBEngine()
			if err != nil {
				return err
			}
			defer logging.SafeCloseWithLogging(engine, c.logger, "database_engine")

			names, err := engine.ListQueries()
			if err != nil {
				return err
			}
			return writeList(c.stdout, "name", names, c.format)
		},
	}
}

func queryArgs(args []string) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = arg
	}
	return out
}
