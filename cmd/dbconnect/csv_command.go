package main

import (
	"github.com/spf13/cobra"

	"dbconnect.dev/csvengine"
	"dbconnect.dev/internal/utils"
)

func newCSVCmd(c *cli) *cobra.Command {
	var casts []string

	cmd := &cobra.Command{
		Use:   "csv <dir>",
		Short: "Load every CSV file in a directory as one frame",
		Long: `Load every .csv file in <dir>, in lexical order, and print them stacked into one frame.
All files must share the same header. Columns are strings unless cast with --cast.`,
		Example: `  dbconnect csv ./exports --cast price=float64 --cast volume=int64 --format json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mappings, err := utils.ParseColumnMappings(casts)
			if err != nil {
				return err
			}

			engine := csvengine.NewEngine(args[0],
				csvengine.WithColumnMappings(mappings),
				csvengine.WithLogger(c.logger))

			df, err := engine.DataFrame(cmd.Context())
			if err != nil {
				return err
			}
			return writeFrame(c.stdout, df, c.format, c.limit)
		},
	}

	cmd.Flags().StringArrayVar(&casts, "cast", nil, "Cast a column, as column=type (str|int64|float64|bool|date|datetime)")

	return cmd
}
