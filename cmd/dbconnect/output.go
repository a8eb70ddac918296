package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"dbconnect.dev/frame"
)

const (
	formatCSV  = "csv"
	formatJSON = "json"
	formatYAML = "yaml"
)

var ErrUnknownFormat = errors.New("unknown output format")

func validateFormat(format string) error {
	switch format {
	case formatCSV, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("%w %q, expected csv, json or yaml", ErrUnknownFormat, format)
}

// writeFrame prints df in format. A positive limit keeps only the first rows.
func writeFrame(w io.Writer, df *frame.Frame, format string, limit int) error {
	if limit > 0 && df.Height() > limit {
		df = df.Head(limit)
	}

	switch format {
	case formatCSV:
		return df.WriteCSV(w)
	case formatJSON:
		return writeJSON(w, df)
	case formatYAML:
		return writeYAML(w, df)
	}
	return validateFormat(format)
}

// writeList prints names, one per row under header when the format is csv
func writeList(w io.Writer, header string, names []string, format string) error {
	switch format {
	case formatCSV:
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{header}); err != nil {
			return err
		}
		for _, name := range names {
			if err := writer.Write([]string{name}); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	case formatJSON:
		return writeJSON(w, names)
	case formatYAML:
		return writeYAML(w, names)
	}
	return validateFormat(format)
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return encoder.Close()
}
