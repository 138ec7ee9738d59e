// Package ingest implements the 'ingest' subcommand: batch insertion of
// records read from a JSON file or stdin.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/phenobase/fieldstore/internal/app"
	"github.com/phenobase/fieldstore/internal/conf"
	"github.com/phenobase/fieldstore/internal/record"
)

// Command creates the ingest command. The input is a JSON array of records,
// read from the named file or from stdin when the argument is "-" or absent.
func Command(settings *conf.Settings) *cobra.Command {
	var staged bool
	var input string

	cmd := &cobra.Command{
		Use:   "ingest [records.json]",
		Short: "Ingest a batch of observation records",
		Long: `Ingest a batch of observation records from a JSON array.

Records with a source_path have their file payload uploaded to object
storage before insertion. Re-submitting a batch is safe: records already
present are absorbed without duplication, and only newly created record
identifiers are printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := input
			if path == "" && len(args) == 1 {
				path = args[0]
			}
			recs, err := readRecords(path)
			if err != nil {
				return err
			}

			application, err := app.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			if staged {
				for _, rec := range recs {
					if _, err := application.Pipeline.Create(cmd.Context(), rec, false); err != nil {
						return err
					}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(recs)
			}

			ids, err := application.Pipeline.Insert(cmd.Context(), recs)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
				"submitted": len(recs),
				"inserted":  ids,
			})
		},
	}

	cmd.Flags().BoolVar(&staged, "stage", false, "Validate, resolve and upload only; do not insert rows")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Path to the JSON batch file (defaults to the positional argument or stdin)")

	return cmd
}

// readRecords loads the input batch from the named file or stdin.
func readRecords(path string) ([]*record.Record, error) {
	var in io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("cannot open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	var recs []*record.Record
	if err := json.NewDecoder(in).Decode(&recs); err != nil {
		return nil, fmt.Errorf("cannot parse records: %w", err)
	}
	return recs, nil
}
