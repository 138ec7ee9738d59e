// Package search implements the 'search' subcommand: streamed, filtered
// queries printed as JSON lines.
package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/phenobase/fieldstore/internal/app"
	"github.com/phenobase/fieldstore/internal/conf"
	"github.com/phenobase/fieldstore/internal/record"
	"github.com/phenobase/fieldstore/internal/search"
)

// Command creates the search command. Matching records stream to stdout as
// JSON lines, with a time-limited download URL attached to file-backed rows.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		kind     string
		start    string
		end      string
		plot     int
		metadata []string
	)
	filters := search.Filters{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Stream records matching the given filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters.Kind = record.Kind(kind)
			var err error
			if filters.Start, err = parseTime(start); err != nil {
				return err
			}
			if filters.End, err = parseTime(end); err != nil {
				return err
			}
			if cmd.Flags().Changed("plot") {
				filters.PlotNumber = &plot
			}
			if filters.Metadata, err = parseMetadata(metadata); err != nil {
				return err
			}

			application, err := app.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			stream, err := application.Search.Search(cmd.Context(), filters)
			if err != nil {
				return err
			}
			defer func() { _ = stream.Close() }()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for stream.Next() {
				if err := enc.Encode(stream.Result()); err != nil {
					return err
				}
			}
			return stream.Err()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Record kind: dataset, sensor, trait, model, procedure, script")
	cmd.Flags().StringSliceVar(&filters.Experiments, "experiment", nil, "Experiment name (repeatable)")
	cmd.Flags().StringSliceVar(&filters.Seasons, "season", nil, "Season name (repeatable)")
	cmd.Flags().StringSliceVar(&filters.Sites, "site", nil, "Site name (repeatable)")
	cmd.Flags().StringSliceVar(&filters.Datasets, "dataset", nil, "Dataset name (repeatable)")
	cmd.Flags().StringSliceVar(&filters.Entities, "entity", nil, "Producing entity name (repeatable)")
	cmd.Flags().StringVar(&filters.DateFrom, "date-from", "", "Collection date lower bound, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filters.DateTo, "date-to", "", "Collection date upper bound, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "Window start, RFC 3339 (inclusive)")
	cmd.Flags().StringVar(&end, "end", "", "Window end, RFC 3339 (exclusive)")
	cmd.Flags().IntVar(&plot, "plot", 0, "Plot number for plot-scoped kinds")
	cmd.Flags().StringSliceVar(&metadata, "meta", nil, "Metadata equality filter, key=value (repeatable)")

	return cmd
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, want RFC 3339: %w", s, err)
	}
	return ts, nil
}

func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata filter %q, want key=value", pair)
		}
		meta[key] = value
	}
	return meta, nil
}
