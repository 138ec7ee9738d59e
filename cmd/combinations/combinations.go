// Package combinations implements the 'combinations' subcommand: listing the
// registered hierarchy combinations for planning and debugging.
package combinations

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/phenobase/fieldstore/internal/app"
	"github.com/phenobase/fieldstore/internal/conf"
	"github.com/phenobase/fieldstore/internal/datastore"
)

// Command creates the combinations command. The valid-combinations table is
// rebuilt before listing, so results always reflect the current dimensions.
func Command(settings *conf.Settings) *cobra.Command {
	var filter datastore.CombinationFilter

	cmd := &cobra.Command{
		Use:   "combinations",
		Short: "List registered hierarchy combinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			combos, err := application.Resolver.ValidCombinations(cmd.Context(), filter)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for i := range combos {
				if err := enc.Encode(&combos[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Experiment, "experiment", "", "Experiment name")
	cmd.Flags().StringVar(&filter.Season, "season", "", "Season name")
	cmd.Flags().StringVar(&filter.Site, "site", "", "Site name")
	cmd.Flags().StringVar(&filter.Dataset, "dataset", "", "Dataset name")
	cmd.Flags().StringVar(&filter.Entity, "entity", "", "Producing entity name")

	return cmd
}
