// Package register implements the 'register' subcommand: administrative
// creation of experiments, seasons, sites and entities, and linking entities
// to experiments. Records can only land on tuples registered here.
package register

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phenobase/fieldstore/internal/app"
	"github.com/phenobase/fieldstore/internal/conf"
)

// Command creates the register command tree.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register hierarchy dimensions",
	}

	cmd.AddCommand(
		experimentCommand(settings),
		seasonCommand(settings),
		siteCommand(settings),
		entityCommand(settings),
		linkCommand(settings),
	)

	return cmd
}

func experimentCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "experiment <name>",
		Short: "Register an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			exp, err := application.Store.CreateExperiment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "experiment %q registered (id %d)\n", exp.Name, exp.ID)
			return nil
		},
	}
}

func seasonCommand(settings *conf.Settings) *cobra.Command {
	var experiment string

	cmd := &cobra.Command{
		Use:   "season <name>",
		Short: "Register a season under an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			exp, err := application.Store.GetExperiment(cmd.Context(), experiment)
			if err != nil {
				return err
			}
			season, err := application.Store.CreateSeason(cmd.Context(), args[0], exp.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "season %q registered under %q (id %d)\n", season.Name, exp.Name, season.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&experiment, "experiment", "", "Owning experiment name")
	_ = cmd.MarkFlagRequired("experiment")

	return cmd
}

func siteCommand(settings *conf.Settings) *cobra.Command {
	var experiment string

	cmd := &cobra.Command{
		Use:   "site <name>",
		Short: "Register a site under an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			exp, err := application.Store.GetExperiment(cmd.Context(), experiment)
			if err != nil {
				return err
			}
			site, err := application.Store.CreateSite(cmd.Context(), args[0], exp.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "site %q registered under %q (id %d)\n", site.Name, exp.Name, site.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&experiment, "experiment", "", "Owning experiment name")
	_ = cmd.MarkFlagRequired("experiment")

	return cmd
}

func entityCommand(settings *conf.Settings) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "entity <name>",
		Short: "Register a producing entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			entity, err := application.Store.CreateEntity(cmd.Context(), kind, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s entity %q registered (id %d)\n", entity.Kind, entity.Name, entity.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Entity kind: dataset, sensor, trait, model, procedure, script")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func linkCommand(settings *conf.Settings) *cobra.Command {
	var (
		kind       string
		entity     string
		experiment string
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link an entity to an experiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			ent, err := application.Store.GetEntity(cmd.Context(), kind, entity)
			if err != nil {
				return err
			}
			exp, err := application.Store.GetExperiment(cmd.Context(), experiment)
			if err != nil {
				return err
			}
			if err := application.Resolver.LinkEntityToExperiment(cmd.Context(), ent.ID, exp.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entity %q linked to experiment %q\n", ent.Name, exp.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Entity kind")
	cmd.Flags().StringVar(&entity, "entity", "", "Entity name")
	cmd.Flags().StringVar(&experiment, "experiment", "", "Experiment name")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("experiment")

	return cmd
}
