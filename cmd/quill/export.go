package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zulandar/quill/internal/artifact"
	"github.com/zulandar/quill/internal/repository"
)

func newExportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "export [slug...]",
		Short: "Publish works and their units to the artifact store",
		Long: `Writes the work file and every unit file to the configured artifact
backend. With no slugs every work is exported. Publishing is idempotent, so
export also reconciles a store after a failed publish.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			pub, err := a.publisher(cmd.Context())
			if err != nil {
				return err
			}
			if pub == nil {
				return fmt.Errorf("artifacts.backend is none; configure fs, github or redis to export")
			}

			ctx := cmd.Context()
			works := repository.NewWorks(a.db)
			units := repository.NewUnits(a.db)
			slugs := args
			if len(slugs) == 0 {
				all, err := works.List(ctx, "")
				if err != nil {
					return err
				}
				for _, w := range all {
					slugs = append(slugs, w.Slug)
				}
			}

			out := cmd.OutOrStdout()
			for _, slug := range slugs {
				n, err := exportWork(cmd, pub, works, units, slug)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Exported %s (%d units)\n", slug, n)
			}
			return nil
		},
	}
}

func exportWork(cmd *cobra.Command, pub *artifact.Publisher, works *repository.Works, units *repository.Units, slug string) (int, error) {
	ctx := cmd.Context()
	w, err := works.Get(ctx, slug)
	if err != nil {
		return 0, err
	}
	list, err := units.List(ctx, slug)
	if err != nil {
		return 0, err
	}
	if err := pub.PublishWork(ctx, w); err != nil {
		return 0, err
	}
	if err := pub.PublishUnits(ctx, w, list); err != nil {
		return 0, err
	}
	return len(list), nil
}

func newImportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "import <slug>",
		Short: "Restore a work and its units from the artifact store",
		Long: `Reads a previously exported work from the artifact backend and inserts
it with its units. Continuity records are not part of the export, so an
imported work starts with an empty continuity state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			pub, err := a.publisher(cmd.Context())
			if err != nil {
				return err
			}
			if pub == nil {
				return fmt.Errorf("artifacts.backend is none; configure fs, github or redis to import")
			}
			w, units, err := pub.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := artifact.Restore(cmd.Context(), a.db, w, units); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s, %d units)\n", w.Slug, w.Status, len(units))
			return nil
		},
	}
}
