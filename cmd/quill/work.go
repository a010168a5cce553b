package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/repository"
)

func newWorkCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Inspect and manage works",
	}

	cmd.AddCommand(newWorkListCmd(v))
	cmd.AddCommand(newWorkShowCmd(v))
	cmd.AddCommand(newWorkStatusCmd(v, "pause", models.StatusPaused, "Pause an active work so runs skip it"))
	cmd.AddCommand(newWorkStatusCmd(v, "resume", models.StatusActive, "Resume a paused work"))
	cmd.AddCommand(newWorkDeleteCmd(v))
	return cmd
}

func newWorkListCmd(v *viper.Viper) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List works",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !models.ValidStatus(status) {
				return fmt.Errorf("unknown status %q", status)
			}
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			works, err := repository.NewWorks(a.db).List(cmd.Context(), status)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return printJSON(out, works)
			}
			if len(works) == 0 {
				fmt.Fprintln(out, "No works found.")
				return nil
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(out)
			tw.AppendHeader(table.Row{"Slug", "Title", "Status", "Units", "Genre", "Updated"})
			for _, w := range works {
				tw.AppendRow(table.Row{
					w.Slug, w.Title, w.Status,
					fmt.Sprintf("%d/%d", w.UnitCount, w.PlannedUnits),
					w.Genre,
					w.UpdatedAt.Format("2006-01-02 15:04"),
				})
			}
			tw.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func newWorkShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <slug>",
		Short: "Show a work and its units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			works := repository.NewWorks(a.db)
			w, err := works.Get(ctx, args[0])
			if err != nil {
				return err
			}
			progress, err := works.GetProgress(ctx, args[0])
			if err != nil {
				return err
			}
			units, err := repository.NewUnits(a.db).List(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput() {
				return printJSON(out, map[string]interface{}{"work": progress, "units": units})
			}
			printWork(out, w, progress, units)
			return nil
		},
	}
}

func printWork(out io.Writer, w *models.Work, p *repository.WorkProgress, units []models.Unit) {
	fmt.Fprintf(out, "%s (%s)\n", w.Title, w.Slug)
	fmt.Fprintf(out, "Status:   %s\n", w.Status)
	fmt.Fprintf(out, "Progress: %d/%d units (%.0f%%)\n", p.UnitCount, w.PlannedUnits, p.Percent)
	if w.Genre != "" {
		fmt.Fprintf(out, "Concept:  %s / %s / %s\n", w.Genre, w.Theme, w.Variant)
	}
	if tags := repository.Tags(*w); len(tags) > 0 {
		fmt.Fprintf(out, "Tags:     %s\n", strings.Join(tags, ", "))
	}
	if w.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", w.Summary)
	}
	if len(units) == 0 {
		return
	}
	fmt.Fprintln(out)
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"#", "Title", "Kind", "Words", "Published"})
	for _, u := range units {
		tw.AppendRow(table.Row{u.Number, u.Title, u.Kind, u.WordCount, u.PublishedAt.Format("2006-01-02")})
	}
	tw.Render()
}

func newWorkStatusCmd(v *viper.Viper, use, status, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <slug>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := repository.NewWorks(a.db).UpdateStatus(cmd.Context(), args[0], status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Work %s is now %s\n", args[0], status)
			return nil
		},
	}
}

func newWorkDeleteCmd(v *viper.Viper) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <slug>",
		Short: "Delete a work with its units and continuity records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirmReset(cmd, args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := repository.NewWorks(a.db).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted work %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}
