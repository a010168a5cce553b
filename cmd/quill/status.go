package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zulandar/quill/internal/policy"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current situation and the next decision",
		Long:  "Analyzes the active works the same way a run does and shows what the next run would decide. Use --watch for auto-refresh.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, v, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "auto-refresh every 5 seconds")
	return cmd
}

type statusView struct {
	Situation *policy.Situation `json:"situation"`
	Next      policy.Action     `json:"next"`
}

func runStatus(cmd *cobra.Command, v *viper.Viper, watch bool) error {
	a, err := openApp(cmd, v)
	if err != nil {
		return err
	}
	defer a.Close()

	o, err := a.analyzer(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	for {
		s, err := o.Analyze(cmd.Context())
		if err != nil {
			return err
		}
		view := statusView{Situation: s, Next: policy.Decide(*s)}

		if a.jsonOutput() {
			return printJSON(out, view)
		}
		if watch {
			// Clear screen.
			fmt.Fprint(out, "\033[2J\033[H")
		}
		printStatus(out, view, a.cfg.Policy.ReadinessThreshold)

		if !watch {
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
}

func printStatus(w io.Writer, view statusView, threshold float64) {
	s := view.Situation
	fmt.Fprintf(w, "Active works: %d of %d", s.ActiveCount, s.MaxActive)
	if s.CreateWhenStuck {
		fmt.Fprint(w, " (create when stuck)")
	}
	fmt.Fprintln(w)

	if len(s.Works) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.AppendHeader(table.Row{"Slug", "Status", "Units", "Progress", "Readiness", "Ready", "Updated"})
		for _, ws := range s.Works {
			ready := ""
			if ws.Ready {
				ready = "yes"
			}
			tw.AppendRow(table.Row{
				ws.Slug,
				ws.Status,
				fmt.Sprintf("%d/%d", ws.UnitCount, ws.PlannedUnits),
				fmt.Sprintf("%.0f%%", ws.Progress),
				fmt.Sprintf("%.1f", ws.Composite),
				ready,
				timeAgo(s.TakenAt, ws.UpdatedAt),
			})
		}
		tw.Render()
	}
	fmt.Fprintf(w, "Readiness threshold: %.0f\n", threshold)
	fmt.Fprintf(w, "Next action: %s (%s)\n", view.Next, view.Next.Reason)
}

// timeAgo formats the age of t relative to now.
func timeAgo(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
