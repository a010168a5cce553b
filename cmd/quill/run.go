package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zulandar/quill/internal/bulletin"
	"github.com/zulandar/quill/internal/orchestrator"
	"github.com/zulandar/quill/internal/policy"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	var (
		dryRun bool
		force  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one lifecycle step",
		Long: `Analyzes the active works, decides one action (create, continue, complete
or nothing), generates and validates the new units, and commits them
atomically. Exits non-zero when the run fails.

--force overrides the decision: create, continue:<slug>, complete:<slug>
or none.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, v, dryRun, force)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "decide only; generate and commit nothing")
	cmd.Flags().StringVar(&force, "force", "", "force an action (create, continue:<slug>, complete:<slug>, none)")
	return cmd
}

// parseForce turns "continue:alpha" into an Action.
func parseForce(s string) (*policy.Action, error) {
	if s == "" {
		return nil, nil
	}
	kind, slug, _ := strings.Cut(s, ":")
	a := &policy.Action{WorkSlug: slug}
	switch strings.ToLower(kind) {
	case "create", "createnew":
		a.Kind = policy.ActionCreateNew
	case "continue":
		a.Kind = policy.ActionContinue
	case "complete":
		a.Kind = policy.ActionComplete
	case "none", "noaction":
		a.Kind = policy.ActionNone
	default:
		return nil, fmt.Errorf("unknown --force action %q (want create, continue:<slug>, complete:<slug> or none)", kind)
	}
	if (a.Kind == policy.ActionContinue || a.Kind == policy.ActionComplete) && slug == "" {
		return nil, fmt.Errorf("--force %s requires a work slug, e.g. %s:my-work", kind, kind)
	}
	return a, nil
}

func runRun(cmd *cobra.Command, v *viper.Viper, dryRun bool, force string) error {
	forced, err := parseForce(force)
	if err != nil {
		return err
	}

	a, err := openApp(cmd, v)
	if err != nil {
		return err
	}
	defer a.Close()

	o, err := a.orchestrator(cmd.Context())
	if err != nil {
		return err
	}
	notifier, err := a.notifier()
	if err != nil {
		return err
	}

	res := o.Run(cmd.Context(), orchestrator.RunOptions{DryRun: dryRun, Force: forced})

	if notifier != nil && !dryRun {
		if err := notifier.Notify(cmd.Context(), bulletin.FromRunResult(res)); err != nil {
			a.log.Warn("bulletin failed", "notifier", notifier.Name(), "error", err)
		}
	}

	out := cmd.OutOrStdout()
	if a.jsonOutput() {
		if err := printJSON(out, res); err != nil {
			return err
		}
	} else {
		printRunResult(out, res)
	}

	if !res.Success {
		return fmt.Errorf("run %s failed at %s", res.RunID, res.Error.Stage)
	}
	return nil
}

func printRunResult(w io.Writer, res *orchestrator.RunResult) {
	fmt.Fprintf(w, "Run %s\n", res.RunID)
	fmt.Fprintf(w, "  Action:   %s\n", res.Action)
	if res.Action.Reason != "" {
		fmt.Fprintf(w, "  Reason:   %s\n", res.Action.Reason)
	}
	if res.Success {
		fmt.Fprintf(w, "  Result:   %s\n", res.Detail)
	} else {
		fmt.Fprintf(w, "  Failed:   %s: %s\n", res.Error.Stage, res.Error.Message)
		for _, r := range res.Error.Reasons {
			fmt.Fprintf(w, "            - %s\n", r)
		}
	}
	for _, u := range res.Committed {
		fmt.Fprintf(w, "  Unit:     %s #%d %q (%s, %d words)\n", u.WorkSlug, u.Number, u.Title, u.Kind, u.Words)
	}
	fmt.Fprintf(w, "  Duration: %s\n", res.Duration().Round(time.Millisecond))
}
