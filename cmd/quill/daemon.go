package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zulandar/quill/internal/schedule"
)

// leaseName is the lease every Quill process competes for before a run.
const leaseName = "quill-run"

func newDaemonCmd(v *viper.Viper) *cobra.Command {
	var (
		once   bool
		holder string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the orchestrator on the configured cron schedule",
		Long: `Runs one lifecycle step per schedule.cron tick. Each tick takes a
database lease first, so several daemons can share one database without
running concurrently. Bulletins go to the configured notify channels.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, v, once, holder)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single tick and exit")
	cmd.Flags().StringVar(&holder, "holder", "", "lease holder identity (default host:pid)")
	return cmd
}

func runDaemon(cmd *cobra.Command, v *viper.Viper, once bool, holder string) error {
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

	var opts []schedule.LeaseOption
	if holder != "" {
		opts = append(opts, schedule.WithHolder(holder))
	}
	d, err := schedule.NewDaemon(schedule.DaemonOpts{
		Runner:   o,
		Lease:    schedule.NewLease(a.db, leaseName, a.cfg.Schedule.LeaseTTL, opts...),
		Notifier: notifier,
		Log:      a.log,
		Cron:     a.cfg.Schedule.Cron,
	})
	if err != nil {
		return err
	}

	if once {
		res, err := d.Tick(cmd.Context())
		if res != nil {
			printRunResult(cmd.OutOrStdout(), res)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Quill daemon running on %q (Ctrl-C to stop)\n", a.cfg.Schedule.Cron)
	return d.Start(cmd.Context())
}
